package domain

import (
	"fmt"
	"time"
)

// IndexJobOp is the operation an index job performs against the vector index
type IndexJobOp string

const (
	IndexJobOpUpsert IndexJobOp = "upsert"
	IndexJobOpDelete IndexJobOp = "delete"
)

// IndexJobStatus represents the status of an index job
type IndexJobStatus string

const (
	IndexJobStatusPending    IndexJobStatus = "pending"
	IndexJobStatusProcessing IndexJobStatus = "processing"
	IndexJobStatusCompleted  IndexJobStatus = "completed"
	IndexJobStatusFailed     IndexJobStatus = "failed"
)

// IndexJob queues an embed+index (or delete) operation for a knowledge item.
// Jobs are created when a reviewer approves, edits an approved item, or
// rejects a previously indexed item.
type IndexJob struct {
	ID          string
	ItemID      string
	Op          IndexJobOp
	Status      IndexJobStatus
	Retries     int
	Error       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// ValidateIndexJob validates an IndexJob instance
func ValidateIndexJob(j *IndexJob) error {
	if j == nil {
		return fmt.Errorf("index job cannot be nil")
	}

	if j.ID == "" {
		return fmt.Errorf("index job ID is required")
	}

	if j.ItemID == "" {
		return fmt.Errorf("index job ItemID is required")
	}

	if !isValidIndexJobOp(j.Op) {
		return fmt.Errorf("index job Op is invalid: %s", j.Op)
	}

	if !isValidIndexJobStatus(j.Status) {
		return fmt.Errorf("index job Status is invalid: %s", j.Status)
	}

	return nil
}

func isValidIndexJobOp(op IndexJobOp) bool {
	switch op {
	case IndexJobOpUpsert, IndexJobOpDelete:
		return true
	}
	return false
}

func isValidIndexJobStatus(s IndexJobStatus) bool {
	switch s {
	case IndexJobStatusPending, IndexJobStatusProcessing, IndexJobStatusCompleted, IndexJobStatusFailed:
		return true
	}
	return false
}
