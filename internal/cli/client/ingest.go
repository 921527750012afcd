package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// Ingestion represents an ingestion record as returned by the API.
type Ingestion struct {
	ID              string   `json:"id"`
	Scope           string   `json:"scope"`
	TenantCode      string   `json:"tenant_code,omitempty"`
	InputKind       string   `json:"input_kind"`
	InputHash       string   `json:"input_hash"`
	InputName       string   `json:"input_name,omitempty"`
	Status          string   `json:"status"`
	ModelUsed       string   `json:"model_used,omitempty"`
	ReasoningEffort string   `json:"reasoning_effort,omitempty"`
	ItemIDs         []string `json:"item_ids,omitempty"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

// IngestedItem pairs a synthesized item with its dedup outcome.
type IngestedItem struct {
	Item    Item   `json:"item"`
	Outcome string `json:"outcome"`
}

// IngestResult represents the response to an ingest request.
type IngestResult struct {
	Ingestion Ingestion      `json:"ingestion"`
	Items     []IngestedItem `json:"items"`
	Duplicate bool           `json:"duplicate"`
}

// IngestCmd creates the ingest command.
func IngestCmd() *cobra.Command {
	var (
		scope  string
		tenant string
		name   string
		text   string
		effort string
	)

	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Submit raw input for synthesis into knowledge items",
		Long: `Submits text or a document for synthesis into structured knowledge items.

Accepts a .pdf or .docx file to upload, any other file as plain text,
inline text via --text, or text piped on stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			filePath := ""
			if len(args) == 1 {
				filePath = args[0]
			}
			return runIngest(cmd, filePath, scope, tenant, name, text, effort, outputJSON)
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "Target scope: shared or tenant (required)")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant code (required for tenant scope)")
	cmd.Flags().StringVar(&name, "name", "", "Name for the input (defaults to the file name)")
	cmd.Flags().StringVar(&text, "text", "", "Inline text to ingest")
	cmd.Flags().StringVar(&effort, "effort", "", "Reasoning effort: low, medium, or high")
	_ = cmd.MarkFlagRequired("scope")

	return cmd
}

func runIngest(cmd *cobra.Command, filePath, scope, tenant, name, text, effort string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	var resp *APIResponse

	switch {
	case filePath != "" && isDocumentFile(filePath):
		file, err := os.Open(filePath)
		if err != nil {
			return fmt.Errorf("failed to open file: %w", err)
		}
		defer file.Close()

		fields := map[string]string{
			"scope":            scope,
			"tenant_code":      tenant,
			"reasoning_effort": effort,
		}
		resp, err = api.PostFile("/ingest/file", "file", filepath.Base(filePath), file, fields)
		if err != nil {
			return fmt.Errorf("failed to ingest file: %w", err)
		}
	default:
		if filePath != "" {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return fmt.Errorf("failed to read file: %w", err)
			}
			text = string(data)
			if name == "" {
				name = filepath.Base(filePath)
			}
		} else if text == "" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			text = string(data)
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("no input: provide a file, --text, or pipe text on stdin")
		}

		resp, err = api.Post("/ingest", map[string]string{
			"scope":            scope,
			"tenant_code":      tenant,
			"name":             name,
			"text":             text,
			"reasoning_effort": effort,
		})
		if err != nil {
			return fmt.Errorf("failed to ingest text: %w", err)
		}
	}

	var result IngestResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return fmt.Errorf("failed to parse ingest response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if result.Duplicate {
		fmt.Printf("Input already ingested (ingestion %s)\n", result.Ingestion.ID)
		return nil
	}

	fmt.Printf("Ingestion %s synthesized %d item(s):\n", result.Ingestion.ID, len(result.Items))
	for _, ingested := range result.Items {
		fmt.Printf("  %s  [%s/%s]  %s\n", ingested.Item.ID, ingested.Item.Type, ingested.Outcome, ingested.Item.Title)
	}

	return nil
}

func isDocumentFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".docx":
		return true
	}
	return false
}

// IngestionsCmd creates the ingestions parent command.
func IngestionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingestions",
		Short: "Inspect and review ingestions",
	}

	cmd.AddCommand(IngestionsListCmd())
	cmd.AddCommand(IngestionsGetCmd())
	cmd.AddCommand(IngestionsApproveCmd())
	cmd.AddCommand(IngestionsRejectCmd())

	return cmd
}

// IngestionsListCmd creates the ingestions list command.
func IngestionsListCmd() *cobra.Command {
	var (
		scope  string
		tenant string
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ingestions",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runIngestionsList(cmd, scope, tenant, limit, cursor, outputJSON)
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "Filter by scope (shared or tenant)")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Filter by tenant code")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of ingestions")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from a previous page")

	return cmd
}

func runIngestionsList(cmd *cobra.Command, scope, tenant string, limit int, cursor string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	query := url.Values{}
	if scope != "" {
		query.Set("scope", scope)
	}
	if tenant != "" {
		query.Set("tenant", tenant)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	path := "/ingestions"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	resp, err := api.Get(path)
	if err != nil {
		return fmt.Errorf("failed to list ingestions: %w", err)
	}

	var result struct {
		Ingestions []Ingestion `json:"ingestions"`
		Cursor     string      `json:"cursor,omitempty"`
		HasMore    bool        `json:"has_more"`
	}
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return fmt.Errorf("failed to parse ingestions: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(result.Ingestions) == 0 {
		fmt.Println("No ingestions found")
		return nil
	}

	for _, ing := range result.Ingestions {
		name := ing.InputName
		if name == "" {
			name = ing.InputHash[:12]
		}
		fmt.Printf("%s  [%s/%s]  %s  %s\n", ing.ID, ing.InputKind, ing.Status, name, ing.CreatedAt)
	}
	if result.HasMore {
		fmt.Printf("\nMore results available, next cursor: %s\n", result.Cursor)
	}

	return nil
}

// IngestionsGetCmd creates the ingestions get command.
func IngestionsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <ingestion_id>",
		Short: "Get an ingestion by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get("/ingestions/" + args[0])
			if err != nil {
				return fmt.Errorf("failed to get ingestion: %w", err)
			}

			var ing Ingestion
			if err := json.Unmarshal(resp.Data, &ing); err != nil {
				return fmt.Errorf("failed to parse ingestion: %w", err)
			}

			if outputJSON {
				output, _ := json.MarshalIndent(ing, "", "  ")
				fmt.Println(string(output))
				return nil
			}

			fmt.Printf("ID: %s\n", ing.ID)
			fmt.Printf("Status: %s\n", ing.Status)
			if ing.TenantCode != "" {
				fmt.Printf("Scope: %s (%s)\n", ing.Scope, ing.TenantCode)
			} else {
				fmt.Printf("Scope: %s\n", ing.Scope)
			}
			fmt.Printf("Input: %s (%s)\n", ing.InputName, ing.InputKind)
			if ing.ModelUsed != "" {
				fmt.Printf("Model: %s\n", ing.ModelUsed)
			}
			fmt.Printf("Created: %s\n", ing.CreatedAt)
			if len(ing.ItemIDs) > 0 {
				fmt.Println("Items:")
				for _, id := range ing.ItemIDs {
					fmt.Printf("  %s\n", id)
				}
			}

			return nil
		},
	}
}

// IngestionsApproveCmd creates the ingestions approve command.
func IngestionsApproveCmd() *cobra.Command {
	return ingestionReviewCmd("approve", "Approve all draft items from an ingestion")
}

// IngestionsRejectCmd creates the ingestions reject command.
func IngestionsRejectCmd() *cobra.Command {
	return ingestionReviewCmd("reject", "Reject all draft items from an ingestion")
}

func ingestionReviewCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <ingestion_id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Post(fmt.Sprintf("/ingestions/%s/%s", args[0], action), nil)
			if err != nil {
				return fmt.Errorf("failed to %s ingestion: %w", action, err)
			}

			var ing Ingestion
			if err := json.Unmarshal(resp.Data, &ing); err != nil {
				return fmt.Errorf("failed to parse ingestion: %w", err)
			}

			if outputJSON {
				output, _ := json.MarshalIndent(ing, "", "  ")
				fmt.Println(string(output))
			} else {
				fmt.Printf("Ingestion %s is now %s\n", ing.ID, ing.Status)
			}

			return nil
		},
	}
}
