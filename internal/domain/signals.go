package domain

import "fmt"

// Signals is an open key-value bag for evolving item metadata. Values are
// restricted to JSON-compatible shapes: string, number, bool, nil, nested
// map, or arrays of those.
type Signals map[string]any

// ValidateSignals rejects values that would not round-trip through JSON.
func ValidateSignals(s Signals) error {
	for key, value := range s {
		if key == "" {
			return NewDomainError(ErrCodeValidation, "signals keys must be non-empty")
		}
		if err := validateSignalValue(key, value); err != nil {
			return err
		}
	}
	return nil
}

func validateSignalValue(key string, value any) error {
	switch v := value.(type) {
	case nil, string, bool,
		int, int32, int64, float32, float64:
		return nil
	case []any:
		for _, elem := range v {
			if err := validateSignalValue(key, elem); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		return ValidateSignals(Signals(v))
	default:
		return NewDomainError(ErrCodeValidation, fmt.Sprintf("signals[%s] has unsupported type %T", key, value))
	}
}
