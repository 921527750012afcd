package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// AskSource pairs a cited item with its retrieval score.
type AskSource struct {
	Item  Item    `json:"item"`
	Score float64 `json:"score"`
}

// AskResult represents the answer returned by the API.
type AskResult struct {
	Answer      string      `json:"answer"`
	Sources     []AskSource `json:"sources"`
	ModelCalled bool        `json:"model_called"`
	Model       string      `json:"model,omitempty"`
}

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	var (
		selector string
		tenant   string
		limit    int
		types    []string
		effort   string
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question against the knowledge base",
		Long:  "Retrieves relevant approved knowledge items and generates a grounded answer.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runAsk(cmd, args[0], selector, tenant, limit, types, effort, outputJSON)
		},
	}

	cmd.Flags().StringVar(&selector, "selector", "shared", "Index selector: shared, tenant, or tenant+shared")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant code (required for tenant selectors)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of source items")
	cmd.Flags().StringSliceVar(&types, "type", nil, "Restrict to item types (repeatable)")
	cmd.Flags().StringVar(&effort, "effort", "", "Reasoning effort: low, medium, or high")

	return cmd
}

func runAsk(cmd *cobra.Command, question, selector, tenant string, limit int, types []string, effort string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Post("/ask", map[string]interface{}{
		"question":         question,
		"selector":         selector,
		"tenant_code":      tenant,
		"limit":            limit,
		"types":            types,
		"reasoning_effort": effort,
	})
	if err != nil {
		return fmt.Errorf("failed to ask: %w", err)
	}

	var result AskResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return fmt.Errorf("failed to parse answer: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Println(result.Answer)

	if len(result.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, source := range result.Sources {
			scope := source.Item.Scope
			if source.Item.TenantCode != "" {
				scope = source.Item.TenantCode
			}
			fmt.Printf("  %.3f  %s  [%s/%s]  %s\n",
				source.Score, source.Item.ID, strings.ToLower(scope), source.Item.Type, source.Item.Title)
		}
	}

	return nil
}
