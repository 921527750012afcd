package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/knowbase/internal/cli"
	"github.com/cloo-solutions/knowbase/internal/cli/client"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "knowbase",
		Short: "knowbase command-line client",
		Long: `knowbase is the command-line client for the knowledge base API.

Credentials cascade: flags, then environment variables, then the global config
written by 'knowbase auth login'.

Environment variables:
  KNOWBASE_API_KEY   API key for authentication (kb_...)
  KNOWBASE_API_URL   API base URL (default: http://localhost:8080)`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-key", "", "API key (overrides environment and config)")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides environment and config)")

	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.AuthCmd())
	rootCmd.AddCommand(client.IngestCmd())
	rootCmd.AddCommand(client.IngestionsCmd())
	rootCmd.AddCommand(client.ItemsCmd())
	rootCmd.AddCommand(client.AskCmd())
	rootCmd.AddCommand(client.TenantsCmd())

	cli.CheckHelpJSON(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
