package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/knowbase/internal/cli"
	"github.com/cloo-solutions/knowbase/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "knowbased",
		Short: "knowbase server daemon",
		Long:  "knowbased runs the knowledge base API server and provides admin commands for tenants, API keys, and index maintenance.",
	}

	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.TenantCmd())
	rootCmd.AddCommand(admin.APIKeyCmd())
	rootCmd.AddCommand(admin.ReindexCmd())

	// Default to serve when invoked without a subcommand.
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
