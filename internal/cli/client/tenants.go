package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// Tenant represents a tenant as returned by the API.
type Tenant struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// TenantsCmd creates the tenants parent command.
func TenantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "Manage tenants",
	}

	cmd.AddCommand(TenantsRegisterCmd())
	cmd.AddCommand(TenantsListCmd())
	cmd.AddCommand(TenantsGetCmd())
	cmd.AddCommand(TenantsRenameCmd())
	cmd.AddCommand(TenantsDeleteCmd())

	return cmd
}

// TenantsRegisterCmd creates the tenants register command.
func TenantsRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <code> <name>",
		Short: "Register a new tenant",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Post("/tenants", map[string]string{
				"code": args[0],
				"name": args[1],
			})
			if err != nil {
				return fmt.Errorf("failed to register tenant: %w", err)
			}

			return printTenant(resp, outputJSON, "Registered tenant %s (%s)\n")
		},
	}
}

// TenantsListCmd creates the tenants list command.
func TenantsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get("/tenants")
			if err != nil {
				return fmt.Errorf("failed to list tenants: %w", err)
			}

			var result struct {
				Tenants []Tenant `json:"tenants"`
			}
			if err := json.Unmarshal(resp.Data, &result); err != nil {
				return fmt.Errorf("failed to parse tenants: %w", err)
			}

			if outputJSON {
				output, _ := json.MarshalIndent(result, "", "  ")
				fmt.Println(string(output))
				return nil
			}

			if len(result.Tenants) == 0 {
				fmt.Println("No tenants registered")
				return nil
			}
			for _, tenant := range result.Tenants {
				fmt.Printf("%s  %s\n", tenant.Code, tenant.Name)
			}

			return nil
		},
	}
}

// TenantsGetCmd creates the tenants get command.
func TenantsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <code>",
		Short: "Get a tenant by code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get("/tenants/" + args[0])
			if err != nil {
				return fmt.Errorf("failed to get tenant: %w", err)
			}

			return printTenant(resp, outputJSON, "Tenant %s (%s)\n")
		},
	}
}

// TenantsRenameCmd creates the tenants rename command.
func TenantsRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <code> <name>",
		Short: "Change a tenant's display name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Patch("/tenants/"+args[0], map[string]string{
				"name": args[1],
			})
			if err != nil {
				return fmt.Errorf("failed to rename tenant: %w", err)
			}

			return printTenant(resp, outputJSON, "Renamed tenant %s to %s\n")
		},
	}
}

// TenantsDeleteCmd creates the tenants delete command.
func TenantsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <code>",
		Short: "Delete a tenant and its vector collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			if _, err := api.Delete("/tenants/" + args[0]); err != nil {
				return fmt.Errorf("failed to delete tenant: %w", err)
			}

			fmt.Printf("Deleted tenant %s\n", args[0])
			return nil
		},
	}
}

func printTenant(resp *APIResponse, outputJSON bool, format string) error {
	var tenant Tenant
	if err := json.Unmarshal(resp.Data, &tenant); err != nil {
		return fmt.Errorf("failed to parse tenant: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(tenant, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf(format, tenant.Code, tenant.Name)
	return nil
}
