package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloo-solutions/knowbase/internal/config"
	"github.com/cloo-solutions/knowbase/internal/pagination"
	"github.com/cloo-solutions/knowbase/internal/repository"
	"github.com/cloo-solutions/knowbase/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func TenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
		Long:  "Register, list, rename, and delete tenants",
	}

	cmd.AddCommand(TenantRegisterCmd())
	cmd.AddCommand(TenantListCmd())
	cmd.AddCommand(TenantRenameCmd())
	cmd.AddCommand(TenantDeleteCmd())

	return cmd
}

func TenantRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register <code> <name>",
		Short: "Register a new tenant",
		Long:  "Register a tenant under a short uppercase code, e.g. 'tenant register ACME \"Acme Corp\"'",
		Args:  cobra.ExactArgs(2),
		RunE:  runTenantRegister,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runTenantRegister(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	code, name := args[0], args[1]
	outputFormat, _ := cmd.Flags().GetString("output")

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tenantSvc := service.NewTenantService(repository.NewTenantRepository(pool))

	tenant, err := tenantSvc.Register(ctx, code, name)
	if err != nil {
		return fmt.Errorf("failed to register tenant: %w", err)
	}

	if outputFormat == "json" {
		data := map[string]interface{}{
			"code":       tenant.Code,
			"name":       tenant.Name,
			"created_at": tenant.CreatedAt,
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("Tenant registered: %s (%s)\n", tenant.Code, tenant.Name)
	}

	return nil
}

func TenantListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all tenants",
		Long:  "List all registered tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runTenantList(outputFormat, limit, cursor)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func runTenantList(outputFormat string, limit int, cursorStr string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tenantRepo := repository.NewTenantRepository(pool)

	cursor, _ := pagination.DecodeCursor(cursorStr)
	result, err := tenantRepo.ListWithCursor(ctx, cursor, limit)
	if err != nil {
		return fmt.Errorf("failed to list tenants: %w", err)
	}

	if outputFormat == "json" {
		data := make([]map[string]interface{}, len(result.Items))
		for i, tenant := range result.Items {
			data[i] = map[string]interface{}{
				"code":       tenant.Code,
				"name":       tenant.Name,
				"created_at": tenant.CreatedAt,
			}
		}
		output := map[string]interface{}{
			"items":    data,
			"cursor":   result.NextCursor,
			"has_more": result.HasMore,
		}
		jsonBytes, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		if len(result.Items) == 0 {
			fmt.Println("No tenants found")
			return nil
		}
		fmt.Println("Tenants:")
		for _, tenant := range result.Items {
			fmt.Printf("  %s: %s (created: %s)\n", tenant.Code, tenant.Name, tenant.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		if result.HasMore && result.NextCursor != "" {
			fmt.Printf("\nMore results available. Use --cursor %s\n", result.NextCursor)
		}
	}

	return nil
}

func TenantRenameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename <code> <name>",
		Short: "Rename a tenant",
		Long:  "Change a tenant's display name. The code is immutable.",
		Args:  cobra.ExactArgs(2),
		RunE:  runTenantRename,
	}

	return cmd
}

func runTenantRename(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	code, name := args[0], args[1]

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tenantSvc := service.NewTenantService(repository.NewTenantRepository(pool))

	tenant, err := tenantSvc.Rename(ctx, code, name)
	if err != nil {
		return fmt.Errorf("failed to rename tenant: %w", err)
	}

	fmt.Printf("Tenant renamed: %s (%s)\n", tenant.Code, tenant.Name)
	return nil
}

func TenantDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <code>",
		Short: "Delete a tenant",
		Long:  "Delete a tenant registration. Knowledge items and the vector collection are not removed.",
		Args:  cobra.ExactArgs(1),
		RunE:  runTenantDelete,
	}

	return cmd
}

func runTenantDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	code := args[0]

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tenantSvc := service.NewTenantService(repository.NewTenantRepository(pool))

	if err := tenantSvc.Delete(ctx, code); err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}

	fmt.Printf("Tenant %s deleted\n", code)
	return nil
}

func getDBPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
