package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// Item represents a knowledge item as returned by the API.
type Item struct {
	ID            string         `json:"id"`
	Scope         string         `json:"scope"`
	TenantCode    string         `json:"tenant_code,omitempty"`
	Type          string         `json:"type"`
	Title         string         `json:"title"`
	Body          string         `json:"body"`
	Tags          []string       `json:"tags"`
	DomainObjects []string       `json:"domain_objects"`
	Signals       map[string]any `json:"signals,omitempty"`
	Sources       []string       `json:"sources,omitempty"`
	Version       int            `json:"version"`
	Status        string         `json:"status"`
	ContentHash   string         `json:"content_hash"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
}

// ItemList represents a paginated list of items.
type ItemList struct {
	Items   []Item `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

// ItemsCmd creates the items parent command.
func ItemsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items",
		Short: "Manage knowledge items",
		Long:  "List, inspect, review, and edit knowledge items.",
	}

	cmd.AddCommand(ItemsListCmd())
	cmd.AddCommand(ItemsGetCmd())
	cmd.AddCommand(ItemsVersionsCmd())
	cmd.AddCommand(ItemsApproveCmd())
	cmd.AddCommand(ItemsRejectCmd())
	cmd.AddCommand(ItemsEditCmd())

	return cmd
}

// ItemsListCmd creates the items list command.
func ItemsListCmd() *cobra.Command {
	var (
		scope    string
		tenant   string
		status   string
		itemType string
		limit    int
		cursor   string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List knowledge items",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runItemsList(cmd, scope, tenant, status, itemType, limit, cursor, outputJSON)
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "Filter by scope (shared or tenant)")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Filter by tenant code")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (draft, approved, rejected)")
	cmd.Flags().StringVar(&itemType, "type", "", "Filter by item type")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of items")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from a previous page")

	return cmd
}

func runItemsList(cmd *cobra.Command, scope, tenant, status, itemType string, limit int, cursor string, outputJSON bool) error {
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
	if status != "" {
		query.Set("status", status)
	}
	if itemType != "" {
		query.Set("type", itemType)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	path := "/items"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	resp, err := api.Get(path)
	if err != nil {
		return fmt.Errorf("failed to list items: %w", err)
	}

	var list ItemList
	if err := json.Unmarshal(resp.Data, &list); err != nil {
		return fmt.Errorf("failed to parse items: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(list, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(list.Items) == 0 {
		fmt.Println("No items found")
		return nil
	}

	for _, item := range list.Items {
		fmt.Printf("%s  [%s/%s]  v%d  %s\n", item.ID, item.Type, item.Status, item.Version, item.Title)
	}
	if list.HasMore {
		fmt.Printf("\nMore results available, next cursor: %s\n", list.Cursor)
	}

	return nil
}

// ItemsGetCmd creates the items get command.
func ItemsGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "get <item_id>",
		Short:   "Get a knowledge item by ID",
		Aliases: []string{"view"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return fetchAndPrintItem(cmd, "/items/"+args[0], outputJSON)
		},
	}

	return cmd
}

// ItemsVersionsCmd creates the items versions command.
func ItemsVersionsCmd() *cobra.Command {
	var version int

	cmd := &cobra.Command{
		Use:   "versions <item_id>",
		Short: "Show the version history of an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			if version > 0 {
				path := fmt.Sprintf("/items/%s/versions/%d", args[0], version)
				return fetchAndPrintItem(cmd, path, outputJSON)
			}
			return runItemsVersions(cmd, args[0], outputJSON)
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "Show a single version instead of the history")

	return cmd
}

func runItemsVersions(cmd *cobra.Command, itemID string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Get(fmt.Sprintf("/items/%s/versions", itemID))
	if err != nil {
		return fmt.Errorf("failed to get versions: %w", err)
	}

	var result struct {
		Versions []Item `json:"versions"`
	}
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return fmt.Errorf("failed to parse versions: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	for _, item := range result.Versions {
		fmt.Printf("v%d  [%s]  %s  (updated %s)\n", item.Version, item.Status, item.Title, item.UpdatedAt)
	}

	return nil
}

// ItemsApproveCmd creates the items approve command.
func ItemsApproveCmd() *cobra.Command {
	return itemReviewCmd("approve", "Approve a draft item for retrieval")
}

// ItemsRejectCmd creates the items reject command.
func ItemsRejectCmd() *cobra.Command {
	return itemReviewCmd("reject", "Reject a draft item")
}

func itemReviewCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <item_id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Post(fmt.Sprintf("/items/%s/%s", args[0], action), nil)
			if err != nil {
				return fmt.Errorf("failed to %s item: %w", action, err)
			}

			var item Item
			if err := json.Unmarshal(resp.Data, &item); err != nil {
				return fmt.Errorf("failed to parse item: %w", err)
			}

			if outputJSON {
				output, _ := json.MarshalIndent(item, "", "  ")
				fmt.Println(string(output))
			} else {
				fmt.Printf("Item %s is now %s (v%d)\n", item.ID, item.Status, item.Version)
			}

			return nil
		},
	}
}

// ItemsEditCmd creates the items edit command.
func ItemsEditCmd() *cobra.Command {
	var (
		title string
		body  string
		tags  []string
	)

	cmd := &cobra.Command{
		Use:   "edit <item_id>",
		Short: "Edit an item, creating a new draft version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runItemsEdit(cmd, args[0], title, body, tags, outputJSON)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&body, "body", "", "New body text")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Replace tags (repeatable)")

	return cmd
}

func runItemsEdit(cmd *cobra.Command, itemID, title, body string, tags []string, outputJSON bool) error {
	request := map[string]interface{}{}
	if title != "" {
		request["title"] = title
	}
	if body != "" {
		request["body"] = body
	}
	if len(tags) > 0 {
		request["tags"] = tags
	}
	if len(request) == 0 {
		return fmt.Errorf("nothing to edit: provide --title, --body, or --tag")
	}

	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Patch("/items/"+itemID, request)
	if err != nil {
		return fmt.Errorf("failed to edit item: %w", err)
	}

	var item Item
	if err := json.Unmarshal(resp.Data, &item); err != nil {
		return fmt.Errorf("failed to parse item: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(item, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("Created draft v%d of %s\n", item.Version, item.ID)
	}

	return nil
}

func fetchAndPrintItem(cmd *cobra.Command, path string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Get(path)
	if err != nil {
		return fmt.Errorf("failed to get item: %w", err)
	}

	var item Item
	if err := json.Unmarshal(resp.Data, &item); err != nil {
		return fmt.Errorf("failed to parse item: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(item, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	printItem(item)
	return nil
}

func printItem(item Item) {
	fmt.Printf("Title: %s\n", item.Title)
	fmt.Printf("Type: %s\n", item.Type)
	fmt.Printf("Status: %s (v%d)\n", item.Status, item.Version)
	if item.TenantCode != "" {
		fmt.Printf("Scope: %s (%s)\n", item.Scope, item.TenantCode)
	} else {
		fmt.Printf("Scope: %s\n", item.Scope)
	}
	if len(item.Tags) > 0 {
		fmt.Printf("Tags: %s\n", strings.Join(item.Tags, ", "))
	}
	if len(item.DomainObjects) > 0 {
		fmt.Printf("Domain objects: %s\n", strings.Join(item.DomainObjects, ", "))
	}
	fmt.Printf("Created: %s\n", item.CreatedAt)
	fmt.Printf("Updated: %s\n", item.UpdatedAt)
	fmt.Println()
	fmt.Println("--- Content ---")
	fmt.Println(item.Body)
}
