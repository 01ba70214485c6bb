package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/reuse/internal/config"
	"github.com/kalambet/reuse/internal/intake"
	"github.com/kalambet/reuse/internal/inventory"
)

// maxParallelUploads bounds concurrent photo uploads during batch intake.
const maxParallelUploads = 4

// --- items ---

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Browse and edit the inventory",
}

var itemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List inventory items",
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		items, err := listItems(cmd.Context(), client, category)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(items) == 0 {
			fmt.Fprintln(out, "No items found.")
			return nil
		}
		for _, it := range items {
			writeItemLine(out, it)
		}
		return nil
	},
}

func listItems(ctx context.Context, client *apiClient, category string) ([]inventory.Item, error) {
	path := "/items"
	if category != "" {
		path += "?category=" + url.QueryEscape(category)
	}
	resp, err := client.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var items []inventory.Item
	if err := decodeJSON(resp, &items); err != nil {
		return nil, err
	}
	return items, nil
}

var itemsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/items/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var it inventory.Item
		if err := decodeJSON(resp, &it); err != nil {
			return err
		}
		writeItemDetail(cmd.OutOrStdout(), it)
		return nil
	},
}

var itemsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an item by hand",
	Long: `Add an item by hand.

Examples:
  reuse items add --name "Desk Chair" --category "Furniture > Chairs" --condition Fair
  reuse items add --name "Rain Boots" --category "Clothing > Shoes" --keywords boots,rain,kids`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := patchFromFlags(cmd)
		if p.Name == nil || p.Category == nil {
			return fmt.Errorf("--name and --category are required")
		}

		in := inventory.NewItem{Name: *p.Name, Category: *p.Category, Keywords: []string{}}
		if p.Condition != nil {
			in.Condition = *p.Condition
		}
		if p.Summary != nil {
			in.Summary = *p.Summary
		}
		if p.Keywords != nil {
			in.Keywords = *p.Keywords
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/items", in)
		if err != nil {
			return err
		}
		var it inventory.Item
		if err := decodeJSON(resp, &it); err != nil {
			return err
		}
		printSuccess("Added %s (%s)", it.Name, it.ID)
		return nil
	},
}

var itemsEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change fields of an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.patch(cmd.Context(), "/items/"+url.PathEscape(args[0]), patchFromFlags(cmd))
		if err != nil {
			return err
		}
		var it inventory.Item
		if err := decodeJSON(resp, &it); err != nil {
			return err
		}
		printSuccess("Updated %s", it.Name)
		return nil
	},
}

var itemsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/items/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted %s", args[0])
		return nil
	},
}

var itemsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Replace the inventory with the sample items",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will replace ALL items with the sample set. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/items/reset", nil)
		if err != nil {
			return err
		}
		var items []inventory.Item
		if err := decodeJSON(resp, &items); err != nil {
			return err
		}
		printSuccess("Inventory reset to %d sample items", len(items))
		return nil
	},
}

func addItemFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "item name")
	cmd.Flags().String("category", "", `category path, e.g. "Home > Lighting"`)
	cmd.Flags().String("condition", "", "condition, e.g. Good")
	cmd.Flags().String("summary", "", "short description")
	cmd.Flags().StringSlice("keywords", nil, "comma-separated keywords")
}

// patchFromFlags collects only the flags the user actually set.
func patchFromFlags(cmd *cobra.Command) inventory.Patch {
	var p inventory.Patch
	str := func(name string) *string {
		if !cmd.Flags().Changed(name) {
			return nil
		}
		v, _ := cmd.Flags().GetString(name)
		v = strings.TrimSpace(v)
		return &v
	}
	p.Name = str("name")
	p.Category = str("category")
	p.Condition = str("condition")
	p.Summary = str("summary")
	if cmd.Flags().Changed("keywords") {
		kw, _ := cmd.Flags().GetStringSlice("keywords")
		for i := range kw {
			kw[i] = strings.TrimSpace(kw[i])
		}
		p.Keywords = &kw
	}
	return p
}

func init() {
	itemsListCmd.Flags().String("category", "", "only items in this exact category")
	addItemFlags(itemsAddCmd)
	addItemFlags(itemsEditCmd)
	itemsResetCmd.Flags().Bool("confirm", false, "confirm the reset")

	itemsCmd.AddCommand(itemsListCmd)
	itemsCmd.AddCommand(itemsShowCmd)
	itemsCmd.AddCommand(itemsAddCmd)
	itemsCmd.AddCommand(itemsEditCmd)
	itemsCmd.AddCommand(itemsDeleteCmd)
	itemsCmd.AddCommand(itemsResetCmd)
}

// --- categories ---

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List distinct categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/categories")
		if err != nil {
			return err
		}
		var cats []string
		if err := decodeJSON(resp, &cats); err != nil {
			return err
		}
		for _, c := range cats {
			fmt.Fprintln(cmd.OutOrStdout(), c)
		}
		return nil
	},
}

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze <photo>",
	Short: "Describe a donated item from its photo",
	Long: `Describe a donated item from its photo.

The record is printed and not stored unless --save is given.

Examples:
  reuse analyze lamp.jpg
  reuse analyze bear.png --note "missing one eye" --save`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		note, _ := cmd.Flags().GetString("note")
		save, _ := cmd.Flags().GetBool("save")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Analyzing %s...", filepath.Base(args[0]))
		fields := map[string]string{"note": note}
		if save {
			fields["save"] = "true"
		}
		resp, err := client.upload(cmd.Context(), "/analyze", args[0], fields)
		if err != nil {
			return err
		}
		var it inventory.Item
		if err := decodeJSON(resp, &it); err != nil {
			return err
		}

		writeItemDetail(cmd.OutOrStdout(), it)
		if save {
			printSuccess("Saved as %s", it.ID)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().String("note", "", "volunteer note passed to the model")
	analyzeCmd.Flags().Bool("save", false, "store the photo and record in the inventory")
}

// --- intake ---

type intakeResult struct {
	photo   string
	draftID string
	err     error
}

var intakeCmd = &cobra.Command{
	Use:   "intake <photos...>",
	Short: "Queue photos for background extraction",
	Long: `Queue photos for background extraction.

Each photo becomes a draft; review them with "reuse drafts list" and
add them with "reuse drafts confirm".`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		note, _ := cmd.Flags().GetString("note")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		results := uploadBatch(cmd.Context(), client, args, note)

		failed := 0
		for _, r := range results {
			if r.err != nil {
				failed++
				printError("%s: %v", r.photo, r.err)
				continue
			}
			printSuccess("%s queued as draft %s", r.photo, shortID(r.draftID))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d photos were not queued", failed, len(args))
		}
		return nil
	},
}

// uploadBatch submits photos to /intake with bounded parallelism. Results
// keep the order of photos.
func uploadBatch(ctx context.Context, client *apiClient, photos []string, note string) []intakeResult {
	results := make([]intakeResult, len(photos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelUploads)
	for i, photo := range photos {
		g.Go(func() error {
			r := intakeResult{photo: photo}
			resp, err := client.upload(gctx, "/intake", photo, map[string]string{"note": note})
			if err == nil {
				var accepted struct {
					ID string `json:"id"`
				}
				err = decodeJSON(resp, &accepted)
				r.draftID = accepted.ID
			}
			r.err = err
			results[i] = r
			return nil
		})
	}
	g.Wait()
	return results
}

func init() {
	intakeCmd.Flags().String("note", "", "note attached to every photo")
}

// --- drafts ---

var draftsCmd = &cobra.Command{
	Use:   "drafts",
	Short: "Review items extracted by batch intake",
}

var draftsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List drafts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/drafts")
		if err != nil {
			return err
		}
		var drafts []intake.Draft
		if err := decodeJSON(resp, &drafts); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(drafts) == 0 {
			fmt.Fprintln(out, "No drafts.")
			return nil
		}
		for _, d := range drafts {
			writeDraftLine(out, d)
		}
		return nil
	},
}

func writeDraftLine(w io.Writer, d intake.Draft) {
	id := colorize(colorCyan, shortID(d.ID))
	switch {
	case d.Item != nil:
		fmt.Fprintf(w, "%s  %-7s  %s  %s\n", id, d.Status, colorize(colorBold, d.Item.Name), colorize(colorDim, d.Item.Category))
	case d.Error != "":
		fmt.Fprintf(w, "%s  %-7s  %s\n", id, d.Status, colorize(colorRed, d.Error))
	default:
		fmt.Fprintf(w, "%s  %-7s  %s\n", id, d.Status, d.Note)
	}
}

var draftsConfirmCmd = &cobra.Command{
	Use:   "confirm <id>",
	Short: "Add a ready draft to the inventory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/drafts/"+url.PathEscape(args[0])+"/confirm", patchFromFlags(cmd))
		if err != nil {
			return err
		}
		var it inventory.Item
		if err := decodeJSON(resp, &it); err != nil {
			return err
		}
		printSuccess("Added %s (%s)", it.Name, it.ID)
		return nil
	},
}

var draftsDiscardCmd = &cobra.Command{
	Use:   "discard <id>",
	Short: "Drop a draft and its photo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/drafts/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Discarded draft %s", args[0])
		return nil
	},
}

func init() {
	addItemFlags(draftsConfirmCmd)
	draftsCmd.AddCommand(draftsListCmd)
	draftsCmd.AddCommand(draftsConfirmCmd)
	draftsCmd.AddCommand(draftsDiscardCmd)
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find items matching a plain-language request",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		category, _ := cmd.Flags().GetString("category")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/search", map[string]string{
			"query":    query,
			"category": category,
		})
		if err != nil {
			return err
		}
		var matches []inventory.Match
		if err := decodeJSON(resp, &matches); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(matches) == 0 {
			fmt.Fprintln(out, "No matching items.")
			return nil
		}
		for i, m := range matches {
			writeMatch(out, i+1, m)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().String("category", "", "search only this exact category")
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the inventory as a JSON document",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		items, err := listItems(cmd.Context(), client, "")
		if err != nil {
			return err
		}
		data, err := inventory.MarshalItems(items)
		if err != nil {
			return err
		}

		if output == "" {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		}
		if err := os.WriteFile(output, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		printSuccess("Exported %d items to %s", len(items), output)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("output", "", "output file path (default: stdout)")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		if cfg.HasAPIKey() {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, "gemini.api_key"), "(set)")
		} else {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, "gemini.api_key"), "(missing)")
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value.\n\nKeys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-key",
	Short: "Store the Gemini API key in the secret store (read from stdin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := readSecret(cmd.InOrStdin())
		if err != nil {
			return err
		}
		if err := config.SetAPIKey(config.NewKeychain(), key); err != nil {
			return err
		}
		printSuccess("Gemini API key stored; restart the server to use it")
		return nil
	},
}

func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading key: %w", err)
	}
	key := strings.TrimSpace(line)
	if key == "" {
		return "", fmt.Errorf("no key given on stdin")
	}
	return key, nil
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetKeyCmd)
}
