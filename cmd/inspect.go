// File: cmd/inspect.go
package cmd

import (
	"fmt"
	"io"
	"strconv"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/marketpilot/internal/catalog"
	"github.com/xkilldash9x/marketpilot/internal/observability"
	"github.com/xkilldash9x/marketpilot/internal/threadstate"
)

// newInspectCmd creates the read-only `inspect` command group.
func newInspectCmd() *cobra.Command {
	var asJSON bool
	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Show the thread state or the catalog without touching the browser",
	}
	inspect.PersistentFlags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")

	inspect.AddCommand(&cobra.Command{
		Use:   "threads",
		Short: "List every tracked conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			store := threadstate.Open(cfg.State.Path, observability.GetLogger())
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), store.Snapshot())
			}
			printThreads(cmd.OutOrStdout(), store)
			return nil
		},
	})

	inspect.AddCommand(&cobra.Command{
		Use:   "items",
		Short: "List catalog items with price, floor and status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			items := openCatalog(cfg, observability.GetLogger()).Items()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), items)
			}
			printItems(cmd.OutOrStdout(), items)
			return nil
		},
	})
	return inspect
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printThreads(w io.Writer, store *threadstate.Store) {
	snapshot := store.Snapshot()
	fmt.Fprintf(w, "%-20s %-20s %-6s %-12s %s\n", "THREAD", "BUYER", "ITEM", "LAST", "REPLIED")
	for _, id := range store.ThreadIDs() {
		s := snapshot[id]
		item := "-"
		if s.ItemID != nil {
			item = strconv.Itoa(*s.ItemID)
		}
		replied := s.LastMessageHash != "" && s.LastMessageHash == s.LastRepliedHash
		fmt.Fprintf(w, "%-20s %-20s %-6s %-12s %t\n", id, orDash(s.BuyerName), item, shortHash(s.LastMessageHash), replied)
	}
}

func printItems(w io.Writer, items []catalog.Item) {
	fmt.Fprintf(w, "%-6s %-32s %-9s %-9s %-15s %s\n", "ID", "TITLE", "PRICE", "BOTTOM", "STATUS", "PHOTOS")
	for _, it := range items {
		fmt.Fprintf(w, "%-6d %-32s %-9s %-9s %-15s %d\n",
			it.ID, truncate(it.Title, 32), money(it.Price), money(it.Bottom), orDash(string(it.Status)), len(it.Photos))
	}
}

func money(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func shortHash(h string) string {
	if h == "" {
		return "-"
	}
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
