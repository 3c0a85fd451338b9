// File: cmd/post.go
package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/marketpilot/internal/catalog"
	"github.com/xkilldash9x/marketpilot/internal/listing"
	"github.com/xkilldash9x/marketpilot/internal/observability"
)

// newPostCmd creates the `post` command: fill the listing form for one item.
func newPostCmd(factory driverFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post <item-id>",
		Short: "Fill and submit the listing form for a catalog item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid item id %q: %w", args[0], err)
			}
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			items := openCatalog(cfg, logger)
			if _, ok := items.FindByID(id); !ok {
				return fmt.Errorf("%w: %d", catalog.ErrItemNotFound, id)
			}

			driver, cleanup, err := factory(ctx, cfg, logger)
			defer cleanup()
			if err != nil {
				return fmt.Errorf("failed to open browser: %w", err)
			}
			if err := signIn(ctx, driver, cfg, logger); err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			report, fillErr := listing.New(driver, items, logger, cfg.Listing).Fill(ctx, id)
			printListingReport(cmd.OutOrStdout(), report)
			return fillErr
		},
	}
	cmd.Flags().String("condition", "", "condition option to pick on the form")
	cmd.Flags().String("posted-policy", "", "when to mark the item Posted: always or published")
	bindFlag(cmd, "condition", "listing.condition")
	bindFlag(cmd, "posted-policy", "listing.posted_policy")
	return cmd
}

func printListingReport(w io.Writer, r listing.Report) {
	fmt.Fprintf(w, "Item %d: %s\n", r.ItemID, r.Title)
	for _, s := range r.Steps {
		line := fmt.Sprintf("  %-12s %-8s", s.Step, s.State)
		if s.Attempts > 1 {
			line += fmt.Sprintf(" attempts=%d", s.Attempts)
		}
		if s.Detail != "" {
			line += " " + s.Detail
		}
		if s.Err != nil {
			line += " error=" + s.Err.Error()
		}
		fmt.Fprintln(w, line)
	}
	status := string(r.Status)
	if status == "" {
		status = "unchanged"
	}
	fmt.Fprintf(w, "Published: %t  Status: %s\n", r.Published, status)
}
