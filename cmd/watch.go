// File: cmd/watch.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marketpilot/internal/observability"
	"github.com/xkilldash9x/marketpilot/internal/threadstate"
	"github.com/xkilldash9x/marketpilot/internal/triage"
)

// newWatchCmd creates the `watch` command: the triage loop.
func newWatchCmd(factory driverFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Answer buyer messages, one conversation per pass, until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			threads := threadstate.Open(cfg.State.Path, logger)
			items := openCatalog(cfg, logger)

			driver, cleanup, err := factory(ctx, cfg, logger)
			defer cleanup()
			if err != nil {
				return fmt.Errorf("failed to open browser: %w", err)
			}
			if err := signIn(ctx, driver, cfg, logger); err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			if cfg.Triage.DryRun {
				logger.Warn("Dry run: replies are logged, not sent, and nothing is written.")
			}
			out := cmd.OutOrStdout()
			t := triage.New(driver, threads, items, logger, triage.FromConfig(cfg.Triage)...)
			runner := triage.NewRunner(t, cfg.Triage.Interval, logger,
				triage.WithMaxPasses(cfg.Triage.MaxPasses),
				triage.WithPassObserver(func(res triage.Result, err error) {
					if err != nil {
						return
					}
					fmt.Fprintf(out, "%s\t%s\t%s\n", res.PassID, res.Outcome, res.ThreadID)
					if res.Reply != "" {
						logger.Debug("Pass reply.", zap.String("pass_id", res.PassID), zap.String("reply", res.Reply))
					}
				}),
			)
			return runner.Run(ctx)
		},
	}

	flags := cmd.Flags()
	flags.Bool("dry-run", false, "compute replies without sending them or writing any state")
	flags.Int("max-passes", 0, "stop after this many passes (0 runs until interrupted)")
	flags.Duration("interval", 0, "time between passes")
	flags.String("list-mode", "", "conversations to scan: marketplace or all")
	flags.Int("scan-depth", 0, "candidates to try per pass before giving up")
	bindFlag(cmd, "dry-run", "triage.dry_run")
	bindFlag(cmd, "max-passes", "triage.max_passes")
	bindFlag(cmd, "interval", "triage.interval")
	bindFlag(cmd, "list-mode", "triage.list_mode")
	bindFlag(cmd, "scan-depth", "triage.scan_depth")
	return cmd
}
