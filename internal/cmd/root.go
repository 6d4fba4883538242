package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tigerand/mchown/internal/config"
	"github.com/tigerand/mchown/internal/hostinfo"
	"github.com/tigerand/mchown/internal/identity"
	"github.com/tigerand/mchown/internal/logger"
	"github.com/tigerand/mchown/internal/metrics"
	"github.com/tigerand/mchown/mchown"
	"github.com/tigerand/mchown/version"
)

// NewRootCmd creates the mchown command. Run with three arguments it changes
// ownership of a tree; the utility subcommands hang off it.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mchown <path> <user> <group>",
		Short: "mchown - change ownership of a directory tree with many workers",
		Long: `mchown recursively changes the owner and group of everything under <path>,
like chown -R, but spreads the directories across a pool of workers.

<user> and <group> may be numeric ids or names. Symbolic links are changed
themselves and never followed. The pool defaults to 90% of the online CPUs;
-n only lowers it.

A <path> that has the name of a subcommand (count, seed) must be written
after "--" or with a directory prefix:

  mchown -- count 1000 1000
  mchown ./count 1000 1000

Environment:
  MCHOWN_THREADS        same as -n
  MCHOWN_DEBUG          same as -d
  MCHOWN_LOG_LEVEL      same as --log-level
  MCHOWN_METRICS_FILE   same as --metrics-file`,
		Version:      version.GetFullVersion(),
		Args:         cobra.ExactArgs(3),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags(), args, hostinfo.DefaultThreads(hostinfo.OnlineCPUs()))
			if err != nil {
				return err
			}
			return runChown(cmd.Context(), cmd, cfg)
		},
	}

	rootCmd.Flags().IntP(config.FlagThreads, "n", 0, "Number of workers (only honoured below the default)")
	rootCmd.Flags().BoolP(config.FlagDebug, "d", false, "Enable debug logging")
	rootCmd.Flags().String(config.FlagLogLevel, "", "Log level: debug, info, warn or error")
	rootCmd.Flags().String(config.FlagMetricsFile, "", "Write run metrics to this file in Prometheus textfile format")

	groupUtilities := "utilities"
	rootCmd.AddGroup(&cobra.Group{
		ID:    groupUtilities,
		Title: "Utility Commands",
	})

	countCmd := NewCountCmd()
	seedCmd := NewSeedCmd()
	countCmd.GroupID = groupUtilities
	seedCmd.GroupID = groupUtilities

	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(seedCmd)

	return rootCmd
}

func runChown(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger.SetLevel(cfg.Level)

	uid, err := identity.UID(cfg.User)
	if err != nil {
		return err
	}
	gid, err := identity.GID(cfg.Group)
	if err != nil {
		return err
	}

	if err := hostinfo.RaiseOpenFileLimit(cfg.Threads); err != nil {
		return err
	}

	runID := uuid.NewString()
	logger.Debug("run %s: %s to %d:%d with %d workers", runID, cfg.Path, uid, gid, cfg.Threads)

	pool, err := mchown.NewPool(ctx, mchown.Options{Workers: cfg.Threads})
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}
	defer pool.Close()

	sum, runErr := pool.Run(cfg.Path, uid, gid)
	fatal := runErr != nil && (pool.Aborted() || ctx.Err() != nil || errors.Is(runErr, mchown.ErrPoolClosed))

	reportSummary(cmd, sum)

	if cfg.MetricsFile != "" {
		m := metrics.New()
		m.Record(runID, cfg.Path, cfg.Threads, sum, !fatal)
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Error("%v", err)
		}
	}

	if fatal {
		return fmt.Errorf("traversal of %s did not complete: %w", cfg.Path, runErr)
	}
	if runErr != nil {
		logger.Warn("some directories were skipped: %v", runErr)
	}
	return nil
}

func reportSummary(cmd *cobra.Command, sum mchown.Summary) {
	s := sum.Stats
	fmt.Fprintf(cmd.OutOrStdout(), "files processed: %d\n", s.Processed())
	logger.Info("%s changed, %s already correct, %s failed in %s",
		humanize.Comma(int64(s.Changed())),
		humanize.Comma(int64(s.FilesUnchanged+s.DirsUnchanged)),
		humanize.Comma(int64(s.Failures)),
		sum.Elapsed.Round(time.Millisecond))
	logger.Debug("%d directories queued, %d walked in place", s.DirsQueued, s.Fallbacks)
}
