// Command focusgate-observer is the read-only widget and live-activity
// process. It reads the shared snapshot directory written by focusgate and
// never changes session state.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"focusgate/internal/clock"
	"focusgate/internal/logging"
	"focusgate/internal/observer"
	"focusgate/internal/snapshot"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	dir      string
	logLevel string
	asJSON   bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "focusgate-observer",
		Short:         "Read-only view of the focusgate session state",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.dir, "dir", envOr("FOCUSGATE_SNAPSHOT_DIR", "./snapshots"), "snapshot directory")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print raw JSON instead of a card")

	root.AddCommand(newStatusCmd(opts))
	root.AddCommand(newProfilesCmd(opts))
	root.AddCommand(newHistoryCmd(opts))
	root.AddCommand(newWatchCmd(opts))
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (o *rootOptions) logger(w io.Writer) *slog.Logger {
	return logging.NewLogger(logging.LoggerConfig{
		Format: "text",
		Level:  logging.ParseLevel(o.logLevel),
		Output: w,
	})
}

// open returns a reader over the snapshot directory, creating it when
// focusgate has not run yet
func (o *rootOptions) open(logger *slog.Logger) (snapshot.Reader, error) {
	kv, err := snapshot.NewFileKV(o.dir)
	if err != nil {
		return nil, fmt.Errorf("open snapshot dir %s: %w", o.dir, err)
	}
	return snapshot.NewStore(kv, logger), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reader, err := opts.open(opts.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			view, err := observer.Build(reader, time.Now())
			if err != nil {
				return err
			}
			if opts.asJSON {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), observer.RenderCard(view))
			return nil
		},
	}
}

func newProfilesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the profile directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reader, err := opts.open(opts.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			profiles, err := reader.ListProfiles()
			if err != nil {
				return err
			}
			if opts.asJSON {
				for i := range profiles {
					profiles[i].StrategyData = ""
				}
				return writeJSON(cmd.OutOrStdout(), profiles)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), observer.RenderProfiles(profiles))
			return nil
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently completed sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reader, err := opts.open(opts.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			completed, err := reader.ListCompletedSessions()
			if err != nil {
				return err
			}
			if limit > 0 && len(completed) > limit {
				completed = completed[len(completed)-limit:]
			}
			if opts.asJSON {
				return writeJSON(cmd.OutOrStdout(), completed)
			}

			names := make(map[string]string)
			// a missing directory only costs the display names
			if profiles, err := reader.ListProfiles(); err == nil {
				for _, p := range profiles {
					names[p.ID] = p.Name
				}
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), observer.RenderHistory(completed, names, time.Local))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of sessions to show (0 for all)")
	return cmd
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	config := observer.DefaultWatcherConfig()

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Render the live activity card until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Validate(); err != nil {
				return err
			}
			logger := opts.logger(cmd.ErrOrStderr())
			reader, err := opts.open(logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			renderer := observer.NewCardRenderer(cmd.OutOrStdout(), true)
			watcher := observer.NewWatcher(reader, renderer, clock.RealClock{}, config, logger)
			watcher.Start(ctx)
			return nil
		},
	}
	cmd.Flags().DurationVar(&config.Interval, "interval", config.Interval, "poll interval")
	cmd.Flags().DurationVar(&config.GracePeriod, "grace-period", config.GracePeriod, "how long to keep the last view while reads fail")
	return cmd
}
