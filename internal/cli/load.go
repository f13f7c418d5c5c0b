package cli

import (
	"github.com/spf13/cobra"

	"github.com/okian/framecoach/internal/loadtest"
	"github.com/okian/framecoach/pkg/logger"
)

func newLoadCmd() *cobra.Command {
	cfg := loadtest.DefaultConfig()
	var (
		mode    string
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load test a running service",
		Long: `Submit frames for many sessions concurrently, then check that each
session settles on its newest frame.

Examples:
  advise load
  advise load --url http://localhost:8080 --sessions 200 --frames 10 --workers 32`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := parseMode(mode)
			if err != nil {
				return err
			}
			cfg.Mode = m

			if err := logger.Init(logger.WithWriter(cmd.ErrOrStderr())); err != nil {
				return err
			}
			level := "info"
			if verbose {
				level = "debug"
			}
			_ = logger.SetLevelString(level)

			stats, runErr := loadtest.Run(cmd.Context(), cfg, loadtest.WithLogger(logger.Named("load")))
			if err := write(cmd, stats); err != nil {
				return err
			}
			return runErr
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "base URL of the service")
	f.IntVar(&cfg.Sessions, "sessions", cfg.Sessions, "concurrent sessions")
	f.IntVar(&cfg.Frames, "frames", cfg.Frames, "frames per session")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "sessions driven at once")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "per-request timeout")
	f.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "delay between session polls")
	f.DurationVar(&cfg.PollTimeout, "poll-timeout", cfg.PollTimeout, "how long a session may take to settle")
	f.StringVarP(&mode, "mode", "m", cfg.Mode.String(), "shooting mode of every frame")
	f.BoolVarP(&verbose, "verbose", "v", false, "log every failed request")
	return cmd
}
