package main

import (
	"github.com/spf13/cobra"

	"github.com/storyworks/analyzerd/internal/config"
)

func rootCmd() *cobra.Command {
	c := &cobra.Command{
		Use:     "analyzerd",
		Short:   "HTTP server for running repository analysis jobs with streamed output",
		Example: "analyzerd --debug",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			applyFlags(cmd, &cfg)

			if err := cfg.Validate(); err != nil {
				return err
			}

			return runServer(cmd.Context(), &cfg)
		},
	}

	c.Flags().String("host", "", "Host to bind (overrides ANALYZERD_HOST)")
	c.Flags().String("port", "", "Port to bind (overrides ANALYZERD_PORT)")
	c.Flags().String("worker-bin", "", "Analyzer worker executable (overrides ANALYZERD_WORKER_BIN)")
	c.Flags().String("cache-dir", "", "Precomputed artifact directory (overrides ANALYZERD_CACHE_DIR)")
	c.Flags().Bool("debug", false, "Enable debug logs")

	return c
}

// applyFlags lets explicitly-set flags take precedence over the
// environment.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Host, _ = cmd.Flags().GetString("host")
	}

	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetString("port")
	}

	if cmd.Flags().Changed("worker-bin") {
		cfg.WorkerBin, _ = cmd.Flags().GetString("worker-bin")
	}

	if cmd.Flags().Changed("cache-dir") {
		cfg.CacheDir, _ = cmd.Flags().GetString("cache-dir")
	}

	if cmd.Flags().Changed("debug") {
		cfg.Debug, _ = cmd.Flags().GetBool("debug")
	}
}
