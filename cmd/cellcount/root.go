package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ironsheep/cellcount-mcp/internal/config"
	"github.com/ironsheep/cellcount-mcp/internal/inference"
	"github.com/ironsheep/cellcount-mcp/internal/logging"
)

// app carries state shared by all subcommands once flags are parsed.
type app struct {
	v          *viper.Viper
	configFile string
	settings   *config.Settings
	logger     *slog.Logger
}

func rootCommand() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:   "cellcount",
		Short: "Blood-cell counting on microscope images",
		Long: `cellcount detects red blood cells, white blood cells and platelets in
microscope images using a pretrained detector behind a model-serving process,
and reports per-image and batch counts, annotated overlays and CSV tables.

Settings come from flags, CELLCOUNT_* environment variables (for example
CELLCOUNT_MODEL_ENDPOINT) and an optional cellcount.yaml, in that order.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "Config file (default ./cellcount.yaml)")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.StringP("model", "m", "models/best.pt", "Path to the detector weights")
	pf.String("endpoint", "http://127.0.0.1:8765", "Base URL of the model-serving process")
	pf.Duration("timeout", inference.DefaultTimeout, "Per-request timeout for the model service")

	root.AddCommand(batchCommand(a), serveCommand(a), versionCommand())
	return root
}

// init loads settings and builds the logger. Logs go to stderr so stdout stays
// free for the batch summary or the MCP stream.
func (a *app) init(cmd *cobra.Command) error {
	if err := config.BindFlags(a.v, cmd.Flags()); err != nil {
		return err
	}
	settings, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	logger, err := logging.New(cmd.ErrOrStderr(), settings.Log.Level)
	if err != nil {
		return err
	}

	a.settings = settings
	a.logger = logger
	a.logger.Debug("cellcount starting", "version", Version, "built", BuildTime, "commit", GitCommit)
	return nil
}

// loadModel asks the model service to load the configured weights.
func (a *app) loadModel(ctx context.Context) (*inference.Client, error) {
	cfg := a.settings.ClientConfig()
	a.logger.Info("loading model", "path", cfg.ModelPath, "endpoint", cfg.Endpoint)

	client, err := inference.Load(ctx, cfg)
	if err != nil {
		return nil, err
	}
	info := client.Info()
	a.logger.Info("model loaded", "type", info.ModelType, "classes", client.ClassList())
	return client, nil
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cellcount %s\n", Version)
			fmt.Fprintf(out, "  Build time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git commit: %s\n", GitCommit)
			return nil
		},
	}
}
