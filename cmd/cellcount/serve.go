package main

import (
	"github.com/spf13/cobra"

	"github.com/ironsheep/cellcount-mcp/internal/inference"
	"github.com/ironsheep/cellcount-mcp/internal/server"
)

func serveCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdin/stdout",
		Long: `Starts an MCP (Model Context Protocol) server speaking JSON-RPC 2.0 over
stdin/stdout, exposing cell detection, batch metrics and export as tools.

If the model cannot be loaded the server still starts; detection tools then
report an error while label normalization keeps working.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var model inference.Model
			client, err := a.loadModel(ctx)
			if err != nil {
				a.logger.Warn("model not loaded, detection tools disabled", "error", err)
			} else {
				model = client
			}

			srv := server.New(model, server.Config{
				Options:         a.settings.DetectOptions(),
				Workers:         a.settings.Batch.Workers,
				ConcurrentModel: a.settings.Batch.ConcurrentModel,
				ResultTTL:       a.settings.Server.ResultTTL,
				Version:         Version,
				Logger:          a.logger,
			})
			return srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().Duration("result-ttl", server.DefaultResultTTL, "How long results stay available to metrics and export tools")
	cmd.Flags().Int("workers", 0, "Images processed in parallel by cell_batch (0 = number of CPUs)")
	cmd.Flags().Bool("concurrent-model", false, "The model service accepts parallel requests")

	return cmd
}
