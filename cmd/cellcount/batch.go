package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ironsheep/cellcount-mcp/internal/batch"
	"github.com/ironsheep/cellcount-mcp/internal/detection"
)

type batchFlags struct {
	input         string
	output        string
	saveAnnotated bool
	saveCSV       bool
}

func batchCommand(a *app) *cobra.Command {
	var f batchFlags

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Count cells in every image of a directory",
		Long: `Runs detection on every .jpg, .jpeg and .png file directly inside the input
directory, prints a summary of the batch, and optionally writes annotated
overlays (<name>_annotated.png) and results.csv to the output directory.

Images that fail to decode or that the model rejects are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBatch(cmd.Context(), cmd.OutOrStdout(), f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.input, "input", "i", "", "Directory with input images")
	fl.StringVarP(&f.output, "output", "o", "", "Directory for results")
	fl.Float64P("conf", "c", detection.DefaultConfThreshold, "Confidence threshold")
	fl.Float64("iou", detection.DefaultIOUThreshold, "IoU threshold")
	fl.BoolVar(&f.saveAnnotated, "save-annotated", false, "Save annotated images")
	fl.BoolVar(&f.saveCSV, "save-csv", false, "Save results to results.csv")
	fl.Int("workers", 0, "Images processed in parallel (0 = number of CPUs)")
	fl.Bool("concurrent-model", false, "The model service accepts parallel requests")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func (a *app) runBatch(ctx context.Context, out io.Writer, f batchFlags) error {
	if info, err := os.Stat(f.input); err != nil || !info.IsDir() {
		return fmt.Errorf("input directory does not exist: %s", f.input)
	}

	model, err := a.loadModel(ctx)
	if err != nil {
		return err
	}

	paths, err := batch.ListImages(f.input)
	if err != nil {
		return err
	}

	opts := a.settings.DetectOptions()
	fmt.Fprintf(out, "Found %d images in %s\n", len(paths), f.input)
	fmt.Fprintf(out, "  Confidence: %g\n", opts.ConfThreshold)
	fmt.Fprintf(out, "  IOU: %g\n", opts.IOUThreshold)

	runner := &batch.Runner{
		Model:           model,
		Options:         opts,
		Workers:         a.settings.Batch.Workers,
		ConcurrentModel: a.settings.Batch.ConcurrentModel,
		Logger:          a.logger,
	}
	report, runErr := runner.Run(ctx, paths)
	if report == nil {
		return runErr
	}

	if err := batch.WriteSummary(out, report); err != nil {
		return err
	}

	if f.saveAnnotated || f.saveCSV {
		written, err := batch.WriteOutputs(report, f.output, f.saveAnnotated, f.saveCSV)
		if err != nil {
			return err
		}
		if f.saveCSV {
			fmt.Fprintf(out, "CSV saved to: %s\n", written[len(written)-1])
		}
		if f.saveAnnotated {
			fmt.Fprintf(out, "Annotated images saved to: %s\n", f.output)
		}
	}

	return runErr
}
