package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/cellcount-mcp/internal/classes"
	"github.com/ironsheep/cellcount-mcp/internal/detection"
	"github.com/ironsheep/cellcount-mcp/internal/imaging"
	"github.com/ironsheep/cellcount-mcp/internal/inference"
	"github.com/ironsheep/cellcount-mcp/internal/stats"
)

// Failure records an image that was skipped.
type Failure struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
	Err      error  `json:"-"`
	Message  string `json:"error"`
}

func (f Failure) Error() string {
	return f.Filename + ": " + f.Message
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Report is the outcome of a batch run.
type Report struct {
	// Results holds one entry per successfully processed image, in input order.
	Results []*detection.Result `json:"results"`

	// Failures lists skipped images, in input order.
	Failures []Failure `json:"failures,omitempty"`

	// Metrics aggregates Results.
	Metrics stats.BatchMetrics `json:"metrics"`

	// Elapsed is the wall time of the run.
	Elapsed time.Duration `json:"elapsed_ns"`
}

// Runner drives detection over many images.
type Runner struct {
	// Model is shared by every worker. Required.
	Model inference.Model

	// Options are passed unchanged to every Detect call.
	Options detection.Options

	// Workers bounds the number of images in flight. Zero means GOMAXPROCS.
	Workers int

	// ConcurrentModel declares Model safe for concurrent Predict calls. When false
	// the runner serializes calls into the model.
	ConcurrentModel bool

	// Logger receives per-image progress and skip messages. Nil discards them.
	Logger *slog.Logger
}

// Run processes paths and returns the report.
//
// Invalid options or a nil model are rejected before any image is touched. A
// per-image decode or inference failure is logged, recorded in Report.Failures
// and does not stop the batch. When ctx is cancelled no new images are started;
// Run waits for in-flight images and returns the partial report with ctx.Err().
func (r *Runner) Run(ctx context.Context, paths []string) (*Report, error) {
	if r.Model == nil {
		return nil, fmt.Errorf("%w: nil model", detection.ErrInvalidInput)
	}
	if err := r.Options.Validate(); err != nil {
		return nil, err
	}

	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	model := r.Model
	if !r.ConcurrentModel {
		model = inference.Serialize(model)
	}
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	start := time.Now()
	results := make([]*detection.Result, len(paths))
	failures := make([]*Failure, len(paths))

	var g errgroup.Group
	g.SetLimit(workers)

	for i, path := range paths {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res, err := processOne(ctx, model, path, r.Options)
			if err != nil {
				if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
					return nil
				}
				logger.Warn("skipping image", "filename", filepath.Base(path), "error", err)
				failures[i] = &Failure{Path: path, Filename: filepath.Base(path), Err: err, Message: err.Error()}
				return nil
			}
			logger.Info("processed image",
				"filename", res.Filename,
				"total", res.Total(),
				"rbc", res.Counts.Get(classes.RBC),
				"wbc", res.Counts.Get(classes.WBC),
				"platelets", res.Counts.Get(classes.Platelets))
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{}
	for i := range paths {
		if results[i] != nil {
			report.Results = append(report.Results, results[i])
		}
		if failures[i] != nil {
			report.Failures = append(report.Failures, *failures[i])
		}
	}
	report.Metrics = stats.Aggregate(report.Results)
	report.Elapsed = time.Since(start)

	logger.Info("batch complete",
		"images", len(paths),
		"processed", len(report.Results),
		"failed", len(report.Failures),
		"elapsed", report.Elapsed)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func processOne(ctx context.Context, model inference.Model, path string, opts detection.Options) (*detection.Result, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, err
	}
	return detection.Detect(ctx, model, filepath.Base(path), img, opts)
}
