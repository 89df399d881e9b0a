package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"strconv"

	"github.com/ironsheep/cellcount-mcp/internal/classes"
	"github.com/ironsheep/cellcount-mcp/internal/imaging"
	"github.com/ironsheep/cellcount-mcp/internal/inference"
)

// ErrInvalidInput is returned when thresholds or the image are rejected before
// the model is invoked.
var ErrInvalidInput = errors.New("invalid input")

const (
	// DefaultConfThreshold is the confidence threshold used when none is configured.
	DefaultConfThreshold = 0.25

	// DefaultIOUThreshold is the overlap threshold used when none is configured.
	DefaultIOUThreshold = 0.45
)

// Box is a bounding box in pixel coordinates.
type Box struct {
	X1 float64 `json:"x1"` // Left edge
	Y1 float64 `json:"y1"` // Top edge
	X2 float64 `json:"x2"` // Right edge
	Y2 float64 `json:"y2"` // Bottom edge
}

// Width returns X2 - X1.
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height returns Y2 - Y1.
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// Detection is one normalized detection.
type Detection struct {
	// Label is the normalized label. Unknown raw labels pass through unchanged.
	Label string `json:"class"`

	// Class is the counted class, or classes.Unrecognized.
	Class classes.Class `json:"-"`

	// Confidence is the model's score in [0, 1].
	Confidence float64 `json:"confidence"`

	// Box is the detection's bounding box.
	Box Box `json:"bbox"`
}

// Options controls a single Detect call.
type Options struct {
	// ConfThreshold is passed to the model for confidence filtering. Range [0, 1].
	ConfThreshold float64

	// IOUThreshold is passed to the model for overlap suppression. Range [0, 1].
	IOUThreshold float64

	// ShowLabels draws the class name next to each box.
	ShowLabels bool

	// ShowConf draws the confidence next to each box.
	ShowConf bool

	// LineWidth is the box outline width; zero means imaging.DefaultLineWidth.
	LineWidth int
}

// DefaultOptions returns the thresholds and display flags used by the batch tool.
func DefaultOptions() Options {
	return Options{
		ConfThreshold: DefaultConfThreshold,
		IOUThreshold:  DefaultIOUThreshold,
		ShowLabels:    true,
		ShowConf:      true,
		LineWidth:     imaging.DefaultLineWidth,
	}
}

// Validate checks the thresholds.
func (o Options) Validate() error {
	if err := checkUnit("confidence threshold", o.ConfThreshold); err != nil {
		return err
	}
	return checkUnit("IoU threshold", o.IOUThreshold)
}

func checkUnit(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%w: %s %v outside [0,1]", ErrInvalidInput, name, v)
	}
	return nil
}

// Result is the outcome of running detection on one image.
//
// Counts always contains the three known classes. Percentages sum to 100 when any
// known class was detected and are all zero otherwise. A Result is not modified
// after Detect returns.
type Result struct {
	Filename    string              `json:"filename"`
	Original    *image.RGBA         `json:"-"`
	Annotated   *image.RGBA         `json:"-"`
	Counts      classes.Counts      `json:"counts"`
	Percentages classes.Percentages `json:"percentages"`
	Detections  []Detection         `json:"detections"`
}

// Total returns the number of counted detections.
func (r *Result) Total() int {
	return r.Counts.Total()
}

// Unrecognized returns the number of detections whose label is not a known class.
func (r *Result) Unrecognized() int {
	n := 0
	for _, d := range r.Detections {
		if !d.Class.IsKnown() {
			n++
		}
	}
	return n
}

// Detect runs model on img and builds the per-image result.
//
// Parameters:
//   - model: A loaded model. Must not be nil.
//   - filename: Recorded on the result; used later for export names.
//   - img: The input image. It is copied and never modified.
//   - opts: Thresholds and overlay flags.
//
// Returns:
//   - *Result: Counts, percentages, detections in model order, and overlay.
//   - error: Wraps ErrInvalidInput when rejected up front, or
//     inference.ErrInference when the model fails.
func Detect(ctx context.Context, model inference.Model, filename string, img image.Image, opts Options) (*Result, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: nil model", ErrInvalidInput)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidInput)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: image has zero area (%dx%d)", ErrInvalidInput, b.Dx(), b.Dy())
	}

	original := imaging.ToRGB(img)

	raw, err := model.Predict(ctx, original, opts.ConfThreshold, opts.IOUThreshold)
	if err != nil {
		if errors.Is(err, inference.ErrInference) {
			return nil, fmt.Errorf("detect %s: %w", filename, err)
		}
		return nil, fmt.Errorf("detect %s: %w: %w", filename, inference.ErrInference, err)
	}

	var names map[int]string
	counts := classes.NewCounts()
	detections := make([]Detection, 0, len(raw))

	for _, r := range raw {
		label := r.Label
		if label == "" {
			if names == nil {
				names = model.Names()
			}
			label = names[r.ClassID]
		}

		class := classes.Parse(label)
		counts.Add(class)

		detections = append(detections, Detection{
			Label:      classes.Normalize(label),
			Class:      class,
			Confidence: r.Confidence,
			Box:        Box{X1: r.Box[0], Y1: r.Box[1], X2: r.Box[2], Y2: r.Box[3]},
		})
	}

	annotated := imaging.ToRGB(original)
	imaging.DrawOverlay(annotated, overlayBoxes(detections, opts), opts.LineWidth)

	return &Result{
		Filename:    filename,
		Original:    original,
		Annotated:   annotated,
		Counts:      counts,
		Percentages: counts.Percentages(),
		Detections:  detections,
	}, nil
}

// overlayBoxes converts detections into overlay boxes with their label text.
func overlayBoxes(detections []Detection, opts Options) []imaging.OverlayBox {
	boxes := make([]imaging.OverlayBox, 0, len(detections))
	for _, d := range detections {
		boxes = append(boxes, imaging.OverlayBox{
			X1:    d.Box.X1,
			Y1:    d.Box.Y1,
			X2:    d.Box.X2,
			Y2:    d.Box.Y2,
			Color: imaging.ClassColor(d.Class, d.Label),
			Text:  labelText(d, opts),
		})
	}
	return boxes
}

// labelText builds "RBC 0.87", "RBC", "0.87" or "" depending on the flags.
func labelText(d Detection, opts Options) string {
	conf := strconv.FormatFloat(d.Confidence, 'f', 2, 64)
	switch {
	case opts.ShowLabels && opts.ShowConf:
		return d.Label + " " + conf
	case opts.ShowLabels:
		return d.Label
	case opts.ShowConf:
		return conf
	default:
		return ""
	}
}
