package inference

import (
	"context"
	"errors"
	"image"
	"sync"
)

var (
	// ErrModelLoad is returned when a model artifact cannot be loaded.
	ErrModelLoad = errors.New("model load failed")

	// ErrInference is returned when the model cannot process an image.
	ErrInference = errors.New("inference failed")
)

// RawDetection is one detection as emitted by the model, before label normalization.
type RawDetection struct {
	// ClassID is the model's internal class index.
	ClassID int `json:"class_id"`

	// Label is the model's class name. It may be empty, in which case callers
	// resolve ClassID through Model.Names.
	Label string `json:"label"`

	// Confidence is the detection score in [0, 1].
	Confidence float64 `json:"confidence"`

	// Box is (x_min, y_min, x_max, y_max) in pixel coordinates.
	Box [4]float64 `json:"box"`
}

// Model is a loaded object-detection model.
type Model interface {
	// Predict runs the detector once on img. Confidence filtering and overlap
	// suppression happen inside the model using conf and iou.
	Predict(ctx context.Context, img image.Image, conf, iou float64) ([]RawDetection, error)

	// Names maps internal class ids to label strings.
	Names() map[int]string
}

// serialized guards a Model whose backend is not safe for concurrent calls.
type serialized struct {
	mu    sync.Mutex
	model Model
}

// Serialize returns a Model that forwards to m while allowing only one Predict
// call at a time.
func Serialize(m Model) Model {
	if s, ok := m.(*serialized); ok {
		return s
	}
	return &serialized{model: m}
}

func (s *serialized) Predict(ctx context.Context, img image.Image, conf, iou float64) ([]RawDetection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model.Predict(ctx, img, conf, iou)
}

func (s *serialized) Names() map[int]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model.Names()
}
