// Package inference defines the narrow interface through which the pipeline reaches
// an object-detection model, and an HTTP client for a model-serving sidecar.
//
// The model is a black box. It receives an RGB image plus confidence and IoU
// thresholds, performs its own confidence filtering and non-maximum suppression, and
// returns an ordered list of raw detections. Nothing in this module re-filters them.
//
// # Backends
//
// Client talks to a separate process that hosts the detector (for example a YOLO
// model loaded by a Python service) over three endpoints:
//   - POST /load: load the model artifact, respond with its class names
//   - POST /predict: multipart image + thresholds, respond with detections
//   - GET /health: liveness
//
// # Errors
//
//   - ErrModelLoad: the model artifact is missing, corrupt, or rejected by the backend
//   - ErrInference: a single image could not be processed
//
// # Thread Safety
//
// Whether a Model may be called concurrently depends on the backend. Wrap a model
// with Serialize when its backend does not document concurrent use.
package inference
