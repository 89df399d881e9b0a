// Package detection runs a detector on a single image and turns its raw output into
// a per-image result: normalized detections, per-class counts and percentages, and
// an annotated overlay.
//
// # Pipeline
//
// Detect follows the same steps for every image:
//
//  1. Validation: thresholds must lie in [0, 1], the image must have non-zero area
//  2. Copy: the caller's image is copied into an owned RGB buffer
//  3. Inference: the model is called exactly once; it filters and suppresses itself
//  4. Normalization: each label is mapped onto the known classes
//  5. Counting: only known classes are counted; unknown labels are kept as detections
//  6. Rendering: boxes (and optional labels) are drawn on a second copy
//
// # Coordinate System
//
// Boxes are (X1, Y1, X2, Y2) in pixel coordinates of the input image with the origin
// at the top-left corner, X1 <= X2 and Y1 <= Y2.
//
// # Errors
//
//   - ErrInvalidInput: rejected before the model is called
//   - inference.ErrInference: the model failed on this image
//
// A model returning zero detections is a valid outcome.
package detection
