// Package classes defines the closed set of blood-cell classes the pipeline counts
// and the normalization of raw detector labels onto that set.
//
// # Known Classes
//
// Three classes are counted:
//   - RBC: red blood cells
//   - WBC: white blood cells
//   - Platelets
//
// Any other label a detector emits is kept as-is on the detection (pass-through) but
// maps to Unrecognized, which is never counted. This keeps "zero cells of a known
// class" distinct from "an unknown class was present".
//
// # Counts and Percentages
//
// Counts always carries an entry for every known class. Percentages are derived from
// counts as 100 * count / total; when total is zero every percentage is 0.0.
//
// All functions in this package are pure and safe for concurrent use.
package classes
