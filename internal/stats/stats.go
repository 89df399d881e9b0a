// Package stats folds per-image detection results into batch-level totals.
package stats

import (
	"github.com/ironsheep/cellcount-mcp/internal/classes"
	"github.com/ironsheep/cellcount-mcp/internal/detection"
)

// BatchMetrics aggregates a collection of per-image results.
type BatchMetrics struct {
	// TotalCounts is the per-class sum of counts across all images.
	TotalCounts classes.Counts `json:"total_counts"`

	// Percentages are derived from TotalCounts, not averaged across images.
	Percentages classes.Percentages `json:"percentages"`

	// NumImages is the number of results aggregated.
	NumImages int `json:"num_images"`
}

// Total returns the number of counted cells across the batch.
func (m BatchMetrics) Total() int {
	return m.TotalCounts.Total()
}

// Aggregate sums the known-class counts of every result.
//
// Keys outside the known classes are ignored. The numeric output does not depend
// on the order of results. A nil entry contributes no counts but is still counted
// in NumImages. An empty slice yields zero counts, zero percentages and
// NumImages 0.
func Aggregate(results []*detection.Result) BatchMetrics {
	total := classes.NewCounts()
	for _, r := range results {
		if r == nil {
			continue
		}
		total.Merge(r.Counts)
	}

	return BatchMetrics{
		TotalCounts: total,
		Percentages: total.Percentages(),
		NumImages:   len(results),
	}
}
