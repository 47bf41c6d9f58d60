// Package analysis turns raw detector output into per-class counts, detail
// records and the human readable summary.
package analysis

import (
	"urbanvision/internal/model"
	"urbanvision/internal/registry"
)

// Aggregate drops detections whose class id is not registered and groups the
// rest by display name. Counts keep first-seen order; details keep input order.
func Aggregate(reg *registry.Registry, raw []model.RawDetection) model.AggregatedResult {
	result := model.AggregatedResult{
		Counts:  []model.ClassCount{},
		Details: []model.Detail{},
	}
	index := make(map[string]int)

	for _, det := range raw {
		entry, ok := reg.Lookup(det.ClassID)
		if !ok {
			continue
		}

		pos, seen := index[entry.Name]
		if !seen {
			pos = len(result.Counts)
			index[entry.Name] = pos
			result.Counts = append(result.Counts, model.ClassCount{Name: entry.Name})
		}
		result.Counts[pos].Count++

		result.Details = append(result.Details, model.Detail{
			Name:       entry.Name,
			Confidence: det.Confidence,
			Box:        det.Box,
		})
	}

	return result
}
