package service

import (
	"math"
	"sort"
	"time"

	"github.com/rl1809/parts-ledger/internal/core/domain"
)

const (
	PipelineFrequency = "frequency"
	PipelineVolume    = "volume"
	PipelineRecency   = "recency"

	DefaultPipeline = PipelineFrequency

	recencyHalfLife = 14 * 24 * time.Hour
)

// scoreFunc turns consumption samples into a score per part.
type scoreFunc func(samples []domain.Movement, now time.Time) map[string]float64

type pipeline struct {
	description string
	score       scoreFunc
}

// pipelines is the closed set of scoring strategies selectable by id.
var pipelines = map[string]pipeline{
	PipelineFrequency: {
		description: "number of consumption events per part",
		score: func(samples []domain.Movement, _ time.Time) map[string]float64 {
			out := make(map[string]float64)
			for _, m := range samples {
				out[m.PartID]++
			}
			return out
		},
	},
	PipelineVolume: {
		description: "units consumed per part",
		score: func(samples []domain.Movement, _ time.Time) map[string]float64 {
			out := make(map[string]float64)
			for _, m := range samples {
				out[m.PartID] += float64(m.Quantity)
			}
			return out
		},
	},
	PipelineRecency: {
		description: "units consumed, halved every 14 days of age",
		score: func(samples []domain.Movement, now time.Time) map[string]float64 {
			out := make(map[string]float64)
			for _, m := range samples {
				age := now.Sub(m.OccurredAt)
				if age < 0 {
					age = 0
				}
				out[m.PartID] += float64(m.Quantity) * math.Exp2(-float64(age)/float64(recencyHalfLife))
			}
			return out
		},
	},
}

type PipelineInfo struct {
	ID          string
	Description string
}

// Pipelines lists the selectable scoring strategies.
func Pipelines() []PipelineInfo {
	out := make([]PipelineInfo, 0, len(pipelines))
	for id, p := range pipelines {
		out = append(out, PipelineInfo{ID: id, Description: p.description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
