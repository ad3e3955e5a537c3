// Package fusion combines multiple detectors' BoundaryCandidates into a
// single confidence-weighted, deterministic Boundary sequence via weighted
// voting and temporal clustering.
package fusion

import (
	"sort"
	"strings"

	"github.com/five82/reelsort/internal/config"
	"github.com/five82/reelsort/internal/model"
)

// bucket aggregates candidates whose frame indices fall within one
// clusterTolerance-wide window.
type bucket struct {
	centerFrame int
	candidates  []model.BoundaryCandidate
}

// Fuse normalizes candidate scores, buckets them by clusterTolerance, and
// emits Boundaries meeting the configured fusionThreshold and minDetectors.
// Given the same candidates and weights, Fuse is deterministic: the output
// is always sorted the same way and ties are broken by earliest frame index
// then by lexicographic algorithm tag set.
func Fuse(candidates []model.BoundaryCandidate, fps float64, cfg *config.Config) []model.Boundary {
	if len(candidates) == 0 {
		return nil
	}

	sorted := append([]model.BoundaryCandidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FrameIndex < sorted[j].FrameIndex
	})

	tolerance := cfg.ClusterTolerance
	if tolerance < 1 {
		tolerance = 1
	}

	var buckets []bucket
	for _, c := range sorted {
		placed := false
		for i := range buckets {
			if abs(c.FrameIndex-buckets[i].centerFrame) <= tolerance {
				buckets[i].candidates = append(buckets[i].candidates, c)
				placed = true
				break
			}
		}
		if !placed {
			buckets = append(buckets, bucket{centerFrame: c.FrameIndex, candidates: []model.BoundaryCandidate{c}})
		}
	}

	totalWeight := 0.0
	for _, w := range cfg.FusionWeights {
		totalWeight += w
	}
	if totalWeight == 0 {
		totalWeight = 1
	}

	var boundaries []model.Boundary
	for _, b := range buckets {
		weighted := 0.0
		weightSum := 0.0
		algos := map[string]bool{}
		minFrame := b.candidates[0].FrameIndex
		for _, c := range b.candidates {
			w := cfg.FusionWeights[c.AlgorithmTag]
			if w == 0 {
				w = 1.0 // unweighted detectors still count, per "weights normalize internally"
			}
			weighted += w * clamp01(c.Score)
			weightSum += w
			algos[c.AlgorithmTag] = true
			if c.FrameIndex < minFrame {
				minFrame = c.FrameIndex
			}
		}
		if weightSum == 0 {
			continue
		}
		confidence := weighted / weightSum
		if confidence < cfg.FusionThreshold {
			continue
		}
		if len(algos) < cfg.MinDetectors {
			continue
		}

		tags := make([]string, 0, len(algos))
		for a := range algos {
			tags = append(tags, a)
		}
		sort.Strings(tags)

		boundaries = append(boundaries, model.Boundary{
			FrameIndex:             minFrame,
			TimestampSeconds:       float64(minFrame) / fps,
			Confidence:             confidence,
			ContributingAlgorithms: tags,
		})
	}

	boundaries = collapseNear(boundaries, cfg.MinShotFrames)

	sort.Slice(boundaries, func(i, j int) bool {
		return boundaries[i].FrameIndex < boundaries[j].FrameIndex
	})
	return boundaries
}

// collapseNear enforces "if multiple buckets fall within minShotFrames, keep
// the one with highest confidence; break ties by earliest frame index, then
// by lexicographic algorithm tag set".
func collapseNear(boundaries []model.Boundary, tolerance int) []model.Boundary {
	if len(boundaries) < 2 {
		return boundaries
	}
	sort.Slice(boundaries, func(i, j int) bool {
		return boundaries[i].FrameIndex < boundaries[j].FrameIndex
	})

	var out []model.Boundary
	current := boundaries[0]
	for _, next := range boundaries[1:] {
		if next.FrameIndex-current.FrameIndex <= tolerance {
			current = pickWinner(current, next)
			continue
		}
		out = append(out, current)
		current = next
	}
	out = append(out, current)
	return out
}

func pickWinner(a, b model.Boundary) model.Boundary {
	if a.Confidence != b.Confidence {
		if a.Confidence > b.Confidence {
			return a
		}
		return b
	}
	if a.FrameIndex != b.FrameIndex {
		if a.FrameIndex < b.FrameIndex {
			return a
		}
		return b
	}
	aTags := strings.Join(a.ContributingAlgorithms, ",")
	bTags := strings.Join(b.ContributingAlgorithms, ",")
	if aTags <= bTags {
		return a
	}
	return b
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
