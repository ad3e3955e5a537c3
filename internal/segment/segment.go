// Package segment turns a fused Boundary sequence into a contiguous,
// non-overlapping list of Segments subject to min/max duration filters.
package segment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/five82/reelsort/internal/config"
	"github.com/five82/reelsort/internal/model"
)

// FlagOversized marks a segment whose duration exceeds maxDuration under the
// keep-flagged policy.
const FlagOversized = "oversized"

// Build converts sorted boundaries plus the video's total frame count into a
// Segment list. Virtual boundaries are added at frame 0 and totalFrames;
// segments shorter than cfg.MinSegmentDuration are merged into the
// neighboring segment whose adjacent boundary has lower confidence; segments
// longer than cfg.MaxSegmentDuration are flagged or split per
// cfg.OversizedPolicy.
func Build(videoChecksum string, fps float64, totalFrames int, boundaries []model.Boundary, cfg *config.Config) []model.Segment {
	if totalFrames <= 0 {
		return nil
	}

	// frames[i] is the frame index, confidences[i] its confidence
	// (virtual endpoints get confidence 1.0 so they're never the "weaker"
	// neighbor during a merge).
	frames := []int{0}
	confidences := []float64{1.0}
	for _, b := range boundaries {
		if b.FrameIndex <= 0 || b.FrameIndex >= totalFrames {
			continue
		}
		frames = append(frames, b.FrameIndex)
		confidences = append(confidences, b.Confidence)
	}
	frames = append(frames, totalFrames)
	confidences = append(confidences, 1.0)

	type span struct {
		start, end int
		confidence float64 // confidence of the boundary that starts this span (1.0 for the virtual start)
	}
	spans := make([]span, 0, len(frames)-1)
	for i := 0; i < len(frames)-1; i++ {
		spans = append(spans, span{start: frames[i], end: frames[i+1], confidence: confidences[i]})
	}

	minDur := cfg.MinSegmentDuration
	maxDur := cfg.MaxSegmentDuration

	// Merge too-short spans into the neighbor across the weaker boundary.
	merged := true
	for merged {
		merged = false
		for i := 0; i < len(spans); i++ {
			dur := float64(spans[i].end-spans[i].start) / fps
			if dur >= minDur || len(spans) == 1 {
				continue
			}
			// Decide which neighbor to merge into: the adjacent boundary
			// with lower confidence is the one we dissolve.
			mergeIntoPrev := false
			if i > 0 && i < len(spans)-1 {
				leftBoundaryConf := spans[i].confidence   // boundary between i-1 and i
				rightBoundaryConf := spans[i+1].confidence // boundary between i and i+1
				mergeIntoPrev = leftBoundaryConf <= rightBoundaryConf
			} else if i > 0 {
				mergeIntoPrev = true
			}

			if mergeIntoPrev && i > 0 {
				spans[i-1].end = spans[i].end
				spans = append(spans[:i], spans[i+1:]...)
			} else if i < len(spans)-1 {
				spans[i+1].start = spans[i].start
				spans[i+1].confidence = spans[i].confidence
				spans = append(spans[:i], spans[i+1:]...)
			} else {
				break
			}
			merged = true
			break
		}
	}

	var result []model.Segment
	for _, s := range spans {
		dur := float64(s.end-s.start) / fps
		if dur > maxDur && cfg.OversizedPolicy == "split" {
			result = append(result, splitOversized(videoChecksum, fps, s.start, s.end, maxDur)...)
			continue
		}
		flags := []string(nil)
		if dur > maxDur {
			flags = []string{FlagOversized}
		}
		result = append(result, newSegment(videoChecksum, fps, s.start, s.end, flags))
	}
	return result
}

func splitOversized(videoChecksum string, fps float64, start, end int, maxDur float64) []model.Segment {
	maxFrames := int(maxDur * fps)
	if maxFrames < 1 {
		maxFrames = end - start
	}
	var out []model.Segment
	for s := start; s < end; s += maxFrames {
		e := s + maxFrames
		if e > end {
			e = end
		}
		out = append(out, newSegment(videoChecksum, fps, s, e, nil))
	}
	return out
}

func newSegment(videoChecksum string, fps float64, start, end int, flags []string) model.Segment {
	return model.Segment{
		ID:                  segmentID(videoChecksum, start, end),
		StartFrame:          start,
		EndFrame:            end,
		StartTime:           float64(start) / fps,
		EndTime:             float64(end) / fps,
		DurationSeconds:     float64(end-start) / fps,
		SourceVideoChecksum: videoChecksum,
		FilterFlags:         flags,
	}
}

// segmentID derives the stable id hash(videoChecksum, startFrame, endFrame).
func segmentID(videoChecksum string, start, end int) string {
	h := sha256.New()
	h.Write([]byte(videoChecksum))
	h.Write([]byte(fmt.Sprintf(":%d:%d", start, end)))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
