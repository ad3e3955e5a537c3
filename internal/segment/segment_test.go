package segment

import (
	"testing"

	"github.com/five82/reelsort/internal/config"
	"github.com/five82/reelsort/internal/model"
)

func testConfig() *config.Config {
	c := config.NewConfig("/tmp/cache", "/tmp/log")
	c.MinSegmentDuration = 1.5
	c.MaxSegmentDuration = 120
	c.OversizedPolicy = "keep-flagged"
	return c
}

func TestBuildTwoShotCut(t *testing.T) {
	cfg := testConfig()
	boundaries := []model.Boundary{{FrameIndex: 30, Confidence: 0.95}}
	segs := Build("checksum1", 10, 60, boundaries, cfg)
	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(segs), segs)
	}
	if segs[0].StartFrame != 0 || segs[0].EndFrame != 30 {
		t.Fatalf("segment 0 = %+v, want [0,30)", segs[0])
	}
	if segs[1].StartFrame != 30 || segs[1].EndFrame != 60 {
		t.Fatalf("segment 1 = %+v, want [30,60)", segs[1])
	}
}

func TestBuildCoversWholeRange(t *testing.T) {
	cfg := testConfig()
	boundaries := []model.Boundary{{FrameIndex: 40, Confidence: 0.9}, {FrameIndex: 90, Confidence: 0.8}}
	segs := Build("checksum1", 30, 150, boundaries, cfg)
	if segs[0].StartFrame != 0 {
		t.Fatalf("first segment should start at 0, got %+v", segs[0])
	}
	if segs[len(segs)-1].EndFrame != 150 {
		t.Fatalf("last segment should end at 150, got %+v", segs[len(segs)-1])
	}
	for i := 1; i < len(segs); i++ {
		if segs[i-1].EndFrame != segs[i].StartFrame {
			t.Fatalf("gap/overlap between segments %d and %d: %+v %+v", i-1, i, segs[i-1], segs[i])
		}
	}
}

func TestBuildNoBoundariesOneSegment(t *testing.T) {
	cfg := testConfig()
	segs := Build("checksum1", 30, 300, nil, cfg)
	if len(segs) != 1 {
		t.Fatalf("got %d segments, want 1 (whole video)", len(segs))
	}
	if segs[0].StartFrame != 0 || segs[0].EndFrame != 300 {
		t.Fatalf("segment = %+v, want [0,300)", segs[0])
	}
}

func TestBuildShortSegmentMerged(t *testing.T) {
	cfg := testConfig()
	cfg.MinSegmentDuration = 2.0 // 60 frames @ 30fps
	// boundary at frame 10 creates a 10-frame (0.33s) segment that must merge
	boundaries := []model.Boundary{{FrameIndex: 10, Confidence: 0.5}, {FrameIndex: 200, Confidence: 0.9}}
	segs := Build("checksum1", 30, 300, boundaries, cfg)
	for _, s := range segs {
		if s.DurationSeconds < cfg.MinSegmentDuration-1e-9 {
			t.Fatalf("segment %+v is shorter than MinSegmentDuration after merge", s)
		}
	}
}

func TestBuildOversizedFlagged(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSegmentDuration = 5.0
	segs := Build("checksum1", 10, 1000, nil, cfg) // one 100s segment, no boundaries
	if len(segs) != 1 {
		t.Fatalf("got %d segments, want 1", len(segs))
	}
	if !segs[0].HasFlag(FlagOversized) {
		t.Fatalf("segment should be flagged oversized: %+v", segs[0])
	}
}

func TestBuildOversizedSplit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSegmentDuration = 5.0
	cfg.OversizedPolicy = "split"
	segs := Build("checksum1", 10, 1000, nil, cfg) // 100s total, should split into ~20 pieces
	if len(segs) < 15 {
		t.Fatalf("got %d segments, want many small ones after split", len(segs))
	}
	total := 0
	for _, s := range segs {
		total += s.EndFrame - s.StartFrame
	}
	if total != 1000 {
		t.Fatalf("split segments cover %d frames, want 1000", total)
	}
}

func TestBuildZeroLengthVideo(t *testing.T) {
	cfg := testConfig()
	segs := Build("checksum1", 30, 0, nil, cfg)
	if len(segs) != 0 {
		t.Fatalf("got %d segments for zero-length video, want 0", len(segs))
	}
}

func TestBuildSingleFrameVideo(t *testing.T) {
	cfg := testConfig()
	cfg.MinSegmentDuration = 0.01
	segs := Build("checksum1", 30, 1, nil, cfg)
	if len(segs) != 1 {
		t.Fatalf("got %d segments for single-frame video, want 1", len(segs))
	}
	if segs[0].StartFrame != 0 || segs[0].EndFrame != 1 {
		t.Fatalf("segment = %+v, want [0,1)", segs[0])
	}
}
