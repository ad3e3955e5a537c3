package fusion

import (
	"reflect"
	"testing"

	"github.com/five82/reelsort/internal/config"
	"github.com/five82/reelsort/internal/model"
)

func testConfig() *config.Config {
	c := config.NewConfig("/tmp/cache", "/tmp/log")
	c.FusionWeights = map[string]float64{"frame-diff": 1.0, "histogram": 1.0}
	c.ClusterTolerance = 2
	c.FusionThreshold = 0.6
	c.MinDetectors = 1
	return c
}

func TestFuseTwoShotCut(t *testing.T) {
	cfg := testConfig()
	candidates := []model.BoundaryCandidate{
		{FrameIndex: 30, AlgorithmTag: "frame-diff", Score: 0.95},
	}
	boundaries := Fuse(candidates, 10, cfg)
	if len(boundaries) != 1 {
		t.Fatalf("got %d boundaries, want 1: %+v", len(boundaries), boundaries)
	}
	if boundaries[0].FrameIndex != 30 {
		t.Fatalf("FrameIndex = %d, want 30", boundaries[0].FrameIndex)
	}
	if boundaries[0].Confidence < 0.9 {
		t.Fatalf("Confidence = %v, want >= 0.9", boundaries[0].Confidence)
	}
}

func TestFuseDeterministic(t *testing.T) {
	cfg := testConfig()
	candidates := []model.BoundaryCandidate{
		{FrameIndex: 30, AlgorithmTag: "frame-diff", Score: 0.9},
		{FrameIndex: 31, AlgorithmTag: "histogram", Score: 0.8},
		{FrameIndex: 100, AlgorithmTag: "frame-diff", Score: 0.7},
	}
	a := Fuse(candidates, 10, cfg)
	b := Fuse(candidates, 10, cfg)
	if len(a) != len(b) {
		t.Fatalf("non-deterministic result lengths: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !reflect.DeepEqual(a[i], b[i]) {
			t.Fatalf("non-deterministic at index %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestFuseBelowThresholdExcluded(t *testing.T) {
	cfg := testConfig()
	cfg.FusionThreshold = 0.9
	candidates := []model.BoundaryCandidate{
		{FrameIndex: 30, AlgorithmTag: "frame-diff", Score: 0.5},
	}
	boundaries := Fuse(candidates, 10, cfg)
	if len(boundaries) != 0 {
		t.Fatalf("got %d boundaries, want 0 below threshold", len(boundaries))
	}
}

func TestFuseMinDetectorsRequirement(t *testing.T) {
	cfg := testConfig()
	cfg.MinDetectors = 2
	candidates := []model.BoundaryCandidate{
		{FrameIndex: 30, AlgorithmTag: "frame-diff", Score: 0.95},
	}
	boundaries := Fuse(candidates, 10, cfg)
	if len(boundaries) != 0 {
		t.Fatalf("got %d boundaries, want 0 when minDetectors not met", len(boundaries))
	}
}

func TestFuseEmptyInput(t *testing.T) {
	cfg := testConfig()
	if got := Fuse(nil, 10, cfg); got != nil {
		t.Fatalf("got %+v, want nil for empty input", got)
	}
}

func TestFuseUsesMinShotFramesNotClusterToleranceForCollapse(t *testing.T) {
	cfg := testConfig()
	cfg.ClusterTolerance = 2
	cfg.MinShotFrames = 10
	candidates := []model.BoundaryCandidate{
		{FrameIndex: 30, AlgorithmTag: "frame-diff", Score: 0.95},
		{FrameIndex: 35, AlgorithmTag: "histogram", Score: 0.85},
	}
	boundaries := Fuse(candidates, 10, cfg)
	if len(boundaries) != 1 {
		t.Fatalf("got %d boundaries, want 1 (5-frame gap is within MinShotFrames=10 even though it exceeds ClusterTolerance=2): %+v", len(boundaries), boundaries)
	}
	if boundaries[0].Confidence != 0.95 {
		t.Fatalf("Confidence = %v, want 0.95 (the higher one)", boundaries[0].Confidence)
	}
}

func TestCollapseNearKeepsHighestConfidence(t *testing.T) {
	boundaries := []model.Boundary{
		{FrameIndex: 100, Confidence: 0.7, ContributingAlgorithms: []string{"a"}},
		{FrameIndex: 101, Confidence: 0.9, ContributingAlgorithms: []string{"b"}},
	}
	got := collapseNear(boundaries, 5)
	if len(got) != 1 {
		t.Fatalf("got %d boundaries, want 1", len(got))
	}
	if got[0].Confidence != 0.9 {
		t.Fatalf("Confidence = %v, want 0.9 (the higher one)", got[0].Confidence)
	}
}
