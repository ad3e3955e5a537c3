package detect

import (
	"context"
	"errors"
	"testing"

	"github.com/five82/reelsort/internal/media"
	"github.com/five82/reelsort/internal/model"
)

func TestMeanAbsDiff(t *testing.T) {
	a := []byte{0, 0, 0, 0}
	b := []byte{255, 255, 255, 255}
	if got := meanAbsDiff(a, b); got != 1.0 {
		t.Fatalf("meanAbsDiff(all-black, all-white) = %v, want 1.0", got)
	}
	if got := meanAbsDiff(a, a); got != 0 {
		t.Fatalf("meanAbsDiff(x, x) = %v, want 0", got)
	}
}

func TestHistogramSumsToOne(t *testing.T) {
	pixels := make([]byte, 100)
	for i := range pixels {
		pixels[i] = byte(i % 256)
	}
	h := histogram(pixels, 16)
	var sum float64
	for _, v := range h {
		sum += v
	}
	if sum < 0.999 || sum > 1.001 {
		t.Fatalf("histogram sums to %v, want ~1.0", sum)
	}
}

func TestHistogramDistanceIdentical(t *testing.T) {
	pixels := make([]byte, 64)
	for i := range pixels {
		pixels[i] = byte(i * 4)
	}
	h := histogram(pixels, 32)
	for _, metric := range []string{"correlation", "chi-square", "intersection"} {
		if got := histogramDistance(h, h, metric); got > 1e-9 {
			t.Errorf("histogramDistance(h, h, %q) = %v, want ~0", metric, got)
		}
	}
}

func TestMeanStd(t *testing.T) {
	mean, std := meanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if mean != 5 {
		t.Fatalf("mean = %v, want 5", mean)
	}
	if std < 1.9 || std > 2.1 {
		t.Fatalf("std = %v, want ~2", std)
	}
}

func TestClamp01(t *testing.T) {
	if clamp01(-1) != 0 {
		t.Fatal("clamp01(-1) should be 0")
	}
	if clamp01(2) != 1 {
		t.Fatal("clamp01(2) should be 1")
	}
	if clamp01(0.5) != 0.5 {
		t.Fatal("clamp01(0.5) should be 0.5")
	}
}

func TestRunAllAllFail(t *testing.T) {
	failing := RegisterCustom("failing-a", func(ctx context.Context, v model.Video, r *media.Reader, p ProgressFunc) ([]model.BoundaryCandidate, error) {
		return nil, errors.New("boom")
	})
	failing2 := RegisterCustom("failing-b", func(ctx context.Context, v model.Video, r *media.Reader, p ProgressFunc) ([]model.BoundaryCandidate, error) {
		return nil, errors.New("boom")
	})
	_, err := RunAll(context.Background(), model.Video{FPS: 30}, func() *media.Reader { return nil }, []Detector{failing, failing2}, 2, nil)
	if err == nil {
		t.Fatal("expected error when all detectors fail")
	}
}

func TestRunAllPartialFailureSucceeds(t *testing.T) {
	ok := RegisterCustom("ok", func(ctx context.Context, v model.Video, r *media.Reader, p ProgressFunc) ([]model.BoundaryCandidate, error) {
		return []model.BoundaryCandidate{{FrameIndex: 10, AlgorithmTag: "ok", Score: 0.9}}, nil
	})
	failing := RegisterCustom("failing", func(ctx context.Context, v model.Video, r *media.Reader, p ProgressFunc) ([]model.BoundaryCandidate, error) {
		return nil, errors.New("boom")
	})
	got, err := RunAll(context.Background(), model.Video{FPS: 30}, func() *media.Reader { return nil }, []Detector{ok, failing}, 2, nil)
	if err != nil {
		t.Fatalf("expected success when one detector succeeds, got %v", err)
	}
	if len(got) != 1 || got[0].FrameIndex != 10 {
		t.Fatalf("got %+v, want one candidate at frame 10", got)
	}
}
