// Package detect implements the multi-algorithm shot-boundary detectors:
// FrameDifference, Histogram, and an optional pluggable Custom variant.
// Detectors share a small capability-set interface rather than an
// inheritance hierarchy, per the fused-candidate contract they all produce.
package detect

import (
	"context"
	"fmt"
	"math"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/five82/reelsort/internal/config"
	"github.com/five82/reelsort/internal/media"
	"github.com/five82/reelsort/internal/model"
)

// ProgressFunc is called at least once per second while a detector runs.
type ProgressFunc func(framesSeen, totalFrames int)

// Detector is the capability set every boundary detector implements.
type Detector interface {
	// Name identifies the detector; used as BoundaryCandidate.AlgorithmTag.
	Name() string
	// DetectBoundaries scans video via reader and returns candidates in
	// ascending frame order. progress, if non-nil, is called at ≥1Hz.
	DetectBoundaries(ctx context.Context, video model.Video, reader *media.Reader, progress ProgressFunc) ([]model.BoundaryCandidate, error)
}

// budget bounds a detector's internal parallelism to a configured CPU count,
// bounding concurrent detector runs with a semaphore.
type budget struct {
	sem *semaphore.Weighted
}

func newBudget(cpuBudget int) *budget {
	if cpuBudget < 1 {
		cpuBudget = 4
	}
	return &budget{sem: semaphore.NewWeighted(int64(cpuBudget))}
}

func (b *budget) acquire(ctx context.Context) error {
	return b.sem.Acquire(ctx, 1)
}

func (b *budget) release() {
	b.sem.Release(1)
}

// FrameDifference emits a candidate when the normalized mean absolute luma
// difference between consecutive frames exceeds a threshold, optionally
// adaptive (mean + k*stddev over a trailing window).
type FrameDifference struct {
	Threshold     float64
	MinShotFrames int
	Adaptive      bool
	WindowSize    int
	KFactor       float64
	CPUBudget     int
}

// NewFrameDifference builds a FrameDifference detector from cfg.
func NewFrameDifference(cfg *config.Config) *FrameDifference {
	minShot := cfg.MinShotFrames
	return &FrameDifference{
		Threshold:     cfg.FrameDiffThreshold,
		MinShotFrames: minShot,
		Adaptive:      cfg.AdaptiveThreshold,
		WindowSize:    30,
		KFactor:       2.0,
		CPUBudget:     cfg.DetectorCPUBudget,
	}
}

func (d *FrameDifference) Name() string { return "frame-diff" }

func (d *FrameDifference) DetectBoundaries(ctx context.Context, video model.Video, reader *media.Reader, progress ProgressFunc) ([]model.BoundaryCandidate, error) {
	var candidates []model.BoundaryCandidate
	var prev []byte
	var trailing []float64
	lastEmit := -1 << 30
	total := video.TotalFrames()
	framesSeen := 0

	minShot := d.MinShotFrames
	if minShot <= 0 {
		minShot = int(video.FPS)
	}

	err := reader.Frames(ctx, func(f model.Frame) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		framesSeen++
		if progress != nil {
			progress(framesSeen, total)
		}

		if prev == nil {
			prev = append([]byte(nil), f.Pixels...)
			return nil
		}

		diff := meanAbsDiff(prev, f.Pixels)
		prev = append(prev[:0], f.Pixels...)

		threshold := d.Threshold
		if d.Adaptive {
			trailing = append(trailing, diff)
			if len(trailing) > d.WindowSize {
				trailing = trailing[1:]
			}
			if len(trailing) >= 3 {
				mean, std := meanStd(trailing)
				threshold = mean + d.KFactor*std
			}
		}

		if diff > threshold && f.Index-lastEmit >= minShot {
			candidates = append(candidates, model.BoundaryCandidate{
				FrameIndex:   f.Index,
				AlgorithmTag: d.Name(),
				Score:        clamp01(diff),
			})
			lastEmit = f.Index
		}
		return nil
	})
	if err != nil {
		if _, ok := err.(*media.TruncatedInputWarning); ok {
			return candidates, err
		}
		return nil, err
	}
	return candidates, nil
}

func meanAbsDiff(a, b []byte) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	var sum int
	for i := 0; i < n; i++ {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return float64(sum) / float64(n) / 255.0
}

func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean = sum / float64(len(xs))
	var variance float64
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	variance /= float64(len(xs))
	return mean, math.Sqrt(variance)
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

// Histogram compares per-frame grayscale histograms using a configurable
// distance metric. Every frame the Reader yields is histogrammed; frames are
// skipped only through the Reader's own stride.
type Histogram struct {
	Bins      int
	Distance  string // correlation | chi-square | intersection
	Threshold float64
	Adaptive  bool
	WindowSize int
	KFactor    float64
	CPUBudget  int
}

// NewHistogram builds a Histogram detector from cfg.
func NewHistogram(cfg *config.Config) *Histogram {
	return &Histogram{
		Bins:       cfg.HistogramBins,
		Distance:   cfg.HistogramDistance,
		Threshold:  0.5,
		Adaptive:   cfg.AdaptiveThreshold,
		WindowSize: 30,
		KFactor:    2.0,
		CPUBudget:  cfg.DetectorCPUBudget,
	}
}

func (d *Histogram) Name() string { return "histogram" }

func (d *Histogram) DetectBoundaries(ctx context.Context, video model.Video, reader *media.Reader, progress ProgressFunc) ([]model.BoundaryCandidate, error) {
	var candidates []model.BoundaryCandidate
	var prevHist []float64
	var trailing []float64
	total := video.TotalFrames()
	framesSeen := 0

	err := reader.Frames(ctx, func(f model.Frame) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		framesSeen++
		if progress != nil {
			progress(framesSeen, total)
		}

		hist := histogram(f.Pixels, d.Bins)
		if prevHist != nil {
			dist := histogramDistance(prevHist, hist, d.Distance)

			threshold := d.Threshold
			if d.Adaptive {
				trailing = append(trailing, dist)
				if len(trailing) > d.WindowSize {
					trailing = trailing[1:]
				}
				if len(trailing) >= 3 {
					mean, std := meanStd(trailing)
					threshold = mean + d.KFactor*std
				}
			}

			if dist > threshold {
				candidates = append(candidates, model.BoundaryCandidate{
					FrameIndex:   f.Index,
					AlgorithmTag: d.Name(),
					Score:        clamp01(dist),
				})
			}
		}
		prevHist = hist
		return nil
	})
	if err != nil {
		if _, ok := err.(*media.TruncatedInputWarning); ok {
			return candidates, err
		}
		return nil, err
	}
	return candidates, nil
}

func histogram(pixels []byte, bins int) []float64 {
	if bins < 1 {
		bins = 256
	}
	h := make([]float64, bins)
	width := 256.0 / float64(bins)
	for _, p := range pixels {
		bucket := int(float64(p) / width)
		if bucket >= bins {
			bucket = bins - 1
		}
		h[bucket]++
	}
	total := float64(len(pixels))
	if total == 0 {
		return h
	}
	for i := range h {
		h[i] /= total
	}
	return h
}

// histogramDistance returns a value in [0,1] where larger means more
// different, regardless of the underlying metric's native orientation.
func histogramDistance(a, b []float64, metric string) float64 {
	switch metric {
	case "chi-square":
		var sum float64
		for i := range a {
			denom := a[i] + b[i]
			if denom == 0 {
				continue
			}
			diff := a[i] - b[i]
			sum += (diff * diff) / denom
		}
		return clamp01(sum / 2)
	case "intersection":
		var inter float64
		for i := range a {
			inter += math.Min(a[i], b[i])
		}
		return clamp01(1 - inter)
	default: // correlation
		meanA, meanB := mean(a), mean(b)
		var num, da, db float64
		for i := range a {
			x, y := a[i]-meanA, b[i]-meanB
			num += x * y
			da += x * x
			db += y * y
		}
		if da == 0 || db == 0 {
			return 0
		}
		corr := num / math.Sqrt(da*db)
		return clamp01((1 - corr) / 2)
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// CustomFunc is a plug-in boundary detector registered via RegisterCustom,
// supplementing the OpticalFlow/ML/Custom line in the detector contract.
type CustomFunc func(ctx context.Context, video model.Video, reader *media.Reader, progress ProgressFunc) ([]model.BoundaryCandidate, error)

// customDetector adapts a CustomFunc to the Detector interface.
type customDetector struct {
	name string
	fn   CustomFunc
}

func (c *customDetector) Name() string { return c.name }
func (c *customDetector) DetectBoundaries(ctx context.Context, video model.Video, reader *media.Reader, progress ProgressFunc) ([]model.BoundaryCandidate, error) {
	return c.fn(ctx, video, reader, progress)
}

// RegisterCustom wraps fn as a named Detector. Used for optical-flow or ML
// backed detectors that are unavailable by default; callers omit them from
// the active set entirely when the backing model isn't installed, and
// fusion proceeds with the remaining detectors.
func RegisterCustom(name string, fn CustomFunc) Detector {
	return &customDetector{name: name, fn: fn}
}

// RunAll runs every detector in detectors concurrently, bounded by
// cpuBudget, and returns their combined candidates. A detector's failure is
// recorded but does not abort the others; RunAll only returns an error if
// every detector fails (DetectionError: fatal only if all fail).
func RunAll(ctx context.Context, video model.Video, newReader func() *media.Reader, detectors []Detector, cpuBudget int, progress ProgressFunc) ([]model.BoundaryCandidate, error) {
	b := newBudget(cpuBudget)

	type result struct {
		candidates []model.BoundaryCandidate
		err        error
	}
	results := make([]result, len(detectors))
	var wg sync.WaitGroup

	for i, det := range detectors {
		wg.Add(1)
		go func(i int, det Detector) {
			defer wg.Done()
			if err := b.acquire(ctx); err != nil {
				results[i] = result{err: err}
				return
			}
			defer b.release()
			cands, err := det.DetectBoundaries(ctx, video, newReader(), progress)
			results[i] = result{candidates: cands, err: err}
		}(i, det)
	}
	wg.Wait()

	var all []model.BoundaryCandidate
	failures := 0
	for i, r := range results {
		if r.err != nil {
			if _, ok := r.err.(*media.TruncatedInputWarning); !ok {
				failures++
				continue
			}
		}
		_ = i
		all = append(all, r.candidates...)
	}
	if failures == len(detectors) && len(detectors) > 0 {
		return nil, fmt.Errorf("all %d detectors failed", len(detectors))
	}
	return all, nil
}
