// Package workflow orchestrates the full scan -> probe -> detect -> segment
// -> analyze -> match -> organize pipeline across a batch of videos with a
// bounded worker pool: a buffered channel feeds a fixed number of goroutines,
// errors are tracked per item rather than aborting the batch, and progress is
// reported through a mutex-guarded gate.
package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/five82/reelsort/internal/aiclient"
	"github.com/five82/reelsort/internal/cachestore"
	"github.com/five82/reelsort/internal/config"
	"github.com/five82/reelsort/internal/detect"
	"github.com/five82/reelsort/internal/fusion"
	"github.com/five82/reelsort/internal/history"
	"github.com/five82/reelsort/internal/match"
	"github.com/five82/reelsort/internal/media"
	"github.com/five82/reelsort/internal/metrics"
	"github.com/five82/reelsort/internal/model"
	"github.com/five82/reelsort/internal/organize"
	"github.com/five82/reelsort/internal/orchestrator"
	"github.com/five82/reelsort/internal/prompts"
	"github.com/five82/reelsort/internal/segment"
	"github.com/five82/reelsort/internal/util"
)

// ProgressFunc is called with no locks held. After a video completes it is
// called only when the completed percentage has risen by at least one whole
// point since the last call, or when the last video completes, so not every
// completed video gets an event of its own (for example in batches of more
// than 100 videos, or when two workers finish together). Run ends with one
// PhaseComplete event.
type ProgressFunc func(model.WorkflowProgress)

// Engine owns the shared dependencies each worker draws on to process one
// video end to end.
type Engine struct {
	cfg          *config.Config
	cache        *cachestore.Store
	orchestrator *orchestrator.Orchestrator
	registry     *prompts.Registry
	client       match.RemoteClient
	folders      []model.FolderCandidate
	historyDir   string
}

// New constructs an Engine. client is used both for analysis (via the
// orchestrator) and folder matching.
func New(cfg *config.Config, cache *cachestore.Store, client *aiclient.Client, registry *prompts.Registry, folders []model.FolderCandidate, historyDir string) *Engine {
	return &Engine{
		cfg:          cfg,
		cache:        cache,
		orchestrator: orchestrator.New(client, cache, registry, cfg),
		registry:     registry,
		client:       client,
		folders:      folders,
		historyDir:   historyDir,
	}
}

// Run processes paths with a bounded worker pool (cfg.Workers), emitting
// progress via progress and honoring ctx for cooperative cancellation at
// stage boundaries and before external calls.
func (e *Engine) Run(ctx context.Context, paths []string, targetDir string, progress ProgressFunc) model.WorkflowResult {
	total := len(paths)
	if total == 0 {
		return model.WorkflowResult{}
	}

	pathChan := make(chan string, total)
	for _, p := range paths {
		pathChan <- p
	}
	close(pathChan)

	resultChan := make(chan model.WorkflowItemResult, total)

	var processed int64
	var lastPercent int64
	var progressMu sync.Mutex
	emit := func(phase model.WorkflowPhase, step string) {
		if progress == nil {
			return
		}
		p := atomic.LoadInt64(&processed)
		percent := float64(p) / float64(total) * 100
		progressMu.Lock()
		advanced := int64(percent) - lastPercent
		shouldEmit := advanced >= 1 || p == int64(total)
		if shouldEmit {
			lastPercent = int64(percent)
		}
		progressMu.Unlock()
		if shouldEmit {
			progress(model.WorkflowProgress{Phase: phase, Step: step, Percent: percent, Processed: int(p), Total: total})
		}
	}

	var cancelled atomic.Bool

	workers := e.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		metrics.WorkflowActiveWorkers.Inc()
		go func() {
			defer wg.Done()
			defer metrics.WorkflowActiveWorkers.Dec()
			for path := range pathChan {
				select {
				case <-ctx.Done():
					cancelled.Store(true)
					resultChan <- model.WorkflowItemResult{Path: path, Stage: "cancelled", Error: ctx.Err().Error()}
					atomic.AddInt64(&processed, 1)
					continue
				default:
				}

				item := e.processOne(ctx, path, targetDir)
				resultChan <- item
				atomic.AddInt64(&processed, 1)
				emit(model.PhaseOrganizing, filepath.Base(path))
			}
		}()
	}

	wg.Wait()
	close(resultChan)

	result := model.WorkflowResult{Total: total, Cancelled: cancelled.Load()}
	for item := range resultChan {
		result.Items = append(result.Items, item)
		outcome := "succeeded"
		if item.Error != "" {
			result.Failed++
			outcome = "failed"
		} else {
			result.Succeeded++
		}
		metrics.VideosProcessedTotal.WithLabelValues(outcome).Inc()
	}

	if progress != nil {
		progress(model.WorkflowProgress{Phase: model.PhaseComplete, Percent: 100, Processed: total, Total: total})
	}
	return result
}

// processOne runs the full pipeline for one video, isolating any failure to
// its own WorkflowItemResult rather than aborting the batch.
func (e *Engine) processOne(ctx context.Context, path, targetDir string) model.WorkflowItemResult {
	start := time.Now()
	defer func() { metrics.VideoProcessingDuration.Observe(time.Since(start).Seconds()) }()

	item := model.WorkflowItemResult{Path: path}

	if err := ctx.Err(); err != nil {
		item.Stage, item.Error = "cancelled", err.Error()
		return item
	}

	video, err := media.Probe(ctx, path)
	if err != nil {
		item.Stage, item.Error = "probe", err.Error()
		return item
	}

	detectors := []detect.Detector{detect.NewFrameDifference(e.cfg), detect.NewHistogram(e.cfg)}
	newReader := func() *media.Reader { return media.NewReader(video, 1) }
	candidates, err := detect.RunAll(ctx, video, newReader, detectors, e.cfg.DetectorCPUBudget, nil)
	if err != nil {
		item.Stage, item.Error = "detect", err.Error()
		return item
	}

	if err := ctx.Err(); err != nil {
		item.Stage, item.Error = "cancelled", err.Error()
		return item
	}

	boundaries := fusion.Fuse(candidates, video.FPS, e.cfg)
	segments := segment.Build(video.Checksum, video.FPS, video.TotalFrames(), boundaries, e.cfg)
	metrics.SegmentsEmittedTotal.Add(float64(len(segments)))

	tempDir, err := util.CreateTempDir(e.cfg.TempDir, ".reelsort-clip")
	if err != nil {
		item.Stage, item.Error = "segment", err.Error()
		return item
	}
	defer func() { _ = tempDir.Cleanup() }()

	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			item.Stage, item.Error = "cancelled", err.Error()
			return item
		}

		clipPath := filepath.Join(tempDir.Path(), seg.ID+".mp4")
		if err := media.ExtractClip(ctx, video, seg.StartTime, seg.EndTime, clipPath); err != nil {
			item.Stage, item.Error = "extract", err.Error()
			continue
		}

		analysis, err := e.orchestrator.Analyze(ctx, seg, video.Checksum, clipPath, []prompts.Name{prompts.Comprehensive}, false, nil)
		if err != nil {
			item.Stage, item.Error = "analyze", err.Error()
			continue
		}

		matches, err := match.Match(ctx, e.client, e.registry, analysis, e.folders, e.cfg)
		if err != nil {
			item.Stage, item.Error = "match", err.Error()
			continue
		}
		item.Matches = append(item.Matches, matches...)

		for _, m := range matches {
			if m.Action == model.ActionIgnore {
				continue
			}
			mode := "copy"
			if m.Action == model.ActionMove {
				mode = "move"
			}
			rec, err := organize.Organize(organize.Request{
				SegmentFilePath: clipPath,
				Analysis:        analysis,
				TargetFolder:    m.FolderPath,
				Mode:            mode,
			}, e.cfg)

			outcome := "succeeded"
			if err != nil {
				outcome = "failed"
			}
			metrics.OrganizeOperationsTotal.WithLabelValues(string(rec.Op), outcome).Inc()

			if histErr := history.Append(e.historyDir, rec); histErr != nil {
				item.Error = fmt.Sprintf("history append failed: %v", histErr)
			}
			item.Organized = append(item.Organized, rec)
		}
	}

	return item
}
