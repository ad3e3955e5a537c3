// Package reelsort organizes raw video footage into content-matched
// destination folders.
//
// Basic usage:
//
//	pipeline, err := reelsort.New("", "", reelsort.WithWorkers(4))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := pipeline.LoadFolders(targetDir); err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := pipeline.Run(ctx, videoPaths, targetDir, nil)
package reelsort

import (
	"context"
	"fmt"

	"github.com/five82/reelsort/internal/aiclient"
	"github.com/five82/reelsort/internal/cachestore"
	"github.com/five82/reelsort/internal/config"
	"github.com/five82/reelsort/internal/discovery"
	"github.com/five82/reelsort/internal/logging"
	"github.com/five82/reelsort/internal/match"
	"github.com/five82/reelsort/internal/model"
	"github.com/five82/reelsort/internal/prompts"
	"github.com/five82/reelsort/internal/workflow"
)

// Pipeline is the main entry point for organizing video footage.
type Pipeline struct {
	config  *config.Config
	folders []model.FolderCandidate
}

// Option configures the pipeline.
type Option func(*config.Config)

// New creates a new Pipeline rooted at the given cache and log directories
// (XDG-default directories are used when either is empty).
func New(cacheDir, logDir string, opts ...Option) (*Pipeline, error) {
	if cacheDir == "" {
		cacheDir = logging.DefaultCacheDir()
	}
	if logDir == "" {
		logDir = logging.DefaultLogDir()
	}
	cfg := config.NewConfig(cacheDir, logDir)

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Pipeline{config: cfg}, nil
}

// WithWorkers sets the workflow engine's worker pool size.
func WithWorkers(workers int) Option {
	return func(c *config.Config) { c.Workers = workers }
}

// WithNamingMode sets the file organizer's destination naming mode.
func WithNamingMode(mode string) Option {
	return func(c *config.Config) { c.NamingMode = mode }
}

// WithConflictPolicy sets the file organizer's conflict resolution policy.
func WithConflictPolicy(policy string) Option {
	return func(c *config.Config) { c.ConflictPolicy = policy }
}

// WithMinMatchConfidence sets the folder matcher's confidence floor.
func WithMinMatchConfidence(min float64) Option {
	return func(c *config.Config) { c.MinMatchConfidence = min }
}

// WithAPIKey sets the remote AI client's credential.
func WithAPIKey(key string) Option {
	return func(c *config.Config) { c.APIKey = key }
}

// WithMetricsAddr sets Config.MetricsAddr. Run does not start a metrics
// endpoint from it.
func WithMetricsAddr(addr string) Option {
	return func(c *config.Config) { c.MetricsAddr = addr }
}

// LoadFolders scans targetDir for candidate destination folders up to the
// configured max depth and stores them on the pipeline for subsequent Run
// calls.
func (p *Pipeline) LoadFolders(targetDir string) error {
	folders, err := match.ScanFolders(targetDir, p.config.MaxFolderDepth)
	if err != nil {
		return fmt.Errorf("failed to scan target folders: %w", err)
	}
	p.folders = folders
	return nil
}

// FindVideos finds video files in a directory.
func FindVideos(dir string, opts discovery.Options) ([]string, error) {
	return discovery.FindVideoFiles(dir, opts)
}

// Run processes paths through the full scan -> probe -> detect -> segment ->
// analyze -> match -> organize pipeline, emitting events via handler (which
// may be nil). targetDir must already have been passed to LoadFolders.
func (p *Pipeline) Run(ctx context.Context, paths []string, targetDir string, handler EventHandler) (model.WorkflowResult, error) {
	cache, err := cachestore.New(p.config.CacheDir, p.config.PayloadVersion)
	if err != nil {
		return model.WorkflowResult{}, fmt.Errorf("failed to open cache store: %w", err)
	}

	client := aiclient.New(p.config)
	defer func() { _ = client.Close() }()

	registry := prompts.NewRegistry(p.config.LogDir)
	engine := workflow.New(p.config, cache, client, registry, p.folders, p.config.CacheDir)

	progress := func(wp model.WorkflowProgress) {
		if handler == nil {
			return
		}
		_ = handler(WorkflowProgressEvent{
			BaseEvent: BaseEvent{EventType: EventTypeWorkflowProgress, Time: NewTimestamp()},
			Phase:     string(wp.Phase),
			Step:      wp.Step,
			Percent:   wp.Percent,
			Processed: wp.Processed,
			Total:     wp.Total,
		})
	}

	result := engine.Run(ctx, paths, targetDir, progress)

	if handler != nil {
		for _, item := range result.Items {
			if item.Error != "" {
				_ = handler(VideoFailedEvent{
					BaseEvent: BaseEvent{EventType: EventTypeVideoFailed, Time: NewTimestamp()},
					Path:      item.Path,
					Stage:     item.Stage,
					Error:     item.Error,
				})
			}
			for _, rec := range item.Organized {
				_ = handler(FileOrganizedEvent{
					BaseEvent:    BaseEvent{EventType: EventTypeFileOrganized, Time: NewTimestamp()},
					OriginalPath: rec.OriginalPath,
					NewPath:      rec.NewPath,
					Op:           string(rec.Op),
					Success:      rec.Success,
					Error:        rec.Error,
				})
			}
		}
		_ = handler(BatchCompleteEvent{
			BaseEvent: BaseEvent{EventType: EventTypeBatchComplete, Time: NewTimestamp()},
			Total:     result.Total,
			Succeeded: result.Succeeded,
			Failed:    result.Failed,
			Cancelled: result.Cancelled,
		})
	}

	return result, nil
}
