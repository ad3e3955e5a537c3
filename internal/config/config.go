// Package config provides configuration types and defaults for reelsort.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default constants for detection, fusion, and segment building.
const (
	// DefaultFrameDiffThreshold is the luma-difference threshold above which a
	// FrameDifference candidate is emitted.
	DefaultFrameDiffThreshold float64 = 0.3

	// DefaultMinShotFrames is the minimum frame distance between two emissions
	// from the same detector.
	DefaultMinShotFrames int = 0

	// DefaultHistogramBins is the per-channel histogram bin count.
	DefaultHistogramBins int = 256

	// DefaultClusterTolerance is the bucket width, in frames, used by the
	// fusion engine to collapse nearby candidates into one Boundary.
	DefaultClusterTolerance int = 5

	// DefaultFusionThreshold is the minimum weighted confidence required for
	// a bucket to become a Boundary.
	DefaultFusionThreshold float64 = 0.6

	// DefaultMinDetectors is the minimum number of contributing detectors
	// required for a bucket to become a Boundary.
	DefaultMinDetectors int = 1

	// DefaultMinSegmentDuration is the minimum segment length, in seconds.
	DefaultMinSegmentDuration float64 = 1.5

	// DefaultMaxSegmentDuration is the maximum segment length, in seconds,
	// before the oversized policy applies.
	DefaultMaxSegmentDuration float64 = 120.0

	// DefaultOversizedPolicy is the segment builder's behavior when a
	// segment exceeds DefaultMaxSegmentDuration.
	DefaultOversizedPolicy string = "keep-flagged"

	// DefaultCacheTTLSeconds is the default cache entry lifetime.
	DefaultCacheTTLSeconds int64 = 30 * 24 * 3600

	// DefaultPayloadVersion is the current on-disk cache payload shape.
	DefaultPayloadVersion int = 1

	// DefaultRequestTimeoutSeconds is the per-call timeout for the remote AI client.
	DefaultRequestTimeoutSeconds int = 120

	// DefaultRetryBaseSeconds is the initial backoff delay for retried calls.
	DefaultRetryBaseSeconds float64 = 5.0

	// DefaultRetryMultiplier is the backoff growth factor.
	DefaultRetryMultiplier float64 = 2.0

	// DefaultMaxAttempts is the maximum number of attempts for a retried call.
	DefaultMaxAttempts int = 3

	// DefaultMaxConcurrentRequests is the remote AI client's rate limit, in
	// requests per second and as burst size; it does not cap requests in flight.
	DefaultMaxConcurrentRequests int = 4

	// DefaultMaxFolderDepth bounds the recursive folder scan in the matcher.
	DefaultMaxFolderDepth int = 3

	// DefaultMinMatchConfidence is the matcher's default confidence floor.
	DefaultMinMatchConfidence float64 = 0.4

	// DefaultMaxMatches bounds the number of folder matches returned.
	DefaultMaxMatches int = 5

	// DefaultMaxFilenamePrefixLen caps the sanitized filename stem (prefix and
	// original base name together, extension excluded).
	DefaultMaxFilenamePrefixLen int = 50

	// DefaultWorkers is the workflow engine's default worker pool size.
	DefaultWorkers int = 3

	// DefaultFrameWindow bounds how many decoded frames a detector retains at once.
	DefaultFrameWindow int = 3
)

// ActionThresholds maps match confidence to an organizer action.
// Non-decreasing by construction; validated in Validate.
type ActionThresholds struct {
	Move float64
	Copy float64
	Link float64
}

// DefaultActionThresholds returns the default confidence-to-action mapping.
func DefaultActionThresholds() ActionThresholds {
	return ActionThresholds{Move: 0.8, Copy: 0.6, Link: 0.4}
}

// Config holds all configuration for a reelsort run. A Config is built once by
// NewConfig, optionally overridden from a YAML file via LoadOverrides, and then
// treated as read-only for the life of the run.
type Config struct {
	// Paths
	CacheDir string
	LogDir   string
	TempDir  string

	// Detection
	FrameDiffThreshold  float64
	HistogramBins       int
	HistogramColorSpace string // "rgb", "hsv", "lab"
	HistogramDistance   string // "correlation", "chi-square", "intersection"
	AdaptiveThreshold   bool
	MinShotFrames       int
	FrameWindow         int
	DetectorCPUBudget   int // max concurrent detector goroutines; 0 = auto

	// Fusion
	FusionWeights    map[string]float64
	ClusterTolerance int
	FusionThreshold  float64
	MinDetectors     int

	// Segment building
	MinSegmentDuration float64
	MaxSegmentDuration float64
	OversizedPolicy    string // "keep-flagged" or "split"

	// Cache
	CacheTTLSeconds int64
	PayloadVersion  int

	// Remote AI client
	RequestTimeoutSeconds int
	RetryBaseSeconds      float64
	RetryMultiplier       float64
	MaxAttempts           int
	MaxConcurrentRequests int
	APIKey                string
	APIBaseURL            string
	ModelID               string

	// Folder matcher
	MaxFolderDepth     int
	MinMatchConfidence float64
	MaxMatches         int
	ActionThresholds   ActionThresholds

	// File organizer
	NamingMode           string // preserve-original | smart | content-based | timestamp | custom
	ConflictPolicy       string // skip | overwrite | rename
	MaxFilenamePrefixLen int
	BackupOnMove         bool

	// Workflow engine
	Workers     int
	MetricsAddr string // stored only; no package in this module serves an endpoint on it

	// Debug
	Verbose bool
}

// NewConfig creates a new Config with default values rooted at the given
// cache and log directories.
func NewConfig(cacheDir, logDir string) *Config {
	return &Config{
		CacheDir: cacheDir,
		LogDir:   logDir,

		FrameDiffThreshold:  DefaultFrameDiffThreshold,
		HistogramBins:       DefaultHistogramBins,
		HistogramColorSpace: "rgb",
		HistogramDistance:   "correlation",
		AdaptiveThreshold:   false,
		MinShotFrames:       DefaultMinShotFrames,
		FrameWindow:         DefaultFrameWindow,

		FusionWeights:    map[string]float64{"frame-diff": 1.0, "histogram": 1.0},
		ClusterTolerance: DefaultClusterTolerance,
		FusionThreshold:  DefaultFusionThreshold,
		MinDetectors:     DefaultMinDetectors,

		MinSegmentDuration: DefaultMinSegmentDuration,
		MaxSegmentDuration: DefaultMaxSegmentDuration,
		OversizedPolicy:    DefaultOversizedPolicy,

		CacheTTLSeconds: DefaultCacheTTLSeconds,
		PayloadVersion:  DefaultPayloadVersion,

		RequestTimeoutSeconds: DefaultRequestTimeoutSeconds,
		RetryBaseSeconds:      DefaultRetryBaseSeconds,
		RetryMultiplier:       DefaultRetryMultiplier,
		MaxAttempts:           DefaultMaxAttempts,
		MaxConcurrentRequests: DefaultMaxConcurrentRequests,
		ModelID:               "gemini-1.5-flash",

		MaxFolderDepth:     DefaultMaxFolderDepth,
		MinMatchConfidence: DefaultMinMatchConfidence,
		MaxMatches:         DefaultMaxMatches,
		ActionThresholds:   DefaultActionThresholds(),

		NamingMode:           "preserve-original",
		ConflictPolicy:       "rename",
		MaxFilenamePrefixLen: DefaultMaxFilenamePrefixLen,

		Workers: DefaultWorkers,
	}
}

// LoadOverrides reads a YAML file and applies any fields it sets on top of c.
// Missing fields are left untouched. A missing file is not an error.
func (c *Config) LoadOverrides(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var overrides configOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	overrides.applyTo(c)
	return nil
}

// configOverrides mirrors Config's fields as pointers so the zero value means
// "not set" rather than "set to zero".
type configOverrides struct {
	FrameDiffThreshold    *float64           `yaml:"frame_diff_threshold"`
	HistogramBins         *int               `yaml:"histogram_bins"`
	AdaptiveThreshold     *bool              `yaml:"adaptive_threshold"`
	MinShotFrames         *int               `yaml:"min_shot_frames"`
	FusionWeights         map[string]float64 `yaml:"fusion_weights"`
	ClusterTolerance      *int               `yaml:"cluster_tolerance"`
	FusionThreshold       *float64           `yaml:"fusion_threshold"`
	MinSegmentDuration    *float64           `yaml:"min_segment_duration"`
	MaxSegmentDuration    *float64           `yaml:"max_segment_duration"`
	OversizedPolicy       *string            `yaml:"oversized_policy"`
	CacheTTLSeconds       *int64             `yaml:"cache_ttl_seconds"`
	MaxConcurrentRequests *int               `yaml:"max_concurrent_requests"`
	MaxFolderDepth        *int               `yaml:"max_folder_depth"`
	MinMatchConfidence    *float64           `yaml:"min_match_confidence"`
	MaxMatches            *int               `yaml:"max_matches"`
	NamingMode            *string            `yaml:"naming_mode"`
	ConflictPolicy        *string            `yaml:"conflict_policy"`
	Workers               *int               `yaml:"workers"`
	MetricsAddr           *string            `yaml:"metrics_addr"`
}

func (o configOverrides) applyTo(c *Config) {
	if o.FrameDiffThreshold != nil {
		c.FrameDiffThreshold = *o.FrameDiffThreshold
	}
	if o.HistogramBins != nil {
		c.HistogramBins = *o.HistogramBins
	}
	if o.AdaptiveThreshold != nil {
		c.AdaptiveThreshold = *o.AdaptiveThreshold
	}
	if o.MinShotFrames != nil {
		c.MinShotFrames = *o.MinShotFrames
	}
	if o.FusionWeights != nil {
		c.FusionWeights = o.FusionWeights
	}
	if o.ClusterTolerance != nil {
		c.ClusterTolerance = *o.ClusterTolerance
	}
	if o.FusionThreshold != nil {
		c.FusionThreshold = *o.FusionThreshold
	}
	if o.MinSegmentDuration != nil {
		c.MinSegmentDuration = *o.MinSegmentDuration
	}
	if o.MaxSegmentDuration != nil {
		c.MaxSegmentDuration = *o.MaxSegmentDuration
	}
	if o.OversizedPolicy != nil {
		c.OversizedPolicy = *o.OversizedPolicy
	}
	if o.CacheTTLSeconds != nil {
		c.CacheTTLSeconds = *o.CacheTTLSeconds
	}
	if o.MaxConcurrentRequests != nil {
		c.MaxConcurrentRequests = *o.MaxConcurrentRequests
	}
	if o.MaxFolderDepth != nil {
		c.MaxFolderDepth = *o.MaxFolderDepth
	}
	if o.MinMatchConfidence != nil {
		c.MinMatchConfidence = *o.MinMatchConfidence
	}
	if o.MaxMatches != nil {
		c.MaxMatches = *o.MaxMatches
	}
	if o.NamingMode != nil {
		c.NamingMode = *o.NamingMode
	}
	if o.ConflictPolicy != nil {
		c.ConflictPolicy = *o.ConflictPolicy
	}
	if o.Workers != nil {
		c.Workers = *o.Workers
	}
	if o.MetricsAddr != nil {
		c.MetricsAddr = *o.MetricsAddr
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.FrameDiffThreshold < 0 || c.FrameDiffThreshold > 1 {
		return fmt.Errorf("frame_diff_threshold must be in [0,1], got %g", c.FrameDiffThreshold)
	}
	if c.HistogramBins < 1 {
		return fmt.Errorf("histogram_bins must be positive, got %d", c.HistogramBins)
	}
	if c.ClusterTolerance < 0 {
		return fmt.Errorf("cluster_tolerance must be non-negative, got %d", c.ClusterTolerance)
	}
	if c.FusionThreshold < 0 || c.FusionThreshold > 1 {
		return fmt.Errorf("fusion_threshold must be in [0,1], got %g", c.FusionThreshold)
	}
	if c.MinDetectors < 1 {
		return fmt.Errorf("min_detectors must be at least 1, got %d", c.MinDetectors)
	}
	if c.MinSegmentDuration <= 0 {
		return fmt.Errorf("min_segment_duration must be positive, got %g", c.MinSegmentDuration)
	}
	if c.MaxSegmentDuration < c.MinSegmentDuration {
		return fmt.Errorf("max_segment_duration (%g) must be >= min_segment_duration (%g)", c.MaxSegmentDuration, c.MinSegmentDuration)
	}
	if c.OversizedPolicy != "keep-flagged" && c.OversizedPolicy != "split" {
		return fmt.Errorf("oversized_policy must be keep-flagged or split, got %q", c.OversizedPolicy)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.MaxConcurrentRequests < 1 {
		return fmt.Errorf("max_concurrent_requests must be at least 1, got %d", c.MaxConcurrentRequests)
	}
	if c.MaxFolderDepth < 1 {
		return fmt.Errorf("max_folder_depth must be at least 1, got %d", c.MaxFolderDepth)
	}
	if c.MinMatchConfidence < 0 || c.MinMatchConfidence > 1 {
		return fmt.Errorf("min_match_confidence must be in [0,1], got %g", c.MinMatchConfidence)
	}
	at := c.ActionThresholds
	if !(at.Move >= at.Copy && at.Copy >= at.Link) {
		return fmt.Errorf("action thresholds must be non-decreasing move>=copy>=link, got move=%g copy=%g link=%g", at.Move, at.Copy, at.Link)
	}
	switch c.NamingMode {
	case "preserve-original", "smart", "content-based", "timestamp", "custom":
	default:
		return fmt.Errorf("naming_mode %q is not recognized", c.NamingMode)
	}
	switch c.ConflictPolicy {
	case "skip", "overwrite", "rename":
	default:
		return fmt.Errorf("conflict_policy %q is not recognized", c.ConflictPolicy)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.MaxFilenamePrefixLen < 1 {
		return fmt.Errorf("max_filename_prefix_len must be positive, got %d", c.MaxFilenamePrefixLen)
	}
	return nil
}

// ActionFor maps a match confidence to an organizer action per the
// non-decreasing step function (move >= copy >= link >= ignore).
func (c *Config) ActionFor(confidence float64) string {
	switch {
	case confidence >= c.ActionThresholds.Move:
		return "move"
	case confidence >= c.ActionThresholds.Copy:
		return "copy"
	case confidence >= c.ActionThresholds.Link:
		return "link"
	default:
		return "ignore"
	}
}
