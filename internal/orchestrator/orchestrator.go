// Package orchestrator runs one or more analysis prompts per segment against
// the remote AI client, merging structured results and mediating the cache.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/five82/reelsort/internal/aiclient"
	"github.com/five82/reelsort/internal/cachestore"
	"github.com/five82/reelsort/internal/config"
	"github.com/five82/reelsort/internal/model"
	"github.com/five82/reelsort/internal/prompts"
)

// AnalysisUnavailableError is returned when every prompt for a segment fails.
type AnalysisUnavailableError struct {
	SegmentID string
	Errs      []error
}

func (e *AnalysisUnavailableError) Error() string {
	return fmt.Sprintf("analysis unavailable for segment %s: %d prompt(s) failed", e.SegmentID, len(e.Errs))
}

// ProgressEvent is emitted at step boundaries while analyzing one segment.
type ProgressEvent struct {
	Phase      string
	StepIndex  int
	TotalSteps int
	Message    string
}

// ProgressFunc receives ProgressEvents; it is never called with any lock held.
type ProgressFunc func(ProgressEvent)

// RemoteClient is the subset of *aiclient.Client the orchestrator needs;
// tests inject a double rather than hitting the network.
type RemoteClient interface {
	Upload(ctx context.Context, path, mimeHint string) (aiclient.RemoteHandle, error)
	Generate(ctx context.Context, prompt string, attachments []aiclient.RemoteHandle, params aiclient.GenerationParams) (aiclient.RawReply, error)
}

// Orchestrator runs prompts against a segment and merges their results.
type Orchestrator struct {
	client   RemoteClient
	cache    *cachestore.Store
	registry *prompts.Registry
	cfg      *config.Config
}

// New constructs an Orchestrator.
func New(client RemoteClient, cache *cachestore.Store, registry *prompts.Registry, cfg *config.Config) *Orchestrator {
	return &Orchestrator{client: client, cache: cache, registry: registry, cfg: cfg}
}

// promptOptions is canonicalized to JSON and folded into the prompt
// fingerprint (a hash of the rendered template and these options); the cache
// key is that fingerprint joined to the video checksum as
// fingerprint + ":" + videoChecksum.
type promptOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"topP"`
}

func (o promptOptions) canonicalJSON() string {
	b, _ := json.Marshal(o)
	return string(b)
}

// Analyze runs promptNames (or just Comprehensive if empty) against segment,
// using videoChecksum and segmentFilePath (the extracted clip used for
// upload) as cache/content inputs, and merges the results.
func (o *Orchestrator) Analyze(ctx context.Context, segment model.Segment, videoChecksum, segmentFilePath string, promptNames []prompts.Name, noCache bool, progress ProgressFunc) (model.AnalysisResult, error) {
	if len(promptNames) == 0 {
		promptNames = []prompts.Name{prompts.Comprehensive}
	}

	result := model.AnalysisResult{
		SchemaVersion: config.DefaultPayloadVersion,
		SegmentID:     segment.ID,
		CreatedAt:     time.Now(),
		ModelID:       o.cfg.ModelID,
	}

	var errs []error
	seenScenes := map[string]bool{}
	seenObjects := map[string]bool{}

	for i, name := range promptNames {
		emit(progress, ProgressEvent{Phase: "analyzing", StepIndex: i, TotalSteps: len(promptNames), Message: string(name)})

		parsed, fingerprint, err := o.runOnePrompt(ctx, name, segment, videoChecksum, segmentFilePath, noCache)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		mergeInto(&result, parsed, fingerprint, seenScenes, seenObjects)
	}

	if len(errs) == len(promptNames) {
		return model.AnalysisResult{}, &AnalysisUnavailableError{SegmentID: segment.ID, Errs: errs}
	}
	return result, nil
}

func (o *Orchestrator) runOnePrompt(ctx context.Context, name prompts.Name, segment model.Segment, videoChecksum, segmentFilePath string, noCache bool) (map[string]any, string, error) {
	template, err := o.registry.Load(name)
	if err != nil {
		return nil, "", err
	}
	rendered := prompts.Render(template, map[string]string{
		"contentDescription": segment.ID,
	})
	opts := promptOptions{Temperature: 0.2, TopP: 0.9}
	fingerprint := prompts.Fingerprint(rendered, opts.canonicalJSON())
	cacheKey := fingerprint + ":" + videoChecksum

	if !noCache {
		if payload, hit, err := o.cache.Lookup(cacheKey, videoChecksum); err == nil && hit {
			var data map[string]any
			if err := json.Unmarshal(payload, &data); err == nil {
				return data, fingerprint, nil
			}
		}
	}

	handle, err := o.client.Upload(ctx, segmentFilePath, "")
	if err != nil {
		return nil, "", fmt.Errorf("upload failed for prompt %s: %w", name, err)
	}
	reply, err := o.client.Generate(ctx, rendered, []aiclient.RemoteHandle{handle}, aiclient.GenerationParams{
		Temperature:     opts.Temperature,
		TopP:            opts.TopP,
		MaxOutputTokens: 2048,
	})
	if err != nil {
		return nil, "", fmt.Errorf("generate failed for prompt %s: %w", name, err)
	}

	parseResult, err := aiclient.ParseJSONInProse(reply.Text)
	if err != nil {
		return nil, "", fmt.Errorf("parse failed for prompt %s: %w", name, err)
	}

	if !noCache {
		if payload, err := json.Marshal(parseResult.Data); err == nil {
			_ = o.cache.Put(cacheKey, payload, videoChecksum, time.Duration(o.cfg.CacheTTLSeconds)*time.Second)
		}
	}
	return parseResult.Data, fingerprint, nil
}

// mergeInto folds one prompt's parsed data into the accumulating result,
// unioning scenes/objects by (startTime, name) and taking summary fields
// from the first non-empty source.
func mergeInto(result *model.AnalysisResult, data map[string]any, fingerprint string, seenScenes, seenObjects map[string]bool) {
	if result.PromptFingerprint == "" {
		result.PromptFingerprint = fingerprint
	}

	if desc, ok := data["description"].(string); ok && result.Summary.Description == "" {
		result.Summary.Description = desc
	}
	if category, ok := data["category"].(string); ok && result.Summary.Category == "" {
		result.Summary.Category = category
	}
	if mood, ok := data["mood"].(string); ok && result.Summary.Mood == "" {
		result.Summary.Mood = mood
	}
	if keywords := stringSlice(data["keywords"]); len(keywords) > 0 && len(result.Summary.Keywords) == 0 {
		result.Summary.Keywords = keywords
	}
	if topics := stringSlice(data["topics"]); len(topics) > 0 && len(result.Summary.Topics) == 0 {
		result.Summary.Topics = topics
	}
	result.ProductFeatures = append(result.ProductFeatures, stringSlice(data["productFeatures"])...)

	for _, raw := range sliceOf(data["scenes"]) {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		sd := model.SceneDescription{
			StartTime:   floatOf(m["startTime"]),
			Name:        stringOf(m["name"]),
			Description: stringOf(m["description"]),
		}
		key := fmt.Sprintf("%v|%s", sd.StartTime, sd.Name)
		if !seenScenes[key] {
			seenScenes[key] = true
			result.Scenes = append(result.Scenes, sd)
		}
	}
	for _, raw := range sliceOf(data["objects"]) {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		ob := model.DetectedObject{
			StartTime:  floatOf(m["startTime"]),
			Name:       stringOf(m["name"]),
			Confidence: floatOf(m["confidence"]),
		}
		key := fmt.Sprintf("%v|%s", ob.StartTime, ob.Name)
		if !seenObjects[key] {
			seenObjects[key] = true
			result.Objects = append(result.Objects, ob)
		}
	}

	quality := model.QualityMetrics{
		Overall:   floatOf(data["qualityOverall"]),
		Detection: floatOf(data["qualityDetection"]),
		Depth:     floatOf(data["qualityDepth"]),
	}
	result.QualityMetrics = result.QualityMetrics.Max(quality)
}

func emit(progress ProgressFunc, ev ProgressEvent) {
	if progress != nil {
		progress(ev)
	}
}

func sliceOf(v any) []any {
	s, _ := v.([]any)
	return s
}

func stringSlice(v any) []string {
	raw := sliceOf(v)
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func floatOf(v any) float64 {
	f, _ := v.(float64)
	return f
}
