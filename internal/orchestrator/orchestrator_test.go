package orchestrator

import (
	"context"
	"testing"

	"github.com/five82/reelsort/internal/aiclient"
	"github.com/five82/reelsort/internal/cachestore"
	"github.com/five82/reelsort/internal/config"
	"github.com/five82/reelsort/internal/model"
	"github.com/five82/reelsort/internal/prompts"
)

type fakeClient struct {
	generateCalls int
	reply         string
	err           error
}

func (f *fakeClient) Upload(ctx context.Context, path, mimeHint string) (aiclient.RemoteHandle, error) {
	return aiclient.RemoteHandle{URI: "fake://" + path}, nil
}

func (f *fakeClient) Generate(ctx context.Context, prompt string, attachments []aiclient.RemoteHandle, params aiclient.GenerationParams) (aiclient.RawReply, error) {
	f.generateCalls++
	if f.err != nil {
		return aiclient.RawReply{}, f.err
	}
	return aiclient.RawReply{Text: f.reply}, nil
}

func newTestOrchestrator(t *testing.T, client *fakeClient) *Orchestrator {
	t.Helper()
	cache, err := cachestore.New(t.TempDir(), 1)
	if err != nil {
		t.Fatalf("cachestore.New() error = %v", err)
	}
	cfg := config.NewConfig(t.TempDir(), t.TempDir())
	registry := prompts.NewRegistry(t.TempDir())
	return New(client, cache, registry, cfg)
}

func TestAnalyzeCacheHitSkipsSecondGenerate(t *testing.T) {
	client := &fakeClient{reply: `{"description":"a red shoe","category":"product","qualityOverall":0.8}`}
	o := newTestOrchestrator(t, client)
	seg := model.Segment{ID: "seg1"}

	first, err := o.Analyze(context.Background(), seg, "checksum-1", "/tmp/clip.mp4", []prompts.Name{prompts.Product}, false, nil)
	if err != nil {
		t.Fatalf("first Analyze() error = %v", err)
	}
	if client.generateCalls != 1 {
		t.Fatalf("generateCalls after first run = %d, want 1", client.generateCalls)
	}

	second, err := o.Analyze(context.Background(), seg, "checksum-1", "/tmp/clip.mp4", []prompts.Name{prompts.Product}, false, nil)
	if err != nil {
		t.Fatalf("second Analyze() error = %v", err)
	}
	if client.generateCalls != 1 {
		t.Fatalf("generateCalls after second run = %d, want 1 (cache hit)", client.generateCalls)
	}
	if first.Summary.Description != second.Summary.Description {
		t.Fatalf("cached result mismatch: %q vs %q", first.Summary.Description, second.Summary.Description)
	}
}

func TestAnalyzeAllPromptsFail(t *testing.T) {
	client := &fakeClient{err: context.DeadlineExceeded}
	o := newTestOrchestrator(t, client)
	seg := model.Segment{ID: "seg1"}

	_, err := o.Analyze(context.Background(), seg, "checksum-1", "/tmp/clip.mp4", []prompts.Name{prompts.Product}, true, nil)
	if err == nil {
		t.Fatal("expected AnalysisUnavailableError")
	}
	if _, ok := err.(*AnalysisUnavailableError); !ok {
		t.Fatalf("err = %T, want *AnalysisUnavailableError", err)
	}
}

func TestMergeIntoDedupesScenesAndObjects(t *testing.T) {
	result := &model.AnalysisResult{}
	seenScenes := map[string]bool{}
	seenObjects := map[string]bool{}

	data := map[string]any{
		"scenes": []any{
			map[string]any{"startTime": 1.0, "name": "intro", "description": "a"},
		},
	}
	mergeInto(result, data, "fp1", seenScenes, seenObjects)
	mergeInto(result, data, "fp1", seenScenes, seenObjects) // duplicate scene, should not double up

	if len(result.Scenes) != 1 {
		t.Fatalf("Scenes = %+v, want exactly 1 after dedup", result.Scenes)
	}
}

func TestMergeIntoAggregatesQualityByMax(t *testing.T) {
	result := &model.AnalysisResult{}
	seenScenes := map[string]bool{}
	seenObjects := map[string]bool{}

	mergeInto(result, map[string]any{"qualityOverall": 0.3}, "fp1", seenScenes, seenObjects)
	mergeInto(result, map[string]any{"qualityOverall": 0.9}, "fp2", seenScenes, seenObjects)

	if result.QualityMetrics.Overall != 0.9 {
		t.Fatalf("QualityMetrics.Overall = %v, want 0.9 (max)", result.QualityMetrics.Overall)
	}
}
