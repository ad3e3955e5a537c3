package model

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestAnalysisResultRoundTrip(t *testing.T) {
	want := AnalysisResult{
		SchemaVersion: 1,
		SegmentID:     "abc123",
		Summary: Summary{
			Description: "a product demo",
			Keywords:    []string{"shoe", "red"},
			Topics:      []string{"fashion"},
			Mood:        "energetic",
			Category:    "product",
		},
		Scenes: []SceneDescription{{StartTime: 1.5, Name: "intro", Description: "opening shot"}},
		Objects: []DetectedObject{{StartTime: 2.0, Name: "sneaker", Confidence: 0.9}},
		QualityMetrics: QualityMetrics{Overall: 0.8, Detection: 0.7, Depth: 0.6},
		ModelID:        "gemini-1.5-flash",
		CreatedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		PromptFingerprint: "fp1",
	}

	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got AnalysisResult
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Fatalf("CreatedAt mismatch: got %v want %v", got.CreatedAt, want.CreatedAt)
	}
	got.CreatedAt = want.CreatedAt
	gotJSON, _ := json.Marshal(got)
	wantJSON, _ := json.Marshal(want)
	if string(gotJSON) != string(wantJSON) {
		t.Fatalf("round trip mismatch:\ngot:  %s\nwant: %s", gotJSON, wantJSON)
	}
}

func TestMatchResultRoundTrip(t *testing.T) {
	want := MatchResult{
		SchemaVersion: 1,
		SegmentID:     "seg1",
		FolderPath:    "/dest/shoes",
		Confidence:    0.85,
		Reasons:       []string{"exact keyword hit: shoes"},
		RuleScore:     0.7,
		SemanticScore: 0.85,
		Action:        ActionMove,
	}
	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got MatchResult
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
}

func TestFileOperationRecordRoundTrip(t *testing.T) {
	want := FileOperationRecord{
		SchemaVersion: 1,
		Sequence:      42,
		ID:            "rec-1",
		Timestamp:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		OriginalPath:  "/src/clip.mp4",
		NewPath:       "/dest/clip_1.mp4",
		Op:            OpCopy,
		Success:       true,
	}
	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got FileOperationRecord
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got.Timestamp.Equal(want.Timestamp) {
		t.Fatalf("Timestamp mismatch")
	}
	got.Timestamp = want.Timestamp
	if got != want {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
}

func TestQualityMetricsMax(t *testing.T) {
	a := QualityMetrics{Overall: 0.5, Detection: 0.9, Depth: 0.1}
	b := QualityMetrics{Overall: 0.8, Detection: 0.2, Depth: 0.3}
	got := a.Max(b)
	want := QualityMetrics{Overall: 0.8, Detection: 0.9, Depth: 0.3}
	if got != want {
		t.Fatalf("Max() = %+v, want %+v", got, want)
	}
}

func TestVideoTotalFrames(t *testing.T) {
	v := Video{DurationSeconds: 6.0, FPS: 10}
	if got, want := v.TotalFrames(), 60; got != want {
		t.Fatalf("TotalFrames() = %d, want %d", got, want)
	}
	zero := Video{DurationSeconds: 6.0, FPS: 0}
	if got := zero.TotalFrames(); got != 0 {
		t.Fatalf("TotalFrames() with zero fps = %d, want 0", got)
	}
}
