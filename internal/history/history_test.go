package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/five82/reelsort/internal/model"
)

func TestAppendThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rec := model.FileOperationRecord{
		SchemaVersion: 1,
		Sequence:      1,
		ID:            "rec-1",
		Timestamp:     time.Now(),
		OriginalPath:  "/in/a.mp4",
		NewPath:       "/out/a.mp4",
		Op:            model.OpMove,
		Success:       true,
	}
	if err := Append(dir, rec); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	records, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %+v, want 1", records)
	}
	if records[0].OriginalPath != rec.OriginalPath {
		t.Fatalf("OriginalPath = %q, want %q", records[0].OriginalPath, rec.OriginalPath)
	}
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	records, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if records != nil {
		t.Fatalf("records = %+v, want nil", records)
	}
}

func TestLoadSkipsMalformedTrailingLine(t *testing.T) {
	dir := t.TempDir()
	rec := model.FileOperationRecord{ID: "rec-1", OriginalPath: "/in/a.mp4", Success: true}
	if err := Append(dir, rec); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	path := filepath.Join(dir, logFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("{not valid json"); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = f.Close()

	records, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %+v, want 1 (malformed trailing line skipped)", records)
	}
}

func TestDoneSetOnlyCountsSuccesses(t *testing.T) {
	records := []model.FileOperationRecord{
		{OriginalPath: "/in/a.mp4", Success: true},
		{OriginalPath: "/in/b.mp4", Success: false},
	}
	done := DoneSet(records)
	if !done["/in/a.mp4"] {
		t.Fatal("expected /in/a.mp4 marked done")
	}
	if done["/in/b.mp4"] {
		t.Fatal("did not expect /in/b.mp4 marked done (failed operation)")
	}
}
