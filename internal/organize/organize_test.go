package organize

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/five82/reelsort/internal/config"
	"github.com/five82/reelsort/internal/model"
)

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig(t.TempDir(), t.TempDir())
	cfg.TempDir = t.TempDir()
	return cfg
}

func TestOrganizeMovePreservesOriginalName(t *testing.T) {
	srcDir := t.TempDir()
	targetDir := t.TempDir()
	src := writeFixture(t, srcDir, "clip.mp4", "video-bytes")

	cfg := testConfig(t)
	cfg.NamingMode = "preserve-original"

	rec, err := Organize(Request{
		SegmentFilePath: src,
		TargetFolder:    targetDir,
		Mode:            "move",
	}, cfg)
	if err != nil {
		t.Fatalf("Organize() error = %v", err)
	}
	if !rec.Success {
		t.Fatalf("record = %+v, want success", rec)
	}
	if rec.Op != model.OpMove {
		t.Fatalf("Op = %v, want move", rec.Op)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatal("original should no longer exist after move")
	}
	if _, err := os.Stat(rec.NewPath); err != nil {
		t.Fatalf("new path should exist: %v", err)
	}
	if filepath.Base(rec.NewPath) != "clip.mp4" {
		t.Fatalf("NewPath base = %s, want clip.mp4", filepath.Base(rec.NewPath))
	}
}

func TestOrganizeCopyKeepsBothFilesWithMatchingChecksum(t *testing.T) {
	srcDir := t.TempDir()
	targetDir := t.TempDir()
	src := writeFixture(t, srcDir, "clip.mp4", "video-bytes")

	cfg := testConfig(t)

	rec, err := Organize(Request{
		SegmentFilePath: src,
		TargetFolder:    targetDir,
		Mode:            "copy",
	}, cfg)
	if err != nil {
		t.Fatalf("Organize() error = %v", err)
	}
	if !rec.Success {
		t.Fatalf("record = %+v, want success", rec)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatal("original should still exist after copy")
	}
	srcBytes, _ := os.ReadFile(src)
	destBytes, _ := os.ReadFile(rec.NewPath)
	if string(srcBytes) != string(destBytes) {
		t.Fatal("copied file content mismatch")
	}
}

func TestOrganizeConflictRename(t *testing.T) {
	srcDir := t.TempDir()
	targetDir := t.TempDir()
	writeFixture(t, targetDir, "clip.mp4", "existing")
	src := writeFixture(t, srcDir, "clip.mp4", "new-content")

	cfg := testConfig(t)
	cfg.ConflictPolicy = "rename"

	rec, err := Organize(Request{
		SegmentFilePath: src,
		TargetFolder:    targetDir,
		Mode:            "copy",
	}, cfg)
	if err != nil {
		t.Fatalf("Organize() error = %v", err)
	}
	if rec.NewPath == filepath.Join(targetDir, "clip.mp4") {
		t.Fatal("expected renamed destination, got original conflicting path")
	}
	if filepath.Base(rec.NewPath) != "clip_1.mp4" {
		t.Fatalf("NewPath base = %s, want clip_1.mp4", filepath.Base(rec.NewPath))
	}
}

func TestOrganizeConflictSkipFails(t *testing.T) {
	srcDir := t.TempDir()
	targetDir := t.TempDir()
	writeFixture(t, targetDir, "clip.mp4", "existing")
	src := writeFixture(t, srcDir, "clip.mp4", "new-content")

	cfg := testConfig(t)
	cfg.ConflictPolicy = "skip"

	rec, err := Organize(Request{
		SegmentFilePath: src,
		TargetFolder:    targetDir,
		Mode:            "copy",
	}, cfg)
	if err == nil {
		t.Fatal("expected error for skip conflict policy")
	}
	if rec.Success {
		t.Fatal("record should not be marked successful")
	}
	if rec.Op != model.OpSkip {
		t.Fatalf("Op = %v, want skip", rec.Op)
	}
}

func TestOrganizeSmartNamingUsesCategory(t *testing.T) {
	srcDir := t.TempDir()
	targetDir := t.TempDir()
	src := writeFixture(t, srcDir, "clip.mp4", "video-bytes")

	cfg := testConfig(t)
	cfg.NamingMode = "smart"

	rec, err := Organize(Request{
		SegmentFilePath: src,
		TargetFolder:    targetDir,
		Mode:            "copy",
		Analysis:        model.AnalysisResult{Summary: model.Summary{Category: "产品展示"}},
	}, cfg)
	if err != nil {
		t.Fatalf("Organize() error = %v", err)
	}
	if filepath.Base(rec.NewPath) != "产品展示_clip.mp4" {
		t.Fatalf("NewPath base = %s, want 产品展示_clip.mp4", filepath.Base(rec.NewPath))
	}
}

func TestSanitizeReplacesReservedCharsAndTruncates(t *testing.T) {
	name := sanitize(`a:b<c>d  e.mp4`, 50)
	if name != "a_b_c_d_e.mp4" {
		t.Fatalf("sanitize() = %q", name)
	}

	long := sanitize(strings.Repeat("x", 100)+".mp4", 10)
	if len(strings.TrimSuffix(long, ".mp4")) != 10 {
		t.Fatalf("sanitize() did not truncate prefix: %q", long)
	}
}

func TestOrganizeMoveWithBackupWritesManifestEntry(t *testing.T) {
	srcDir := t.TempDir()
	targetDir := t.TempDir()
	src := writeFixture(t, srcDir, "clip.mp4", "video-bytes")

	cfg := testConfig(t)
	cfg.BackupOnMove = true

	rec, err := Organize(Request{
		SegmentFilePath: src,
		TargetFolder:    targetDir,
		Mode:            "move",
	}, cfg)
	if err != nil {
		t.Fatalf("Organize() error = %v", err)
	}
	if rec.BackupPath == "" {
		t.Fatal("expected a BackupPath to be recorded")
	}
	if _, err := os.Stat(rec.BackupPath); err != nil {
		t.Fatalf("backup file should exist: %v", err)
	}

	manifestPath := filepath.Join(filepath.Dir(rec.BackupPath), backupManifestName)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if !strings.Contains(string(data), rec.BackupPath) {
		t.Fatalf("manifest %q does not reference backup path %q", data, rec.BackupPath)
	}
}

func TestNormalizeExtFallsBackToMp4ForUnknown(t *testing.T) {
	if got := normalizeExt(".xyz"); got != ".mp4" {
		t.Fatalf("normalizeExt(.xyz) = %q, want .mp4", got)
	}
	if got := normalizeExt(".MKV"); got != ".mkv" {
		t.Fatalf("normalizeExt(.MKV) = %q, want .mkv", got)
	}
}
