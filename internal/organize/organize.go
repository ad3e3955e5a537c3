// Package organize executes copy/move operations for matched segments:
// destination naming, sanitization, conflict resolution, and atomic moves.
package organize

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/five82/reelsort/internal/config"
	"github.com/five82/reelsort/internal/model"
	"github.com/five82/reelsort/internal/util"
)

// knownExtensions is the whitelist used to normalize extensions under the
// preserve-original naming mode; anything else falls back to .mp4.
var knownExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".mov": true, ".avi": true,
	".webm": true, ".m4v": true, ".wmv": true, ".flv": true,
}

var reservedCharsRE = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
var whitespaceRE = regexp.MustCompile(`\s+`)

// Request describes one organize operation.
type Request struct {
	SegmentFilePath string
	Analysis        model.AnalysisResult
	TargetFolder    string
	NamingMode      string // "" uses cfg.NamingMode
	CustomNamer     func(segmentPath string, analysis model.AnalysisResult) string
	Mode            string // "copy" or "move"; "" means "move"
}

// Organize performs the full destination-name-generation, conflict-
// resolution, and atomic-write sequence, returning the resulting
// FileOperationRecord whether or not the operation succeeded.
func Organize(req Request, cfg *config.Config) (model.FileOperationRecord, error) {
	record := model.FileOperationRecord{
		SchemaVersion: cfg.PayloadVersion,
		Timestamp:     time.Now(),
		OriginalPath:  req.SegmentFilePath,
	}

	mode := req.Mode
	if mode == "" {
		mode = "move"
	}
	op := model.OpCopy
	if mode == "move" {
		op = model.OpMove
	}
	record.Op = op

	if req.TargetFolder != "" {
		if err := os.MkdirAll(req.TargetFolder, 0755); err != nil {
			record.Success = false
			record.Error = err.Error()
			return record, fmt.Errorf("failed to create target folder %s: %w", req.TargetFolder, err)
		}
	}

	namingMode := req.NamingMode
	if namingMode == "" {
		namingMode = cfg.NamingMode
	}
	name := generateName(namingMode, req, cfg)
	name = sanitize(name, cfg.MaxFilenamePrefixLen)

	destPath, err := resolveConflict(filepath.Join(req.TargetFolder, name), cfg.ConflictPolicy)
	if err != nil {
		record.Success = false
		record.Error = err.Error()
		record.Op = model.OpSkip
		return record, err
	}
	record.NewPath = destPath

	if op == model.OpMove && cfg.BackupOnMove {
		backupPath, err := backupOriginal(req.SegmentFilePath, cfg)
		if err != nil {
			record.Success = false
			record.Error = err.Error()
			return record, err
		}
		record.BackupPath = backupPath
	}

	if op == model.OpMove {
		if err := atomicMove(req.SegmentFilePath, destPath); err != nil {
			record.Success = false
			record.Error = err.Error()
			return record, err
		}
	} else {
		if err := streamCopy(req.SegmentFilePath, destPath); err != nil {
			record.Success = false
			record.Error = err.Error()
			return record, err
		}
	}

	record.Success = true
	return record, nil
}

// generateName builds the destination base filename per the configured
// naming mode.
func generateName(mode string, req Request, cfg *config.Config) string {
	base := filepath.Base(req.SegmentFilePath)
	ext := normalizeExt(filepath.Ext(base))
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	switch mode {
	case "preserve-original":
		return stem + ext
	case "smart":
		prefix := smartPrefix(req.Analysis)
		return prefix + "_" + stem + ext
	case "content-based":
		prefix := contentBasedPrefix(req.Analysis)
		return prefix + "_" + stem + ext
	case "timestamp":
		return "video_" + time.Now().UTC().Format("20060102T150405Z") + ext
	case "custom":
		if req.CustomNamer != nil {
			return req.CustomNamer(req.SegmentFilePath, req.Analysis)
		}
		return stem + ext
	default:
		return stem + ext
	}
}

func normalizeExt(ext string) string {
	lower := strings.ToLower(ext)
	if knownExtensions[lower] {
		return lower
	}
	return ".mp4"
}

func smartPrefix(a model.AnalysisResult) string {
	if a.Summary.Category != "" {
		return a.Summary.Category
	}
	if len(a.Summary.Keywords) > 0 {
		return a.Summary.Keywords[0]
	}
	if len(a.ProductFeatures) > 0 {
		return a.ProductFeatures[0]
	}
	return "clip"
}

func contentBasedPrefix(a model.AnalysisResult) string {
	var parts []string
	if a.Summary.Category != "" {
		parts = append(parts, a.Summary.Category)
	}
	if len(a.Objects) > 0 {
		parts = append(parts, a.Objects[0].Name)
	}
	if len(parts) == 0 {
		return "clip"
	}
	return strings.Join(parts, "_")
}

// sanitize replaces reserved filesystem characters, folds whitespace to
// underscores, and cuts the whole stem (generated prefix and original base
// name together) to its first maxPrefixLen bytes, keeping the extension; the
// prefix is not trimmed on its own.
func sanitize(name string, maxPrefixLen int) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	stem = reservedCharsRE.ReplaceAllString(stem, "_")
	stem = whitespaceRE.ReplaceAllString(stem, "_")

	if len(stem) > maxPrefixLen {
		stem = stem[:maxPrefixLen]
	}
	return stem + ext
}

// resolveConflict applies the configured conflict policy at destPath,
// returning the final path to write to.
func resolveConflict(destPath, policy string) (string, error) {
	_, err := os.Stat(destPath)
	if os.IsNotExist(err) {
		return destPath, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat destination %s: %w", destPath, err)
	}

	switch policy {
	case "overwrite":
		return destPath, nil
	case "skip":
		return "", fmt.Errorf("destination already exists and conflict policy is skip: %s", destPath)
	case "rename", "":
		dir := filepath.Dir(destPath)
		ext := filepath.Ext(destPath)
		stem := strings.TrimSuffix(filepath.Base(destPath), ext)
		for n := 1; ; n++ {
			candidate := filepath.Join(dir, stem+"_"+strconv.Itoa(n)+ext)
			if _, err := os.Stat(candidate); os.IsNotExist(err) {
				return candidate, nil
			}
		}
	default:
		return "", fmt.Errorf("unknown conflict policy %q", policy)
	}
}

// backupManifestName is the append-only index of backups taken under a
// backup directory, so a future bounded-undo tool has a stable path to read
// rather than needing to infer backups from filename prefixes.
const backupManifestName = ".reelsort-backup-manifest.jsonl"

// backupOriginal copies the original file into cfg.TempDir/backups before a
// move, prefixed with a UTC timestamp, and returns the backup path.
func backupOriginal(path string, cfg *config.Config) (string, error) {
	backupDir := filepath.Join(cfg.TempDir, "backups")
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup dir: %w", err)
	}
	prefix := time.Now().UTC().Format("20060102T150405Z")
	backupPath := filepath.Join(backupDir, prefix+"_"+filepath.Base(path))
	if err := streamCopy(path, backupPath); err != nil {
		return "", fmt.Errorf("failed to back up %s: %w", path, err)
	}
	if err := appendBackupManifest(backupDir, path, backupPath); err != nil {
		return "", fmt.Errorf("failed to index backup %s: %w", backupPath, err)
	}
	return backupPath, nil
}

type backupManifestEntry struct {
	OriginalPath string `json:"originalPath"`
	BackupPath   string `json:"backupPath"`
	Timestamp    string `json:"timestamp"`
}

func appendBackupManifest(backupDir, originalPath, backupPath string) error {
	f, err := os.OpenFile(filepath.Join(backupDir, backupManifestName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	entry := backupManifestEntry{OriginalPath: originalPath, BackupPath: backupPath, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(f, "%s\n", data)
	return err
}

// atomicMove renames src to dest when possible (same volume); otherwise it
// copies, verifies the checksum, then deletes the source.
func atomicMove(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	if err := streamCopy(src, dest); err != nil {
		return err
	}
	srcSum, err := util.ChecksumFile(src)
	if err != nil {
		return fmt.Errorf("failed to checksum source after copy: %w", err)
	}
	destSum, err := util.ChecksumFile(dest)
	if err != nil {
		return fmt.Errorf("failed to checksum destination after copy: %w", err)
	}
	if srcSum != destSum {
		return fmt.Errorf("checksum mismatch after cross-volume move: %s != %s", src, dest)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("failed to remove source after verified copy: %w", err)
	}
	return nil
}

// streamCopy copies src to dest via a temp file in dest's directory, fsyncs,
// then renames into place.
func streamCopy(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	tmp, err := util.CreateTempFile(filepath.Dir(dest), ".organize-tmp", "tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = tmp.Cleanup() }()

	if _, err := io.Copy(tmp, in); err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to fsync copy of %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("failed to rename temp file into place: %w", err)
	}
	return nil
}
