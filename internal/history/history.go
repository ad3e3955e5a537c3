// Package history maintains the append-only, resumable log of file
// operations performed by the organizer.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/five82/reelsort/internal/model"
)

const logFileName = "history.jsonl"

// Append writes one FileOperationRecord as a JSON line to workDir/history.jsonl.
func Append(workDir string, record model.FileOperationRecord) error {
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("failed to create history dir: %w", err)
	}
	path := filepath.Join(workDir, logFileName)

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open history log: %w", err)
	}
	defer func() { _ = file.Close() }()

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal history record: %w", err)
	}
	if _, err := fmt.Fprintf(file, "%s\n", line); err != nil {
		return fmt.Errorf("failed to append history record: %w", err)
	}
	return nil
}

// Load reads all recorded operations from workDir/history.jsonl, skipping
// any malformed trailing line left by a crash mid-write.
func Load(workDir string) ([]model.FileOperationRecord, error) {
	path := filepath.Join(workDir, logFileName)

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open history log: %w", err)
	}
	defer func() { _ = file.Close() }()

	var records []model.FileOperationRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec model.FileOperationRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading history log: %w", err)
	}
	return records, nil
}

// DoneSet returns the set of source paths already recorded as successfully
// organized, for resuming an interrupted organize run without repeating
// completed operations.
func DoneSet(records []model.FileOperationRecord) map[string]bool {
	done := make(map[string]bool, len(records))
	for _, r := range records {
		if r.Success {
			done[r.OriginalPath] = true
		}
	}
	return done
}
