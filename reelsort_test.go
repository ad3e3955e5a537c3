package reelsort

import "testing"

func TestNewAppliesOptions(t *testing.T) {
	dir := t.TempDir()
	p, err := New(dir, dir, WithWorkers(7), WithNamingMode("smart"), WithMinMatchConfidence(0.5))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.config.Workers != 7 {
		t.Fatalf("Workers = %d, want 7", p.config.Workers)
	}
	if p.config.NamingMode != "smart" {
		t.Fatalf("NamingMode = %q, want smart", p.config.NamingMode)
	}
	if p.config.MinMatchConfidence != 0.5 {
		t.Fatalf("MinMatchConfidence = %v, want 0.5", p.config.MinMatchConfidence)
	}
}

func TestLoadFoldersPopulatesCandidates(t *testing.T) {
	dir := t.TempDir()
	targetDir := t.TempDir()
	p, err := New(dir, dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := p.LoadFolders(targetDir); err != nil {
		t.Fatalf("LoadFolders() error = %v", err)
	}
}
