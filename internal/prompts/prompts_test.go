package prompts

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFallsBackToEmbeddedDefault(t *testing.T) {
	r := NewRegistry(t.TempDir())
	text, err := r.Load(Product)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if text != embeddedDefaults[Product] {
		t.Fatalf("Load() = %q, want embedded default", text)
	}
}

func TestLoadPrefersFileOverDefault(t *testing.T) {
	dir := t.TempDir()
	custom := "Custom product prompt {contentDescription}"
	if err := os.WriteFile(filepath.Join(dir, "product.txt"), []byte(custom), 0644); err != nil {
		t.Fatalf("seed prompt file: %v", err)
	}
	r := NewRegistry(dir)
	text, err := r.Load(Product)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if text != custom {
		t.Fatalf("Load() = %q, want %q", text, custom)
	}
}

func TestLoadMemoizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.txt")
	if err := os.WriteFile(path, []byte("v1"), 0644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	r := NewRegistry(dir)
	first, _ := r.Load(Scene)
	if err := os.WriteFile(path, []byte("v2"), 0644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	second, _ := r.Load(Scene)
	if first != second {
		t.Fatalf("Load() should memoize: first=%q second=%q", first, second)
	}
}

func TestRender(t *testing.T) {
	out := Render("Hello {name}, see {folderList}", map[string]string{"name": "world", "folderList": "a,b"})
	want := "Hello world, see a,b"
	if out != want {
		t.Fatalf("Render() = %q, want %q", out, want)
	}
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint("template", "{}")
	b := Fingerprint("template", "{}")
	if a != b {
		t.Fatalf("Fingerprint should be stable: %q vs %q", a, b)
	}
	c := Fingerprint("template", `{"x":1}`)
	if a == c {
		t.Fatal("Fingerprint should differ when options differ")
	}
}

func TestFolderMatchPromptFallback(t *testing.T) {
	r := NewRegistry(t.TempDir())
	text, err := r.FolderMatchPrompt()
	if err != nil {
		t.Fatalf("FolderMatchPrompt() error = %v", err)
	}
	if text != folderMatchDefault {
		t.Fatalf("FolderMatchPrompt() = %q, want embedded default", text)
	}
}
