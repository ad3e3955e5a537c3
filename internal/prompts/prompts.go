// Package prompts loads and renders the analysis prompt registry: a
// directory of one-prompt-per-file text templates with brace-delimited
// placeholders, loaded lazily and memoized, falling back to embedded
// defaults when a file is missing.
package prompts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Name enumerates the built-in prompt kinds.
type Name string

const (
	Comprehensive Name = "comprehensive"
	Product       Name = "product"
	Scene         Name = "scene"
	Object        Name = "object"
)

// embeddedDefaults are used when a prompt file is missing from the registry
// directory, so the orchestrator always has a usable template.
var embeddedDefaults = map[Name]string{
	Comprehensive: "Describe this video segment comprehensively: summary, scenes, objects, and any product features. Context: {contentDescription}",
	Product:       "Identify product features visible in this segment. Context: {contentDescription}",
	Scene:         "List the distinct scenes in this segment with start times and short descriptions. Context: {contentDescription}",
	Object:        "List the objects visible in this segment with confidence scores. Context: {contentDescription}",
}

// folderMatchDefault is the semantic folder-matching prompt (step 3: semantic scoring).
const folderMatchDefault = "Given this content description: {contentDescription}\nAnd these candidate folders: {folderList}\nReturn JSON {\"matches\":[{\"folderName\":...,\"score\":...,\"reasons\":[...]}]}."

// manifestEntry describes one prompt file in an optional registry manifest
// (registry.yaml), allowing a custom name to map to a specific file.
type manifestEntry struct {
	Name Name   `yaml:"name"`
	File string `yaml:"file"`
}

type manifest struct {
	Prompts []manifestEntry `yaml:"prompts"`
}

// Registry loads prompt templates from a directory, memoizing each file
// read. A Registry is safe for concurrent use.
type Registry struct {
	dir string

	mu     sync.Mutex
	cache  map[string]string
	byName map[Name]string // from registry.yaml, if present
}

// NewRegistry constructs a Registry rooted at dir. dir need not exist; in
// that case every lookup falls back to embedded defaults.
func NewRegistry(dir string) *Registry {
	r := &Registry{dir: dir, cache: make(map[string]string)}
	r.loadManifest()
	return r
}

func (r *Registry) loadManifest() {
	if r.dir == "" {
		return
	}
	data, err := os.ReadFile(filepath.Join(r.dir, "registry.yaml"))
	if err != nil {
		return
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return
	}
	r.byName = make(map[Name]string, len(m.Prompts))
	for _, e := range m.Prompts {
		r.byName[e.Name] = e.File
	}
}

// Load returns the raw template text for name, reading from disk at most
// once per process per file.
func (r *Registry) Load(name Name) (string, error) {
	filename := string(name) + ".txt"
	if r.byName != nil {
		if f, ok := r.byName[name]; ok {
			filename = f
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.cache[filename]; ok {
		return cached, nil
	}

	if r.dir != "" {
		data, err := os.ReadFile(filepath.Join(r.dir, filename))
		if err == nil {
			text := string(data)
			r.cache[filename] = text
			return text, nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to read prompt file %s: %w", filename, err)
		}
	}

	def, ok := embeddedDefaults[name]
	if !ok {
		return "", fmt.Errorf("no prompt registered for %q and no embedded default", name)
	}
	r.cache[filename] = def
	return def, nil
}

// FolderMatchPrompt returns the semantic folder-matching template, trying
// the registry directory first and falling back to the embedded default.
func (r *Registry) FolderMatchPrompt() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	const filename = "folder-match.txt"
	if cached, ok := r.cache[filename]; ok {
		return cached, nil
	}
	if r.dir != "" {
		data, err := os.ReadFile(filepath.Join(r.dir, filename))
		if err == nil {
			r.cache[filename] = string(data)
			return string(data), nil
		}
	}
	r.cache[filename] = folderMatchDefault
	return folderMatchDefault, nil
}

// Render substitutes brace-delimited placeholders in template with values
// from vars, e.g. Render(t, map[string]string{"contentDescription": "..."}).
func Render(template string, vars map[string]string) string {
	out := template
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// Fingerprint returns a stable identifier for (renderedTemplate, options)
// combinations, used as part of the cache key (the cache key's promptFingerprint).
func Fingerprint(renderedTemplate string, optionsCanonicalJSON string) string {
	return shortHash(renderedTemplate + "\x00" + optionsCanonicalJSON)
}
