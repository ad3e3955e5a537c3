// Package match computes rule-based and semantic confidence scores between
// an AnalysisResult and a set of candidate destination folders.
package match

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/five82/reelsort/internal/aiclient"
	"github.com/five82/reelsort/internal/config"
	"github.com/five82/reelsort/internal/model"
	"github.com/five82/reelsort/internal/prompts"
)

// categoryAliases is the fixed bilingual alias map used by rule scoring.
var categoryAliases = map[string][]string{
	"product":  {"产品", "产品展示"},
	"model":    {"模特", "模特试穿"},
	"fashion":  {"时尚", "服装"},
	"beauty":   {"美妆", "化妆"},
	"lifestyle": {"生活方式"},
}

var colorMaterialTerms = []string{
	"red", "blue", "green", "black", "white", "gold", "silver",
	"cotton", "leather", "silk", "denim", "wool",
	"红", "蓝", "绿", "黑", "白", "金", "银",
}

// ScanFolders recursively discovers FolderCandidates under root up to
// maxDepth, with results cached by the caller.
func ScanFolders(root string, maxDepth int) ([]model.FolderCandidate, error) {
	var out []model.FolderCandidate
	rootDepth := strings.Count(filepath.Clean(root), string(filepath.Separator))

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		depth := strings.Count(filepath.Clean(path), string(filepath.Separator)) - rootDepth
		if depth > maxDepth {
			return fs.SkipDir
		}
		if path == root {
			return nil
		}
		out = append(out, model.FolderCandidate{
			AbsolutePath: path,
			DisplayName:  filepath.Base(path),
			Depth:        depth,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan folders under %s: %w", root, err)
	}
	return out, nil
}

// contentDescription concatenates the analysis fields used for rule/semantic
// scoring, for scoring.
func contentDescription(a model.AnalysisResult, topN int) string {
	var parts []string
	parts = append(parts, a.Summary.Description)
	parts = append(parts, a.Summary.Keywords...)
	parts = append(parts, a.Summary.Topics...)
	for i, s := range a.Scenes {
		if i >= topN {
			break
		}
		parts = append(parts, s.Name, s.Description)
	}
	for i, o := range a.Objects {
		if i >= topN {
			break
		}
		parts = append(parts, o.Name)
	}
	parts = append(parts, a.ProductFeatures...)
	return strings.Join(parts, " ")
}

// ruleScore computes the rule-based score for folder against desc (step 2: rule scoring).
func ruleScore(folderName, desc string) (float64, []string) {
	score := 0.0
	var reasons []string
	lowerDesc := strings.ToLower(desc)
	lowerFolder := strings.ToLower(folderName)

	if strings.Contains(lowerDesc, lowerFolder) || strings.Contains(folderName, desc) {
		score += 0.3
		reasons = append(reasons, fmt.Sprintf("exact keyword hit: %s", folderName))
	}

	for category, aliases := range categoryAliases {
		if !strings.Contains(lowerFolder, category) && !containsAny(folderName, aliases) {
			continue
		}
		for _, alias := range aliases {
			if strings.Contains(desc, alias) {
				score += 0.4
				reasons = append(reasons, fmt.Sprintf("category alias hit: %s", alias))
				break
			}
		}
	}

	for _, term := range colorMaterialTerms {
		if strings.Contains(lowerDesc, strings.ToLower(term)) && strings.Contains(folderName, term) {
			score += 0.2
			reasons = append(reasons, fmt.Sprintf("color/material hit: %s", term))
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score, reasons
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// semanticReply mirrors the JSON shape expected from the folder-matching
// prompt (step 3: semantic scoring).
type semanticReply struct {
	Matches []struct {
		FolderName string   `json:"folderName"`
		Score      float64  `json:"score"`
		Reasons    []string `json:"reasons"`
	} `json:"matches"`
}

// RemoteClient is the subset of *aiclient.Client the matcher needs.
type RemoteClient interface {
	Generate(ctx context.Context, prompt string, attachments []aiclient.RemoteHandle, params aiclient.GenerationParams) (aiclient.RawReply, error)
}

// semanticScores asks client for a semantic match and returns folderName ->
// score. On parse failure, falls back to keyword-overlap scoring between
// the reply text and each folder name, boosted by +0.3 (capped at 0.9) to
// offset the downgrade.
func semanticScores(ctx context.Context, client RemoteClient, registry *prompts.Registry, desc string, folders []model.FolderCandidate) (map[string]float64, map[string][]string, error) {
	template, err := registry.FolderMatchPrompt()
	if err != nil {
		return nil, nil, err
	}
	names := make([]string, len(folders))
	for i, f := range folders {
		names[i] = f.DisplayName
	}
	rendered := prompts.Render(template, map[string]string{
		"contentDescription": desc,
		"folderList":         strings.Join(names, ", "),
	})

	reply, err := client.Generate(ctx, rendered, nil, aiclient.GenerationParams{Temperature: 0.1, TopP: 0.9, MaxOutputTokens: 1024})
	if err != nil {
		return nil, nil, fmt.Errorf("semantic match request failed: %w", err)
	}

	parsed, err := aiclient.ParseJSONInProse(reply.Text)
	if err == nil && !parsed.Degraded {
		var sr semanticReply
		if b, mErr := json.Marshal(parsed.Data); mErr == nil {
			if json.Unmarshal(b, &sr) == nil && len(sr.Matches) > 0 {
				scores := make(map[string]float64, len(sr.Matches))
				reasons := make(map[string][]string, len(sr.Matches))
				for _, m := range sr.Matches {
					scores[m.FolderName] = m.Score
					reasons[m.FolderName] = m.Reasons
				}
				return scores, reasons, nil
			}
		}
	}

	// Degraded fallback: keyword overlap between reply text and folder name.
	scores := make(map[string]float64, len(folders))
	reasons := make(map[string][]string, len(folders))
	lowerReply := strings.ToLower(reply.Text)
	for _, f := range folders {
		ratio := keywordOverlapRatio(f.DisplayName, lowerReply)
		if ratio <= 0 {
			continue
		}
		score := ratio + 0.3
		if score > 0.9 {
			score = 0.9
		}
		scores[f.DisplayName] = score
		reasons[f.DisplayName] = []string{"fallback keyword-overlap match (degraded semantic reply)"}
	}
	return scores, reasons, nil
}

// keywordOverlapRatio measures how much of folderName's word content appears
// in lowerReply (already lowercased), in [0,1]: 1.0 for a whole-name match,
// otherwise the fraction of folderName's whitespace-split words found in
// lowerReply. CJK folder names have no whitespace-separated words, so they
// only score via the whole-name match.
func keywordOverlapRatio(folderName, lowerReply string) float64 {
	lowerName := strings.ToLower(folderName)
	if lowerName == "" || lowerReply == "" {
		return 0
	}
	if strings.Contains(lowerReply, lowerName) {
		return 1.0
	}
	words := strings.Fields(lowerName)
	if len(words) == 0 {
		return 0
	}
	matched := 0
	for _, w := range words {
		if strings.Contains(lowerReply, w) {
			matched++
		}
	}
	return float64(matched) / float64(len(words))
}

// Match computes MatchResults for analysis against folders, filters by
// cfg.MinMatchConfidence, sorts descending by confidence, and truncates to
// cfg.MaxMatches.
func Match(ctx context.Context, client RemoteClient, registry *prompts.Registry, analysis model.AnalysisResult, folders []model.FolderCandidate, cfg *config.Config) ([]model.MatchResult, error) {
	if len(folders) == 0 {
		return nil, nil
	}

	desc := contentDescription(analysis, 5)

	semScores, semReasons, err := semanticScores(ctx, client, registry, desc, folders)
	if err != nil {
		semScores = map[string]float64{}
		semReasons = map[string][]string{}
	}

	var results []model.MatchResult
	for _, f := range folders {
		rScore, rReasons := ruleScore(f.DisplayName, desc)
		sScore := semScores[f.DisplayName]

		confidence := rScore
		if sScore > confidence {
			confidence = sScore
		}

		reasons := dedupeStrings(append(append([]string(nil), rReasons...), semReasons[f.DisplayName]...))

		results = append(results, model.MatchResult{
			SchemaVersion: cfg.PayloadVersion,
			SegmentID:     analysis.SegmentID,
			FolderPath:    f.AbsolutePath,
			Confidence:    confidence,
			Reasons:       reasons,
			RuleScore:     rScore,
			SemanticScore: sScore,
			Action:        model.Action(cfg.ActionFor(confidence)),
		})
	}

	filtered := results[:0]
	for _, r := range results {
		if r.Confidence >= cfg.MinMatchConfidence {
			filtered = append(filtered, r)
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Confidence > filtered[j].Confidence
	})

	if len(filtered) > cfg.MaxMatches {
		filtered = filtered[:cfg.MaxMatches]
	}
	return filtered, nil
}

func dedupeStrings(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
