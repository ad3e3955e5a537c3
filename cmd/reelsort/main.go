// Package main provides the CLI entry point for reelsort.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/five82/reelsort/internal/aiclient"
	"github.com/five82/reelsort/internal/cachestore"
	"github.com/five82/reelsort/internal/config"
	"github.com/five82/reelsort/internal/detect"
	"github.com/five82/reelsort/internal/discovery"
	"github.com/five82/reelsort/internal/fusion"
	"github.com/five82/reelsort/internal/logging"
	"github.com/five82/reelsort/internal/match"
	"github.com/five82/reelsort/internal/media"
	"github.com/five82/reelsort/internal/model"
	"github.com/five82/reelsort/internal/organize"
	"github.com/five82/reelsort/internal/orchestrator"
	"github.com/five82/reelsort/internal/prompts"
	"github.com/five82/reelsort/internal/workflow"
)

const (
	appName    = "reelsort"
	appVersion = "0.1.0"
)

// Exit codes per the CLI contract.
const (
	exitSuccess        = 0
	exitCatastrophic   = 1
	exitConfigError    = 2
	exitInputError     = 3
	exitPartialFailure = 4
	exitCancelled      = 5
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		printUsage()
		return exitInputError
	}

	switch args[0] {
	case "scan":
		return runScan(args[1:])
	case "detect":
		return runDetect(args[1:])
	case "analyze":
		return runAnalyze(args[1:])
	case "match":
		return runMatch(args[1:])
	case "organize":
		return runOrganize(args[1:])
	case "workflow":
		return runWorkflow(args[1:])
	case "sweep":
		return runSweep(args[1:])
	case "version", "--version", "-v":
		fmt.Printf("%s version %s\n", appName, appVersion)
		return exitSuccess
	case "help", "--help", "-h":
		printUsage()
		return exitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printUsage()
		return exitInputError
	}
}

func printUsage() {
	fmt.Printf(`%s - video footage sorter

Usage:
  %s <command> [options]

Commands:
  scan <dir>                    List candidate video files
  detect <file>                 Detect shot boundaries
  analyze <file>                Analyze a segment with the remote AI client
  match <analysisJson>          Match an analysis against candidate folders
  organize <file>               Copy/move a file into a matched folder
  workflow <dir>                Run the full pipeline over a directory
  sweep                          Evict expired or unreadable cache entries (debug hook)
  version                        Print version information
  help                          Show this help message

Run '%s <command> --help' for command-specific options.
`, appName, appName, appName)
}

func newSignalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func baseConfig() *config.Config {
	cfg := config.NewConfig(logging.DefaultCacheDir(), logging.DefaultLogDir())
	if err := cfg.LoadOverrides(os.Getenv("REELSORT_CONFIG")); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	if key := os.Getenv("REELSORT_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if base := os.Getenv("REELSORT_API_BASE_URL"); base != "" {
		cfg.APIBaseURL = base
	}
	if w := os.Getenv("REELSORT_WORKERS"); w != "" {
		if n, err := strconv.Atoi(w); err == nil {
			cfg.Workers = n
		}
	}
	cfg.Verbose = os.Getenv("REELSORT_LOG_LEVEL") == "debug"
	return cfg
}

// runScan implements `scan <dir> [--recursive] [--min-size=B] [--max-size=B] [--ext=...]`.
func runScan(args []string) int {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	recursive := fs.Bool("recursive", false, "recurse into subdirectories")
	minSize := fs.Int64("min-size", 0, "minimum file size in bytes")
	maxSize := fs.Int64("max-size", 0, "maximum file size in bytes")
	ext := fs.String("ext", "", "comma-separated extension whitelist, e.g. .mp4,.mkv")
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "scan requires a directory argument")
		return exitInputError
	}
	dir := fs.Arg(0)

	opts := discovery.Options{Recursive: *recursive, MinSize: *minSize, MaxSize: *maxSize}
	if *ext != "" {
		opts.Ext = strings.Split(*ext, ",")
	}

	files, err := discovery.FindVideoFiles(dir, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitInputError
	}
	for _, f := range files {
		fmt.Println(f)
	}
	return exitSuccess
}

// runDetect implements `detect <file> [--threshold=F] [--algorithm=...] [--fusion-weights=k=v,...]`.
func runDetect(args []string) int {
	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	threshold := fs.Float64("threshold", 0, "override frame-diff threshold (0 = config default)")
	algorithm := fs.String("algorithm", "multi", "frame-diff | histogram | multi")
	fusionWeights := fs.String("fusion-weights", "", "comma-separated k=v detector weights")
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "detect requires a file argument")
		return exitInputError
	}
	path := fs.Arg(0)

	cfg := baseConfig()
	if *threshold > 0 {
		cfg.FrameDiffThreshold = *threshold
	}
	if *fusionWeights != "" {
		weights, err := parseKVFloats(*fusionWeights)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitConfigError
		}
		cfg.FusionWeights = weights
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitConfigError
	}

	ctx, cancel := newSignalContext()
	defer cancel()

	video, err := media.Probe(ctx, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitInputError
	}

	var detectors []detect.Detector
	switch *algorithm {
	case "frame-diff":
		detectors = []detect.Detector{detect.NewFrameDifference(cfg)}
	case "histogram":
		detectors = []detect.Detector{detect.NewHistogram(cfg)}
	default:
		detectors = []detect.Detector{detect.NewFrameDifference(cfg), detect.NewHistogram(cfg)}
	}

	newReader := func() *media.Reader { return media.NewReader(video, 1) }
	candidates, err := detect.RunAll(ctx, video, newReader, detectors, cfg.DetectorCPUBudget, nil)
	if err != nil {
		if ctx.Err() != nil {
			return exitCancelled
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCatastrophic
	}

	boundaries := fusion.Fuse(candidates, video.FPS, cfg)
	printJSON(map[string]any{
		"boundaries": boundaries,
		"stats": map[string]any{
			"candidateCount":  len(candidates),
			"boundaryCount":   len(boundaries),
			"detectorsUsed":   detectorNames(detectors),
		},
	})
	return exitSuccess
}

func detectorNames(detectors []detect.Detector) []string {
	names := make([]string, len(detectors))
	for i, d := range detectors {
		names[i] = d.Name()
	}
	return names
}

func parseKVFloats(s string) (map[string]float64, error) {
	out := map[string]float64{}
	for _, pair := range strings.Split(s, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid key=value pair %q", pair)
		}
		v, err := strconv.ParseFloat(kv[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight for %q: %w", kv[0], err)
		}
		out[kv[0]] = v
	}
	return out, nil
}

// runAnalyze implements `analyze <file> [--prompt=name|path] [--no-cache] [--timeout=sec]`.
func runAnalyze(args []string) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	promptName := fs.String("prompt", "comprehensive", "prompt name")
	noCache := fs.Bool("no-cache", false, "skip the analysis cache")
	timeout := fs.Int("timeout", 0, "per-call timeout in seconds (0 = config default)")
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "analyze requires a file argument")
		return exitInputError
	}
	path := fs.Arg(0)

	cfg := baseConfig()
	if *timeout > 0 {
		cfg.RequestTimeoutSeconds = *timeout
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitConfigError
	}

	ctx, cancel := newSignalContext()
	defer cancel()

	video, err := media.Probe(ctx, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitInputError
	}

	cache, err := cachestore.New(cfg.CacheDir, cfg.PayloadVersion)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCatastrophic
	}
	client := aiclient.New(cfg)
	defer func() { _ = client.Close() }()
	registry := prompts.NewRegistry(cfg.LogDir)
	orch := orchestrator.New(client, cache, registry, cfg)

	seg := model.Segment{ID: filepath.Base(path), SourceVideoChecksum: video.Checksum, StartTime: 0, EndTime: video.DurationSeconds, DurationSeconds: video.DurationSeconds}
	result, err := orch.Analyze(ctx, seg, video.Checksum, path, []prompts.Name{prompts.Name(*promptName)}, *noCache, nil)
	if err != nil {
		if ctx.Err() != nil {
			return exitCancelled
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCatastrophic
	}

	printJSON(result)
	return exitSuccess
}

// runMatch implements `match <analysisJson> --folders=<dir> [--min-confidence=F] [--max-matches=N]`.
func runMatch(args []string) int {
	fs := flag.NewFlagSet("match", flag.ContinueOnError)
	foldersDir := fs.String("folders", "", "candidate folders root (required)")
	minConfidence := fs.Float64("min-confidence", -1, "minimum confidence to include a match")
	maxMatches := fs.Int("max-matches", 0, "maximum matches to return (0 = config default)")
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "match requires an analysisJson argument (path or '-' for stdin)")
		return exitInputError
	}
	if *foldersDir == "" {
		fmt.Fprintln(os.Stderr, "--folders is required")
		return exitInputError
	}

	cfg := baseConfig()
	if *minConfidence >= 0 {
		cfg.MinMatchConfidence = *minConfidence
	}
	if *maxMatches > 0 {
		cfg.MaxMatches = *maxMatches
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitConfigError
	}

	data, err := readArgOrStdin(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitInputError
	}
	var analysis model.AnalysisResult
	if err := json.Unmarshal(data, &analysis); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid analysis JSON: %v\n", err)
		return exitInputError
	}

	folders, err := match.ScanFolders(*foldersDir, cfg.MaxFolderDepth)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitInputError
	}

	ctx, cancel := newSignalContext()
	defer cancel()

	client := aiclient.New(cfg)
	defer func() { _ = client.Close() }()
	registry := prompts.NewRegistry(cfg.LogDir)

	matches, err := match.Match(ctx, client, registry, analysis, folders, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return exitCancelled
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCatastrophic
	}

	printJSON(map[string]any{"matches": matches})
	return exitSuccess
}

// runOrganize implements `organize <file> --analysis=<json> --target=<dir> [--naming=...] [--mode=copy|move] [--on-conflict=skip|overwrite|rename]`.
func runOrganize(args []string) int {
	fs := flag.NewFlagSet("organize", flag.ContinueOnError)
	analysisArg := fs.String("analysis", "", "path to analysis JSON, or '-' for stdin (required)")
	target := fs.String("target", "", "destination folder (required)")
	naming := fs.String("naming", "", "preserve-original | smart | content-based | timestamp | custom")
	mode := fs.String("mode", "copy", "copy | move")
	onConflict := fs.String("on-conflict", "", "skip | overwrite | rename")
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "organize requires a file argument")
		return exitInputError
	}
	if *analysisArg == "" || *target == "" {
		fmt.Fprintln(os.Stderr, "--analysis and --target are required")
		return exitInputError
	}
	path := fs.Arg(0)

	cfg := baseConfig()
	if *onConflict != "" {
		cfg.ConflictPolicy = *onConflict
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitConfigError
	}

	data, err := readArgOrStdin(*analysisArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitInputError
	}
	var analysis model.AnalysisResult
	if err := json.Unmarshal(data, &analysis); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid analysis JSON: %v\n", err)
		return exitInputError
	}

	record, err := organize.Organize(organize.Request{
		SegmentFilePath: path,
		Analysis:        analysis,
		TargetFolder:    *target,
		NamingMode:      *naming,
		Mode:            *mode,
	}, cfg)

	printJSON(record)
	if err != nil {
		return exitCatastrophic
	}
	return exitSuccess
}

// runWorkflow implements `workflow <dir> --target=<dir> [--concurrency=N] [--min-confidence-move=F]`.
func runWorkflow(args []string) int {
	fs := flag.NewFlagSet("workflow", flag.ContinueOnError)
	target := fs.String("target", "", "destination folders root (required)")
	concurrency := fs.Int("concurrency", 0, "worker pool size (0 = config default)")
	minConfidenceMove := fs.Float64("min-confidence-move", -1, "confidence floor for the move action")
	metricsAddr := fs.String("metrics-addr", "", "host:port stored in the config as MetricsAddr (no /metrics endpoint is started)")
	configPath := fs.String("config", "", "YAML overrides file, loaded once at startup")
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "workflow requires a directory argument")
		return exitInputError
	}
	if *target == "" {
		fmt.Fprintln(os.Stderr, "--target is required")
		return exitInputError
	}
	dir := fs.Arg(0)

	cfg := baseConfig()
	if *configPath != "" {
		if err := cfg.LoadOverrides(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitConfigError
		}
	}
	if *concurrency > 0 {
		cfg.Workers = *concurrency
	}
	if *minConfidenceMove >= 0 {
		cfg.ActionThresholds.Move = *minConfidenceMove
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitConfigError
	}

	paths, err := discovery.FindVideoFiles(dir, discovery.Options{Recursive: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitInputError
	}
	if len(paths) == 0 {
		fmt.Fprintf(os.Stderr, "no video files found in %s\n", dir)
		return exitInputError
	}

	folders, err := match.ScanFolders(*target, cfg.MaxFolderDepth)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitInputError
	}

	cache, err := cachestore.New(cfg.CacheDir, cfg.PayloadVersion)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCatastrophic
	}
	client := aiclient.New(cfg)
	defer func() { _ = client.Close() }()
	registry := prompts.NewRegistry(cfg.LogDir)

	engine := workflow.New(cfg, cache, client, registry, folders, cfg.CacheDir)

	ctx, cancel := newSignalContext()
	defer cancel()

	result := engine.Run(ctx, paths, *target, func(p model.WorkflowProgress) {
		line, _ := json.Marshal(p)
		fmt.Println(string(line))
	})

	printJSON(result)

	switch {
	case result.Cancelled:
		return exitCancelled
	case result.Failed > 0:
		return exitPartialFailure
	default:
		return exitSuccess
	}
}

func readArgOrStdin(arg string) ([]byte, error) {
	if arg == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(arg)
}

// runSweep is a debug hook for the cache store's TTL eviction: it is not
// itself a pipeline stage, just an out-of-band way to reclaim expired or
// unreadable entries between workflow runs.
func runSweep(args []string) int {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}

	cfg := baseConfig()
	cache, err := cachestore.New(cfg.CacheDir, cfg.PayloadVersion)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCatastrophic
	}

	evicted, err := cache.SweepExpired()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCatastrophic
	}
	printJSON(map[string]any{"evicted": evicted})
	return exitSuccess
}
