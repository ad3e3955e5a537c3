// Package model defines the shared data types that flow between reelsort's
// pipeline stages: Video and Frame from the media reader, Boundary and
// Segment from detection/fusion/segmentation, AnalysisResult and MatchResult
// from the analysis and matching stages, and the on-disk record types.
package model

import "time"

// Video describes a probed input file. Immutable once produced by a probe
// operation.
type Video struct {
	Path            string  `json:"path"`
	ByteLen         int64   `json:"byteLen"`
	DurationSeconds float64 `json:"durationSeconds"`
	FPS             float64 `json:"fps"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	Checksum        string  `json:"checksum"`
}

// TotalFrames returns the number of frames implied by duration and fps,
// rounded to the nearest whole frame.
func (v Video) TotalFrames() int {
	if v.FPS <= 0 {
		return 0
	}
	return int(v.DurationSeconds*v.FPS + 0.5)
}

// Frame is a single decoded frame. Pixels is nil for frames produced by a
// metadata-only iteration (e.g. boundary re-derivation tests).
type Frame struct {
	Index          int
	TimestampSeconds float64
	Pixels         []byte
	Width          int
	Height         int
}

// BoundaryCandidate is a single detector's opinion about a possible shot
// boundary at a given frame.
type BoundaryCandidate struct {
	FrameIndex   int     `json:"frameIndex"`
	AlgorithmTag string  `json:"algorithmTag"`
	Score        float64 `json:"score"`
}

// Boundary is the fusion engine's output: a shot boundary with a confidence
// derived from one or more contributing detectors.
type Boundary struct {
	FrameIndex            int      `json:"frameIndex"`
	TimestampSeconds      float64  `json:"timestamp"`
	Confidence            float64  `json:"confidence"`
	ContributingAlgorithms []string `json:"contributing"`
}

// Segment is a contiguous, half-open frame range between two boundaries.
type Segment struct {
	ID                 string   `json:"id"`
	StartFrame         int      `json:"startFrame"`
	EndFrame           int      `json:"endFrame"` // exclusive
	StartTime          float64  `json:"startTime"`
	EndTime            float64  `json:"endTime"`
	DurationSeconds    float64  `json:"durationSeconds"`
	SourceVideoChecksum string  `json:"sourceVideoChecksum"`
	FilterFlags        []string `json:"filterFlags,omitempty"`
}

// HasFlag reports whether flag is present in FilterFlags.
func (s Segment) HasFlag(flag string) bool {
	for _, f := range s.FilterFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// Summary is the top-level description block of an AnalysisResult.
type Summary struct {
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Topics      []string `json:"topics"`
	Mood        string   `json:"mood"`
	Category    string   `json:"category"`
}

// SceneDescription is one detected scene within a segment's analysis.
type SceneDescription struct {
	StartTime   float64 `json:"startTime"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
}

// DetectedObject is one detected object within a segment's analysis.
type DetectedObject struct {
	StartTime float64 `json:"startTime"`
	Name      string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// QualityMetrics scores an analysis result along three axes, each in [0,1].
type QualityMetrics struct {
	Overall   float64 `json:"overall"`
	Detection float64 `json:"detection"`
	Depth     float64 `json:"depth"`
}

// Max returns the element-wise maximum of q and other, used when merging
// multiple prompt results for the same segment.
func (q QualityMetrics) Max(other QualityMetrics) QualityMetrics {
	return QualityMetrics{
		Overall:   maxF(q.Overall, other.Overall),
		Detection: maxF(q.Detection, other.Detection),
		Depth:     maxF(q.Depth, other.Depth),
	}
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// AnalysisResult is the immutable, cacheable output of analyzing one
// segment (or whole video).
type AnalysisResult struct {
	SchemaVersion    int                `json:"schemaVersion"`
	SegmentID        string             `json:"segmentId"`
	Summary          Summary            `json:"summary"`
	Scenes           []SceneDescription `json:"scenes"`
	Objects          []DetectedObject   `json:"objects"`
	ProductFeatures  []string           `json:"productFeatures,omitempty"`
	QualityMetrics   QualityMetrics     `json:"qualityMetrics"`
	ModelID          string             `json:"modelId"`
	CreatedAt        time.Time          `json:"createdAt"`
	PromptFingerprint string            `json:"promptFingerprint"`
	ParsedDegraded   bool               `json:"parsedDegraded,omitempty"`
}

// FolderCandidate is a discovered destination directory under a configured base.
type FolderCandidate struct {
	AbsolutePath string `json:"absolutePath"`
	DisplayName  string `json:"displayName"`
	Depth        int    `json:"depth"`
}

// Action is the organizer's decision for a matched segment.
type Action string

const (
	ActionMove   Action = "move"
	ActionCopy   Action = "copy"
	ActionLink   Action = "link"
	ActionIgnore Action = "ignore"
)

// MatchResult is one folder's score against a given AnalysisResult.
type MatchResult struct {
	SchemaVersion int      `json:"schemaVersion"`
	SegmentID     string   `json:"segmentId"`
	FolderPath    string   `json:"folderPath"`
	Confidence    float64  `json:"confidence"`
	Reasons       []string `json:"reasons"`
	RuleScore     float64  `json:"ruleScore"`
	SemanticScore float64  `json:"semanticScore"`
	Action        Action   `json:"action"`
}

// CacheEntry is a stored analysis or folder-scan payload plus its metadata
// sidecar fields.
type CacheEntry struct {
	Key            string    `json:"key"`
	Payload        []byte    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	InputChecksum  string    `json:"inputChecksum"`
	PayloadVersion int       `json:"payloadVersion"`
}

// FileOp names a file organizer operation kind.
type FileOp string

const (
	OpMove FileOp = "move"
	OpCopy FileOp = "copy"
	OpSkip FileOp = "skip"
)

// FileOperationRecord is one entry in the append-only organize history.
type FileOperationRecord struct {
	SchemaVersion int       `json:"schemaVersion"`
	Sequence      int64     `json:"sequence"`
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	OriginalPath  string    `json:"originalPath"`
	NewPath       string    `json:"newPath"`
	Op            FileOp    `json:"op"`
	BackupPath    string    `json:"backupPath,omitempty"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
}

// WorkflowPhase names a stage in the C10 workflow progress contract.
type WorkflowPhase string

const (
	PhaseScanning   WorkflowPhase = "scanning"
	PhaseDetecting  WorkflowPhase = "detecting"
	PhaseAnalyzing  WorkflowPhase = "analyzing"
	PhaseMatching   WorkflowPhase = "matching"
	PhaseOrganizing WorkflowPhase = "organizing"
	PhaseComplete   WorkflowPhase = "complete"
)

// WorkflowProgress is the workflow engine's thread-safe progress event.
type WorkflowProgress struct {
	Phase     WorkflowPhase `json:"phase"`
	Step      string        `json:"step"`
	Percent   float64       `json:"percent"`
	Processed int           `json:"processed"`
	Total     int           `json:"total"`
}

// WorkflowResult summarizes a completed (or cancelled) workflow run.
type WorkflowResult struct {
	Total     int                `json:"total"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Cancelled bool               `json:"cancelled"`
	Items     []WorkflowItemResult `json:"items"`
}

// WorkflowItemResult is the per-video outcome within a WorkflowResult.
type WorkflowItemResult struct {
	Path    string `json:"path"`
	Stage   string `json:"stage,omitempty"`
	Error   string `json:"error,omitempty"`
	Matches []MatchResult `json:"matches,omitempty"`
	Organized []FileOperationRecord `json:"organized,omitempty"`
}
