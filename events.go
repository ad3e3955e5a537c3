// Package reelsort organizes raw video footage into content-matched
// destination folders: it detects shot boundaries, segments footage,
// analyzes each segment with a remote multimodal model, matches segments
// against candidate folders, and copies or moves each segment into its
// matched folders (a link action is carried out as a copy).
package reelsort

import "time"

// Event types for external integrations that want a single event stream
// instead of typed callbacks.
const (
	EventTypeWorkflowProgress = "workflow_progress"
	EventTypeSegmentAnalyzed  = "segment_analyzed"
	EventTypeSegmentMatched   = "segment_matched"
	EventTypeFileOrganized    = "file_organized"
	EventTypeVideoFailed      = "video_failed"
	EventTypeWarning          = "warning"
	EventTypeBatchComplete    = "batch_complete"
)

// Event is the interface for all reelsort events.
type Event interface {
	Type() string
	Timestamp() int64
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType string `json:"type"`
	Time      int64  `json:"timestamp"`
}

func (e BaseEvent) Type() string     { return e.EventType }
func (e BaseEvent) Timestamp() int64 { return e.Time }

// WorkflowProgressEvent mirrors model.WorkflowProgress for external consumers.
type WorkflowProgressEvent struct {
	BaseEvent
	Phase     string  `json:"phase"`
	Step      string  `json:"step"`
	Percent   float64 `json:"percent"`
	Processed int     `json:"processed"`
	Total     int     `json:"total"`
}

// FileOrganizedEvent reports one completed (or failed) organize operation.
type FileOrganizedEvent struct {
	BaseEvent
	OriginalPath string `json:"original_path"`
	NewPath      string `json:"new_path"`
	Op           string `json:"op"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
}

// VideoFailedEvent reports a per-video pipeline failure; the batch continues.
type VideoFailedEvent struct {
	BaseEvent
	Path  string `json:"path"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// WarningEvent represents a non-fatal warning message.
type WarningEvent struct {
	BaseEvent
	Message string `json:"message"`
}

// BatchCompleteEvent summarizes a finished workflow run.
type BatchCompleteEvent struct {
	BaseEvent
	Total     int  `json:"total"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Cancelled bool `json:"cancelled"`
}

// EventHandler is called with events during a workflow run. Returning an
// error does not stop the run; handlers observe, they do not control.
type EventHandler func(Event) error

// NewTimestamp returns the current Unix timestamp.
func NewTimestamp() int64 {
	return time.Now().Unix()
}
