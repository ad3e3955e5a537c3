// Package encodehook defines the seam a real external encoder would plug
// into. No implementation lives here: reelsort never transcodes footage
// itself, only stream-copies clips for analysis and organizing.
package encodehook

import "context"

// Encoder transcodes srcPath into destPath under the given named profile
// (e.g. "av1-sd", "h264-web"). Implementations are expected to shell out to
// an external tool the way internal/media does for ffmpeg/ffprobe.
type Encoder interface {
	Encode(ctx context.Context, srcPath, destPath, profile string) error
}
