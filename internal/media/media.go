// Package media decodes frames and metadata from video files via ffprobe
// and ffmpeg subprocesses, using exec-based probing and a single-buffer
// streaming decode strategy.
package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/five82/reelsort/internal/model"
	"github.com/five82/reelsort/internal/util"
)

// UnreadableMediaError wraps a probe or decode failure for a malformed or
// unsupported input.
type UnreadableMediaError struct {
	Path string
	Err  error
}

func (e *UnreadableMediaError) Error() string {
	return fmt.Sprintf("unreadable media %s: %v", e.Path, e.Err)
}

func (e *UnreadableMediaError) Unwrap() error { return e.Err }

// TruncatedInputWarning is a non-fatal warning surfaced when a decode
// produced fewer frames than the probed duration implied.
type TruncatedInputWarning struct {
	Path          string
	DecodedFrames int
	ExpectedFrames int
}

func (w *TruncatedInputWarning) Error() string {
	return fmt.Sprintf("truncated input %s: decoded %d of ~%d expected frames", w.Path, w.DecodedFrames, w.ExpectedFrames)
}

// ffprobeStream mirrors the subset of ffprobe's JSON stream object this
// package reads.
type ffprobeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

// Probe runs ffprobe on path and returns a Video with its metadata and
// content checksum. Returns an *UnreadableMediaError for malformed or
// unsupported inputs.
func Probe(ctx context.Context, path string) (model.Video, error) {
	checksum, err := util.ChecksumFile(path)
	if err != nil {
		return model.Video{}, &UnreadableMediaError{Path: path, Err: err}
	}

	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate,codec_type",
		"-show_entries", "format=duration,size",
		"-of", "json",
		path,
	}
	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return model.Video{}, &UnreadableMediaError{Path: path, Err: fmt.Errorf("ffprobe: %w: %s", err, stderr.String())}
	}

	var out ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return model.Video{}, &UnreadableMediaError{Path: path, Err: fmt.Errorf("parse ffprobe output: %w", err)}
	}
	if len(out.Streams) == 0 {
		return model.Video{}, &UnreadableMediaError{Path: path, Err: fmt.Errorf("no video stream found")}
	}
	stream := out.Streams[0]

	fps := parseFrameRate(stream.AvgFrameRate)
	if fps <= 0 {
		fps = parseFrameRate(stream.RFrameRate)
	}
	if fps <= 0 {
		return model.Video{}, &UnreadableMediaError{Path: path, Err: fmt.Errorf("could not determine frame rate")}
	}

	duration, _ := strconv.ParseFloat(out.Format.Duration, 64)
	byteLen, _ := strconv.ParseInt(out.Format.Size, 10, 64)

	return model.Video{
		Path:            path,
		ByteLen:         byteLen,
		DurationSeconds: duration,
		FPS:             fps,
		Width:           stream.Width,
		Height:          stream.Height,
		Checksum:        checksum,
	}, nil
}

// parseFrameRate parses ffprobe's "num/den" frame rate strings.
func parseFrameRate(s string) float64 {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

// Reader yields a restartable sequence of Frames for a probed Video,
// decoding grayscale downsampled frames one at a time into a single reused
// buffer to keep memory bounded regardless of video length.
type Reader struct {
	video       model.Video
	stride      int
	downsampleW int
	downsampleH int
}

// DefaultDownsampleWidth and DefaultDownsampleHeight bound decode memory:
// detectors operate on small grayscale frames, not full resolution.
const (
	DefaultDownsampleWidth  = 160
	DefaultDownsampleHeight = 90
)

// NewReader constructs a Reader for video. stride=k yields every k-th frame;
// stride<1 is treated as 1.
func NewReader(video model.Video, stride int) *Reader {
	if stride < 1 {
		stride = 1
	}
	return &Reader{video: video, stride: stride, downsampleW: DefaultDownsampleWidth, downsampleH: DefaultDownsampleHeight}
}

// WithDownsample overrides the decode size hint.
func (r *Reader) WithDownsample(w, h int) *Reader {
	r.downsampleW, r.downsampleH = w, h
	return r
}

// FrameFunc is called once per decoded frame; returning an error stops
// iteration and is propagated from Frames.
type FrameFunc func(model.Frame) error

// Frames decodes frames from the reader's video, invoking fn once per frame
// (subject to stride). It streams raw grayscale bytes from ffmpeg's stdout
// into a single reused buffer — frames are never all held in memory at once.
// On a truncated stream it returns the frames successfully decoded plus a
// *TruncatedInputWarning rather than panicking or discarding progress.
func (r *Reader) Frames(ctx context.Context, fn FrameFunc) error {
	w, h := r.downsampleW, r.downsampleH
	frameSize := w * h

	args := []string{
		"-v", "error",
		"-i", r.video.Path,
		"-vf", fmt.Sprintf("select='not(mod(n\\,%d))',scale=%d:%d,format=gray", r.stride, w, h),
		"-vsync", "0",
		"-f", "rawvideo",
		"-an",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &UnreadableMediaError{Path: r.video.Path, Err: err}
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return &UnreadableMediaError{Path: r.video.Path, Err: err}
	}

	reader := bufio.NewReaderSize(stdout, frameSize)
	buf := make([]byte, frameSize)
	decoded := 0
	index := 0

	var iterErr error
loop:
	for {
		select {
		case <-ctx.Done():
			iterErr = ctx.Err()
			break loop
		default:
		}

		n, err := io.ReadFull(reader, buf)
		if n == frameSize {
			frame := model.Frame{
				Index:            index,
				TimestampSeconds: float64(index*r.stride) / r.video.FPS,
				Pixels:           buf, // caller must copy if retaining past this call
				Width:            w,
				Height:           h,
			}
			if err := fn(frame); err != nil {
				iterErr = err
				break loop
			}
			decoded++
			index++
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break loop
		}
		if err != nil {
			iterErr = err
			break loop
		}
	}

	waitErr := cmd.Wait()
	if iterErr != nil {
		return iterErr
	}
	if waitErr != nil {
		if decoded > 0 {
			expected := r.video.TotalFrames() / r.stride
			return &TruncatedInputWarning{Path: r.video.Path, DecodedFrames: decoded, ExpectedFrames: expected}
		}
		return &UnreadableMediaError{Path: r.video.Path, Err: fmt.Errorf("ffmpeg: %w: %s", waitErr, stderr.String())}
	}
	return nil
}

// Close is a no-op for Reader; it exists so callers can treat Reader like
// util's TempDir/TempFile Cleanup()-bearing resources uniformly.
func (r *Reader) Close() error { return nil }

// ExtractClip cuts [startSeconds, endSeconds) out of video into destPath
// using stream copy (no re-encode), for upload to the remote AI client or
// for the file organizer to act on.
func ExtractClip(ctx context.Context, video model.Video, startSeconds, endSeconds float64, destPath string) error {
	args := []string{
		"-v", "error",
		"-y",
		"-ss", strconv.FormatFloat(startSeconds, 'f', 3, 64),
		"-to", strconv.FormatFloat(endSeconds, 'f', 3, 64),
		"-i", video.Path,
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		destPath,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &UnreadableMediaError{Path: video.Path, Err: fmt.Errorf("ffmpeg extract clip: %w: %s", err, stderr.String())}
	}
	return nil
}
