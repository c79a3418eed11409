package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os/exec"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/forPelevin/vidstamp/internal/domain/frames"
	"github.com/forPelevin/vidstamp/internal/ports"
	"github.com/forPelevin/vidstamp/internal/types"
)

var (
	ErrNoFrame      = errors.New("ffmpeg produced no frame")
	ErrFrameRange   = errors.New("frame index out of range")
	ErrHandleClosed = errors.New("video handle closed")
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
	log     *zap.Logger
}

func New(ffmpegPath, ffprobePath string, log *zap.Logger) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath, log: log}
}

// Open probes the container metadata of inMP4. Frames are decoded lazily.
func (a *Adapter) Open(ctx context.Context, inMP4 string) (ports.VideoHandle, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_streams",
		"-show_format",
		"-print_format", "json",
		inMP4,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	b, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe open: %w\n%s", err, stderr.String())
	}
	info, err := parseProbe(b)
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", inMP4, err)
	}
	info.Path = inMP4
	a.log.Debug("probed video",
		zap.String("file", inMP4),
		zap.Int("frames", info.FrameCount),
		zap.Float64("fps", info.FPS),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
	)
	return &handle{a: a, info: info}, nil
}

type handle struct {
	a      *Adapter
	info   types.VideoInfo
	closed atomic.Bool
}

func (h *handle) Info() types.VideoInfo { return h.info }

// Frame seeks to index and decodes one frame.
func (h *handle) Frame(ctx context.Context, index int) (image.Image, error) {
	if h.closed.Load() {
		return nil, ErrHandleClosed
	}
	if index < 0 || (h.info.FrameCount > 0 && index >= h.info.FrameCount) {
		return nil, fmt.Errorf("%w: %d of %d", ErrFrameRange, index, h.info.FrameCount)
	}
	if h.info.FPS <= 0 {
		return nil, fmt.Errorf("%w: unknown frame rate", ErrFrameRange)
	}

	at := time.Duration(float64(index) / h.info.FPS * float64(time.Second))
	cmd := exec.CommandContext(ctx, h.a.ffmpeg,
		"-v", "error",
		"-ss", fmtSeconds(at),
		"-i", h.info.Path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	b, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg extract frame %d: %w\n%s", index, err, stderr.String())
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("%w at %d (%s)", ErrNoFrame, index, fmtSeconds(at))
	}
	return frames.Decode(b)
}

// Close releases the handle. Every ffmpeg process is bound to the context
// of its Frame call, so nothing outlives it.
func (h *handle) Close() error {
	h.closed.Store(true)
	return nil
}

func fmtSeconds(d time.Duration) string {
	sec := float64(d) / float64(time.Second)
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

var _ ports.VideoDecoder = (*Adapter)(nil)
