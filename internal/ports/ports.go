package ports

import (
	"context"
	"image"

	"github.com/forPelevin/vidstamp/internal/types"
)

type VideoDecoder interface {
	Open(ctx context.Context, path string) (VideoHandle, error)
}

// VideoHandle is an opened video. Close must be called on every path once
// Open has succeeded; it is safe to call more than once.
type VideoHandle interface {
	Info() types.VideoInfo
	Frame(ctx context.Context, index int) (image.Image, error)
	Close() error
}

// TimestampReader asks a vision model for the overlay timestamp of each
// image. It returns one raw string per image: a timestamp or "INVALID".
type TimestampReader interface {
	ReadTimestamps(ctx context.Context, images [][]byte) ([]string, error)
}

type Renamer interface {
	Rename(src, dst string) error
	DryRun() bool
}
