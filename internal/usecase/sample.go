package usecase

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/forPelevin/vidstamp/internal/domain/frames"
	"github.com/forPelevin/vidstamp/internal/metrics"
	"github.com/forPelevin/vidstamp/internal/ports"
	"github.com/forPelevin/vidstamp/internal/types"
)

// Sample decodes the start, middle and end frames of h, crops them to q and
// encodes them as JPEG. A frame that cannot be decoded is replaced by
// placeholder, so the result always holds one image per slot.
func Sample(
	ctx context.Context,
	h ports.VideoHandle,
	q types.Quadrant,
	placeholder image.Image,
	log *zap.Logger,
) ([][]byte, error) {
	if log == nil {
		log = zap.NewNop()
	}
	info := h.Info()
	if placeholder == nil {
		placeholder = frames.Placeholder(info.Width, info.Height)
	}

	out := make([][]byte, 0, types.SlotCount)
	for _, slot := range types.Slots() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		idx := slot.FrameIndex(info.FrameCount)
		img, err := h.Frame(ctx, idx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Debug("frame unreadable, using placeholder",
				zap.Stringer("slot", slot),
				zap.Int("frame", idx),
				zap.Error(err),
			)
			metrics.FrameFallbacksTotal.Inc()
			img = placeholder
		}

		b, err := frames.CropJPEG(img, q)
		if err != nil {
			// Quadrants of tiny frames can be empty.
			b, err = frames.CropJPEG(frames.Placeholder(0, 0), q)
			if err != nil {
				return nil, fmt.Errorf("encode %s frame: %w", slot, err)
			}
		}
		out = append(out, b)
	}
	return out, nil
}
