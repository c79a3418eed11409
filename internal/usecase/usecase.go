package usecase

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/forPelevin/vidstamp/internal/domain/naming"
	"github.com/forPelevin/vidstamp/internal/domain/timestamps"
	"github.com/forPelevin/vidstamp/internal/metrics"
	"github.com/forPelevin/vidstamp/internal/ports"
	"github.com/forPelevin/vidstamp/internal/types"
)

type Deps struct {
	Video   ports.VideoDecoder
	Reader  ports.TimestampReader
	Renamer ports.Renamer
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase { return Usecase{d: d} }

type Input struct {
	Path        string
	Quadrant    types.Quadrant
	UnixLabels  bool
	Placeholder image.Image
	Log         *zap.Logger
}

// Process reads the time range of one video and renames it. Every failure
// is reported in the result; none is fatal to the batch.
func (u Usecase) Process(ctx context.Context, in Input) types.FileResult {
	log := in.Log
	if log == nil {
		log = zap.NewNop()
	}
	res := types.FileResult{Path: in.Path}
	skip := func(err error) types.FileResult {
		res.Outcome, res.Err = types.OutcomeSkipped, err
		return res
	}
	fail := func(err error) types.FileResult {
		res.Outcome, res.Err = types.OutcomeFailed, err
		return res
	}

	started := time.Now()
	h, err := u.d.Video.Open(ctx, in.Path)
	if err != nil {
		return skip(fmt.Errorf("open video: %w", err))
	}
	defer h.Close()

	info := h.Info()
	duration, err := timestamps.Duration(info.FrameCount, info.FPS)
	if err != nil {
		return skip(err)
	}

	images, err := Sample(ctx, h, in.Quadrant, in.Placeholder, log)
	_ = h.Close()
	if err != nil {
		return fail(fmt.Errorf("sample frames: %w", err))
	}
	metrics.VideoStageDuration.WithLabelValues("sample").Observe(time.Since(started).Seconds())

	modelStarted := time.Now()
	raw, err := u.d.Reader.ReadTimestamps(ctx, images)
	if err != nil {
		return fail(fmt.Errorf("read timestamps: %w", err))
	}
	metrics.VideoStageDuration.WithLabelValues("model").Observe(time.Since(modelStarted).Seconds())
	log.Debug("model answered", zap.Strings("timestamps", raw))

	tr, err := timestamps.Reconcile(raw, duration)
	if errors.Is(err, timestamps.ErrNoValidTimestamp) {
		return skip(err)
	}
	if err != nil {
		return fail(fmt.Errorf("reconcile %q: %w", raw, err))
	}
	metrics.AnchorSlotTotal.WithLabelValues(tr.Anchor.String()).Inc()
	if tr.Anchor != types.SlotStart {
		log.Info("start timestamp unreadable, anchored on later frame", zap.Stringer("slot", tr.Anchor))
	}

	res.Start, res.End = naming.Labels(tr, in.UnixLabels)
	res.Target = naming.TargetPath(in.Path, res.Start, res.End)
	if err := u.d.Renamer.Rename(in.Path, res.Target); err != nil {
		return fail(err)
	}

	res.Outcome = types.OutcomeRenamed
	if u.d.Renamer.DryRun() {
		res.Outcome = types.OutcomeDryRun
	}
	metrics.VideoStageDuration.WithLabelValues("total").Observe(time.Since(started).Seconds())
	return res
}
