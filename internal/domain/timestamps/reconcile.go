package timestamps

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/forPelevin/vidstamp/internal/types"
)

const (
	// Invalid is what the model answers for a frame it cannot read.
	Invalid = "INVALID"

	RawLayout   = "2006-01-02 15:04:05"
	LabelLayout = "2006-01-02-15:04:05"
)

var (
	ErrNoValidTimestamp    = errors.New("no valid timestamps extracted")
	ErrMalformedTimestamp  = errors.New("malformed timestamp")
	ErrSlotOutOfRange      = errors.New("timestamp slot out of range")
	ErrMetadataUnavailable = errors.New("video metadata unavailable")
)

// ParseRaw parses one model answer. ok is false for the sentinel.
//
// The result is the clock reading as written, held in UTC so that arithmetic
// on it ignores DST changes of the local zone. Format maps it back to the
// local zone for unix labels.
func ParseRaw(s string) (t time.Time, ok bool, err error) {
	if s == Invalid {
		return time.Time{}, false, nil
	}
	t, err = time.Parse(RawLayout, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w %q", ErrMalformedTimestamp, s)
	}
	return t, true, nil
}

// Readings collects the readable answers in slot order.
func Readings(raw []string) ([]types.Reading, error) {
	out := make([]types.Reading, 0, len(raw))
	for i, s := range raw {
		t, ok, err := ParseRaw(s)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		if !ok {
			continue
		}
		out = append(out, types.Reading{Slot: types.Slot(i), At: t})
	}
	return out, nil
}

// Reconcile derives the time range of a video from the raw answers of its
// sampled frames. Only the earliest readable slot is used.
func Reconcile(raw []string, duration time.Duration) (types.TimeRange, error) {
	readings, err := Readings(raw)
	if err != nil {
		return types.TimeRange{}, err
	}
	if len(readings) == 0 {
		return types.TimeRange{}, ErrNoValidTimestamp
	}

	first := readings[0]
	if first.Slot < types.SlotStart || int(first.Slot) >= types.SlotCount {
		return types.TimeRange{}, fmt.Errorf("%w: %d", ErrSlotOutOfRange, first.Slot)
	}

	start := first.At.Add(-first.Slot.Correction(duration))
	return types.TimeRange{
		Start:  start,
		End:    start.Add(duration),
		Anchor: first.Slot,
	}, nil
}

// Format renders the clock reading t for a file name. Unix labels read the
// clock in the local zone.
func Format(t time.Time, unix bool) string {
	if unix {
		return strconv.FormatInt(inLocal(t).Unix(), 10)
	}
	return t.Format(LabelLayout)
}

// Duration is frameCount/fps as a time.Duration.
func Duration(frameCount int, fps float64) (time.Duration, error) {
	if frameCount < 0 {
		return 0, fmt.Errorf("%w: frame count %d", ErrMetadataUnavailable, frameCount)
	}
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return 0, fmt.Errorf("%w: fps %v", ErrMetadataUnavailable, fps)
	}
	sec := float64(frameCount) / fps
	return time.Duration(sec * float64(time.Second)), nil
}

func inLocal(t time.Time) time.Time {
	y, mo, d := t.Date()
	h, mi, sec := t.Clock()
	return time.Date(y, mo, d, h, mi, sec, t.Nanosecond(), time.Local)
}
