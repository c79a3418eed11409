package types

import "time"

// Slot is one of the three sampled positions within a video.
type Slot int

const (
	SlotStart Slot = iota
	SlotMiddle
	SlotEnd
)

// SlotCount is the number of frames sampled per video.
const SlotCount = 3

var slotNames = [...]string{"start", "middle", "end"}

func (s Slot) String() string {
	if s < 0 || int(s) >= len(slotNames) {
		return "unknown"
	}
	return slotNames[s]
}

// FrameIndex returns the frame sampled for s in a video of frameCount frames.
func (s Slot) FrameIndex(frameCount int) int {
	switch s {
	case SlotStart:
		return 0
	case SlotMiddle:
		return frameCount / 2
	case SlotEnd:
		return frameCount - 1
	default:
		return -1
	}
}

// Correction is the offset from the video start at which s was sampled.
func (s Slot) Correction(duration time.Duration) time.Duration {
	switch s {
	case SlotMiddle:
		return duration / 2
	case SlotEnd:
		return duration
	default:
		return 0
	}
}

// Slots lists the sampled positions in sampling order.
func Slots() [SlotCount]Slot {
	return [SlotCount]Slot{SlotStart, SlotMiddle, SlotEnd}
}

// Quadrant selects a quarter of a frame: 1 top-left, 2 top-right,
// 3 bottom-left, 4 bottom-right. Any other value means the full frame.
type Quadrant int

const QuadrantNone Quadrant = 0

func (q Quadrant) Valid() bool {
	return q >= 1 && q <= 4
}

type VideoInfo struct {
	Path       string
	FrameCount int
	FPS        float64
	Width      int
	Height     int
}

// Reading is a timestamp the model read in one slot.
type Reading struct {
	Slot Slot
	At   time.Time
}

// TimeRange is the wall-clock span a video covers.
type TimeRange struct {
	Start time.Time
	End   time.Time

	// Anchor is the slot whose reading fixed Start.
	Anchor Slot
}

type Outcome string

const (
	OutcomeRenamed Outcome = "renamed"
	OutcomeDryRun  Outcome = "dry_run"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// FileResult is what processing one video produced.
type FileResult struct {
	Path    string
	Target  string
	Start   string
	End     string
	Outcome Outcome
	Err     error
}

type Summary struct {
	Total   int
	Renamed int
	DryRun  int
	Skipped int
	Failed  int
}
