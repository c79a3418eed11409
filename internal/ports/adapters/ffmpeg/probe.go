package ffmpeg

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/forPelevin/vidstamp/internal/types"
)

var ErrNoVideoStream = errors.New("no video stream")

// parseProbe reads ffprobe's JSON for the first video stream.
func parseProbe(b []byte) (types.VideoInfo, error) {
	if !gjson.ValidBytes(b) {
		return types.VideoInfo{}, errors.New("invalid ffprobe json")
	}
	root := gjson.ParseBytes(b)
	stream := root.Get(`streams.#(codec_type=="video")`)
	if !stream.Exists() {
		return types.VideoInfo{}, ErrNoVideoStream
	}

	info := types.VideoInfo{
		Width:  int(stream.Get("width").Int()),
		Height: int(stream.Get("height").Int()),
	}

	info.FPS = parseRate(stream.Get("avg_frame_rate").String())
	if info.FPS == 0 {
		info.FPS = parseRate(stream.Get("r_frame_rate").String())
	}

	if n, err := strconv.Atoi(stream.Get("nb_frames").String()); err == nil && n > 0 {
		info.FrameCount = n
		return info, nil
	}

	// Some containers omit nb_frames; estimate it from the duration.
	dur := parseFloat(stream.Get("duration").String())
	if dur <= 0 {
		dur = parseFloat(root.Get("format.duration").String())
	}
	if dur > 0 && info.FPS > 0 {
		info.FrameCount = int(math.Round(dur * info.FPS))
	}
	return info, nil
}

// parseRate parses ffprobe rates like "30000/1001". Zero means unknown.
func parseRate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	n := parseFloat(num)
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
