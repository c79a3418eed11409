package naming

import (
	"path/filepath"

	"github.com/forPelevin/vidstamp/internal/domain/timestamps"
	"github.com/forPelevin/vidstamp/internal/types"
)

const Ext = ".mp4"

// TargetPath is the path a video is renamed to: {start}__{end}.mp4 in the
// directory of original.
func TargetPath(original, start, end string) string {
	return filepath.Join(filepath.Dir(original), start+"__"+end+Ext)
}

// Labels formats both ends of tr for a file name.
func Labels(tr types.TimeRange, unix bool) (start, end string) {
	return timestamps.Format(tr.Start, unix), timestamps.Format(tr.End, unix)
}
