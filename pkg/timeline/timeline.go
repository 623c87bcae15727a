// Package timeline derives per-segment wall-clock times for HLS playlists.
package timeline

import (
	"math"
	"time"

	"github.com/mogiioin/hls-m3u8/m3u8"

	"github.com/aminofox/adproxy/pkg/errors"
)

// explicitOffsetLayout matches timestamps like 2024-01-01T10:00:00.000+0100
const explicitOffsetLayout = "2006-01-02T15:04:05.000-0700"

// wallClockLayouts are tried in order when parsing program date times.
var wallClockLayouts = []string{
	time.RFC3339,
	time.RFC1123Z, // RFC 2822 date format
	explicitOffsetLayout,
}

// ParseWallClock parses a wall-clock string in RFC 3339, RFC 2822 or the
// explicit YYYY-MM-DDTHH:MM:SS.sss±HHMM pattern, tried in that order. The
// returned instant keeps the fixed offset of the input.
func ParseWallClock(value string) (time.Time, error) {
	for _, layout := range wallClockLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New(errors.ErrCodeDateParseFailed,
		"unrecognized wall-clock format: "+value)
}

// SegmentTiming pairs a segment's expected wall-clock start with its duration.
type SegmentTiming struct {
	// Start is the expected wall-clock start instant of the segment
	Start time.Time

	// Duration is the segment duration in seconds
	Duration float64
}

// End returns the expected wall-clock end instant of the segment.
func (st SegmentTiming) End() time.Time {
	return st.Start.Add(durationMillis(st.Duration))
}

// Contains reports whether t falls within [Start, Start+Duration).
func (st SegmentTiming) Contains(t time.Time) bool {
	return !t.Before(st.Start) && t.Before(st.End())
}

// Infer returns the expected start instant and duration for every segment.
// A segment carrying an explicit program date time resets the running anchor
// to that tag and restarts the accumulator at the segment's own duration;
// otherwise the expected start is the anchor plus the accumulated offset.
// Accumulation is tracked in whole milliseconds to avoid floating drift.
func Infer(segments []*m3u8.MediaSegment, anchor time.Time) []SegmentTiming {
	timings := make([]SegmentTiming, 0, len(segments))

	var accumulatedMs int64
	for _, seg := range segments {
		start := anchor.Add(time.Duration(accumulatedMs) * time.Millisecond)
		if !seg.ProgramDateTime.IsZero() {
			start = seg.ProgramDateTime
			anchor = seg.ProgramDateTime
			accumulatedMs = millis(seg.Duration)
		} else {
			accumulatedMs += millis(seg.Duration)
		}

		timings = append(timings, SegmentTiming{
			Start:    start,
			Duration: seg.Duration,
		})
	}

	return timings
}

func millis(seconds float64) int64 {
	return int64(math.Round(seconds * 1000))
}

func durationMillis(seconds float64) time.Duration {
	return time.Duration(millis(seconds)) * time.Millisecond
}
