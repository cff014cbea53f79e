// Package timeutil converts between the HH:MM:SS timecodes used by the
// analysis collaborators and the float seconds used internally, and
// computes fixed-length analysis intervals over a video's duration.
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
)

// Interval is a half-open [Start, End) slice of the video timeline, in seconds.
type Interval struct {
	Start float64
	End   float64
}

// Duration returns the interval length in seconds.
func (i Interval) Duration() float64 {
	return i.End - i.Start
}

// ParseTimecode converts "HH:MM:SS", "MM:SS" or "SS" to seconds.
// The seconds component may carry a fractional part.
func ParseTimecode(s string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")

	switch len(parts) {
	case 3:
		h, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, fmt.Errorf("invalid timecode %q: %w", s, err)
		}
		m, err := strconv.Atoi(parts[1])
		if err != nil {
			return 0, fmt.Errorf("invalid timecode %q: %w", s, err)
		}
		sec, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timecode %q: %w", s, err)
		}
		return float64(h)*3600 + float64(m)*60 + sec, nil
	case 2:
		m, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, fmt.Errorf("invalid timecode %q: %w", s, err)
		}
		sec, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timecode %q: %w", s, err)
		}
		return float64(m)*60 + sec, nil
	case 1:
		sec, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timecode %q: %w", s, err)
		}
		return sec, nil
	default:
		return 0, fmt.Errorf("invalid timecode %q: expected HH:MM:SS, MM:SS or SS", s)
	}
}

// FormatTimecode converts seconds to "HH:MM:SS", truncating fractional seconds.
func FormatTimecode(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Intervals walks [0, duration) in step-sized increments. The final interval
// is truncated to the remainder, so coverage is exact and gap-free.
func Intervals(duration, step float64) []Interval {
	if duration <= 0 || step <= 0 {
		return nil
	}

	var intervals []Interval
	for start := 0.0; start < duration; start += step {
		end := start + step
		if end > duration {
			end = duration
		}
		intervals = append(intervals, Interval{Start: start, End: end})
	}
	return intervals
}
