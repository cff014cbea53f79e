// Package commentary holds the domain types shared across the pipeline:
// detected match events and the commentary segments spoken over them,
// plus the timing and word-budget rules both must satisfy.
package commentary

import (
	"log"
	"strings"

	"github.com/ovrbk/matchcast/internal/timeutil"
)

// Speaker identifiers understood by the narration and synthesis collaborators.
const (
	SpeakerLead    = "COMMENTATOR_1"
	SpeakerAnalyst = "COMMENTATOR_2"
)

// Event is a single detected match moment, with its time expressed in
// absolute seconds relative to the full video.
type Event struct {
	TimeSec     float64 `json:"time_sec"`
	Description string  `json:"description"`
	Replay      bool    `json:"replay"`
	Intensity   int     `json:"intensity"`
}

// Segment is one spoken commentary line placed on the video timeline.
type Segment struct {
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Text     string  `json:"text"`
	Speaker  string  `json:"speaker"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.EndSec - s.StartSec
}

// Limits are the timing and spoken-rate rules a commentary sequence must
// satisfy. Segments that violate them are adjusted, never dropped.
type Limits struct {
	MinGap         float64
	MinDuration    float64
	MaxDuration    float64
	WordsPerSecond float64
}

// EnforceWordBudget truncates text that cannot be spoken within the given
// duration at the assumed speech rate. Truncation prefers the last complete
// sentence that fits; failing that it cuts at the word limit.
func EnforceWordBudget(text string, duration, wordsPerSecond float64) string {
	if duration <= 0 || wordsPerSecond <= 0 {
		return text
	}

	words := strings.Fields(text)
	maxWords := int(duration * wordsPerSecond)
	if len(words) <= maxWords {
		return text
	}
	if maxWords <= 0 {
		return ""
	}

	truncated := strings.Join(words[:maxWords], " ")
	boundary := -1
	for _, punct := range []string{".", "!", "?"} {
		if idx := strings.LastIndex(truncated, punct); idx > boundary {
			boundary = idx
		}
	}
	if boundary >= 0 {
		truncated = truncated[:boundary+1]
	}

	log.Printf("commentary: truncated segment from %d to %d words (%.1fs budget)", len(words), maxWords, duration)
	return truncated
}

// ValidateSequence enforces the session-wide timing invariants over segments
// already ordered by start time: strictly increasing starts, a minimum gap
// after the previous segment (colliding starts are shifted forward), and a
// maximum duration (overlong segments are trimmed). lastEnd is the end of the
// most recent segment already accepted into the session, or 0 for none.
// Word budgets are re-applied after any trim.
func ValidateSequence(segments []Segment, lastEnd float64, limits Limits) []Segment {
	validated := make([]Segment, 0, len(segments))
	prevEnd := lastEnd

	for _, seg := range segments {
		// The very first segment of a session may start anywhere, including 0.
		first := len(validated) == 0 && lastEnd == 0
		if !first {
			if gap := seg.StartSec - prevEnd; gap < limits.MinGap {
				shifted := prevEnd + limits.MinGap
				log.Printf("commentary: %s: shifted start %.1fs -> %.1fs (gap was %.1fs)", seg.Speaker, seg.StartSec, shifted, gap)
				seg.StartSec = shifted
			}
		}

		if seg.EndSec <= seg.StartSec {
			seg.EndSec = seg.StartSec + limits.MinDuration
		}

		if d := seg.Duration(); d > limits.MaxDuration {
			trimmed := seg.StartSec + limits.MaxDuration
			log.Printf("commentary: %s: trimmed end %.1fs -> %.1fs (duration was %.1fs)", seg.Speaker, seg.EndSec, trimmed, d)
			seg.EndSec = trimmed
		} else if d < limits.MinDuration {
			log.Printf("commentary: %s: segment duration %.1fs below %.1fs minimum", seg.Speaker, d, limits.MinDuration)
		}

		seg.Text = EnforceWordBudget(seg.Text, seg.Duration(), limits.WordsPerSecond)

		validated = append(validated, seg)
		prevEnd = seg.EndSec
	}

	return validated
}

// FormatTimeline renders an event time for prompts and logs.
func (e Event) FormatTimeline() string {
	return timeutil.FormatTimecode(e.TimeSec)
}
