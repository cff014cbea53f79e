// Package narrate turns detected match events into timed two-commentator
// dialogue using a chat completion provider.
package narrate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ovrbk/matchcast/internal/commentary"
	"github.com/ovrbk/matchcast/internal/llm"
	"github.com/ovrbk/matchcast/internal/ratelimit"
	"github.com/ovrbk/matchcast/internal/timeutil"
)

// Mode selects how a batch of events becomes dialogue.
type Mode string

const (
	// ModeBatch sends the whole event batch in one request and parses a
	// full timed script from the response.
	ModeBatch Mode = "batch"
	// ModeTurns generates one lead line and one analyst reply per event,
	// deriving timing locally from word counts.
	ModeTurns Mode = "turns"
)

// Narrator generates commentary for batches of detected events.
type Narrator struct {
	client  llm.Client
	mode    Mode
	limiter *ratelimit.Limiter
	retry   ratelimit.RetryPolicy
	limits  commentary.Limits

	// matchContext is an optional pre-formatted block describing the teams
	// and players, prepended to every prompt when set.
	matchContext string
}

// New creates a narrator. The limiter is shared with the detection client
// because both draw on the same request quota.
func New(client llm.Client, mode Mode, limits commentary.Limits, limiter *ratelimit.Limiter) *Narrator {
	if mode != ModeTurns {
		mode = ModeBatch
	}
	return &Narrator{
		client:  client,
		mode:    mode,
		limiter: limiter,
		retry:   ratelimit.DefaultRetry(),
		limits:  limits,
	}
}

// SetMatchContext installs team and player background for the prompts.
func (n *Narrator) SetMatchContext(block string) {
	n.matchContext = block
}

// Narrate produces validated commentary segments for events, all of which
// fall within [windowStart, windowEnd). lastEnd is the end time of the most
// recent commentary already accepted into the session.
func (n *Narrator) Narrate(ctx context.Context, events []commentary.Event, windowStart, windowEnd, lastEnd float64) ([]commentary.Segment, error) {
	if len(events) == 0 {
		return nil, nil
	}

	if n.mode == ModeTurns {
		return n.narrateTurns(ctx, events, windowEnd, lastEnd)
	}
	return n.narrateBatch(ctx, events, windowStart, windowEnd, lastEnd)
}

type rawSegment struct {
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Commentary string `json:"commentary"`
	Speaker    string `json:"speaker"`
}

type rawScript struct {
	Commentaries []rawSegment `json:"commentaries"`
}

func (n *Narrator) narrateBatch(ctx context.Context, events []commentary.Event, windowStart, windowEnd, lastEnd float64) ([]commentary.Segment, error) {
	style := commentary.SelectStyle(events)
	prompt := n.batchPrompt(events, windowStart, windowEnd, lastEnd, style)

	text, err := n.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	segments, err := parseScript(text)
	if err != nil {
		return nil, err
	}

	return commentary.ValidateSequence(segments, lastEnd, n.limits), nil
}

func (n *Narrator) narrateTurns(ctx context.Context, events []commentary.Event, windowEnd, lastEnd float64) ([]commentary.Segment, error) {
	style := commentary.SelectStyle(events)

	var segments []commentary.Segment
	prevEnd := lastEnd
	for _, event := range events {
		for _, speaker := range []string{commentary.SpeakerLead, commentary.SpeakerAnalyst} {
			line, err := n.narrateLine(ctx, event, speaker, style, segments)
			if err != nil {
				return nil, err
			}
			if line == "" {
				continue
			}

			start := event.TimeSec
			if speaker == commentary.SpeakerAnalyst || start < prevEnd+n.limits.MinGap {
				start = prevEnd + n.limits.MinGap
			}
			duration := float64(len(strings.Fields(line))) / n.limits.WordsPerSecond
			if duration < n.limits.MinDuration {
				duration = n.limits.MinDuration
			}
			if duration > n.limits.MaxDuration {
				duration = n.limits.MaxDuration
			}

			seg := commentary.Segment{
				StartSec: start,
				EndSec:   start + duration,
				Text:     line,
				Speaker:  speaker,
			}
			segments = append(segments, seg)
			prevEnd = seg.EndSec
		}
	}

	return commentary.ValidateSequence(segments, lastEnd, n.limits), nil
}

func (n *Narrator) narrateLine(ctx context.Context, event commentary.Event, speaker string, style commentary.Style, prior []commentary.Segment) (string, error) {
	var b strings.Builder
	if n.matchContext != "" {
		b.WriteString(n.matchContext)
		b.WriteString("\n\n")
	}
	b.WriteString(style.PromptModifier())
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Event at %s: %s\n", event.FormatTimeline(), event.Description)
	if len(prior) > 0 {
		last := prior[len(prior)-1]
		fmt.Fprintf(&b, "The previous line, from %s, was: %q\n", last.Speaker, last.Text)
	}
	if speaker == commentary.SpeakerLead {
		b.WriteString("\nYou are the lead play-by-play commentator. Call this moment in one or two sentences. Respond with the spoken line only.")
	} else {
		b.WriteString("\nYou are the color analyst. React to the lead commentator's call in one or two sentences. Respond with the spoken line only.")
	}

	text, err := n.complete(ctx, b.String())
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(text), `"`), nil
}

func (n *Narrator) complete(ctx context.Context, prompt string) (string, error) {
	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}

	var text string
	err := n.retry.Do(ctx, func() error {
		if waited, err := n.limiter.Wait(ctx); err != nil {
			return err
		} else if waited > 0 {
			log.Printf("narrate: rate limited, waited %s", waited.Round(time.Millisecond))
		}

		out, err := n.client.Complete(ctx, messages)
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("narrate: %w", err)
	}
	return text, nil
}

const systemPrompt = `You are a pair of professional football commentators producing live broadcast commentary. COMMENTATOR_1 is the lead play-by-play voice. COMMENTATOR_2 is the color analyst. Keep every line natural to say aloud. Never mention timestamps, cameras, or that you are watching a video.`

func (n *Narrator) batchPrompt(events []commentary.Event, windowStart, windowEnd, lastEnd float64, style commentary.Style) string {
	var b strings.Builder
	if n.matchContext != "" {
		b.WriteString(n.matchContext)
		b.WriteString("\n\n")
	}
	b.WriteString(style.PromptModifier())
	b.WriteString("\n\nEvents in this passage of play:\n")
	for _, e := range events {
		fmt.Fprintf(&b, "- [%s] %s", e.FormatTimeline(), e.Description)
		if e.Replay {
			b.WriteString(" (replay)")
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nWrite dialogue covering %s to %s.", timeutil.FormatTimecode(windowStart), timeutil.FormatTimecode(windowEnd))
	if lastEnd > 0 {
		fmt.Fprintf(&b, " The previous commentary ended at %s; no line may start before %s.",
			timeutil.FormatTimecode(lastEnd), timeutil.FormatTimecode(lastEnd+n.limits.MinGap))
	}
	fmt.Fprintf(&b, `

Alternate between %s and %s. Each line must fit its time slot at roughly %.1f words per second, last at most %.0f seconds, and leave at least %.1f seconds before the next line starts.

Respond with JSON only, in this exact shape:
{"commentaries": [{"start_time": "MM:SS", "end_time": "MM:SS", "commentary": "...", "speaker": "%s"}]}`,
		commentary.SpeakerLead, commentary.SpeakerAnalyst,
		n.limits.WordsPerSecond, n.limits.MaxDuration, n.limits.MinGap,
		commentary.SpeakerLead)
	return b.String()
}

// parseScript decodes the model's JSON script, tolerating a fenced code block
// and fractional timecodes, and dropping entries it cannot interpret.
func parseScript(text string) ([]commentary.Segment, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var script rawScript
	if err := json.Unmarshal([]byte(cleaned), &script); err != nil {
		return nil, fmt.Errorf("parse commentary script: %w", err)
	}

	segments := make([]commentary.Segment, 0, len(script.Commentaries))
	for _, r := range script.Commentaries {
		start, err := timeutil.ParseTimecode(r.StartTime)
		if err != nil {
			log.Printf("narrate: discarding line with bad start_time %q: %v", r.StartTime, err)
			continue
		}
		end, err := timeutil.ParseTimecode(r.EndTime)
		if err != nil {
			log.Printf("narrate: discarding line with bad end_time %q: %v", r.EndTime, err)
			continue
		}

		speaker := strings.TrimSpace(r.Speaker)
		if speaker != commentary.SpeakerLead && speaker != commentary.SpeakerAnalyst {
			speaker = commentary.SpeakerLead
		}
		textLine := strings.TrimSpace(r.Commentary)
		if textLine == "" {
			continue
		}

		segments = append(segments, commentary.Segment{
			StartSec: start,
			EndSec:   end,
			Text:     textLine,
			Speaker:  speaker,
		})
	}
	return segments, nil
}
