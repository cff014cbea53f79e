// Package detect uploads video clips to Gemini and extracts timestamped match
// events from them.
package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/ovrbk/matchcast/internal/commentary"
	"github.com/ovrbk/matchcast/internal/ratelimit"
	"github.com/ovrbk/matchcast/internal/timeutil"
)

const (
	uploadPollInterval = time.Second
	uploadPollLimit    = 60
)

// Client detects match events in uploaded video clips.
type Client struct {
	client  *genai.Client
	model   string
	limiter *ratelimit.Limiter
	retry   ratelimit.RetryPolicy
}

// New creates a detection client using the Gemini file and generation APIs.
func New(ctx context.Context, apiKey, model string, limiter *ratelimit.Limiter) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{
		client:  client,
		model:   model,
		limiter: limiter,
		retry:   ratelimit.DefaultRetry(),
	}, nil
}

// Upload sends a clip file and waits for the service to finish processing it.
// A clip that never becomes active is a fatal error: later clips would arrive
// out of order if this one were silently skipped at upload time.
func (c *Client) Upload(ctx context.Context, path string) (string, error) {
	file, err := c.client.Files.UploadFromPath(ctx, path, nil)
	if err != nil {
		return "", fmt.Errorf("upload clip %s: %w", path, err)
	}

	for i := 0; i < uploadPollLimit; i++ {
		if file.State == genai.FileStateActive {
			return file.URI, nil
		}
		if file.State == genai.FileStateFailed {
			return "", fmt.Errorf("clip %s failed processing", path)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(uploadPollInterval):
		}

		file, err = c.client.Files.Get(ctx, file.Name, nil)
		if err != nil {
			return "", fmt.Errorf("poll clip %s: %w", path, err)
		}
	}

	return "", fmt.Errorf("clip %s not active after %ds", path, uploadPollLimit)
}

type rawEvent struct {
	Time        string `json:"time"`
	Description string `json:"description"`
	Replay      bool   `json:"replay"`
	Intensity   int    `json:"intensity"`
}

type rawResponse struct {
	Events []rawEvent `json:"events"`
}

// Detect analyzes an uploaded clip and returns its events with clip-relative
// times in seconds. clipDuration bounds the returned timestamps.
func (c *Client) Detect(ctx context.Context, fileURI string, clipDuration float64) ([]commentary.Event, error) {
	prompt := detectionPrompt(clipDuration)

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   eventSchema(),
	}
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{FileData: &genai.FileData{FileURI: fileURI, MIMEType: "video/mp4"}},
			{Text: prompt},
		},
	}}

	var text string
	err := c.retry.Do(ctx, func() error {
		if waited, err := c.limiter.Wait(ctx); err != nil {
			return err
		} else if waited > 0 {
			log.Printf("detect: rate limited, waited %s", waited.Round(time.Millisecond))
		}

		result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
		if err != nil {
			return wrapQuota(fmt.Errorf("detect events: %w", err))
		}
		text = result.Text()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return parseEvents(text, clipDuration)
}

func parseEvents(text string, clipDuration float64) ([]commentary.Event, error) {
	var raw rawResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &raw); err != nil {
		return nil, fmt.Errorf("parse detection response: %w", err)
	}

	events := make([]commentary.Event, 0, len(raw.Events))
	for _, r := range raw.Events {
		sec, err := timeutil.ParseTimecode(r.Time)
		if err != nil {
			log.Printf("detect: discarding event with unparseable time %q: %v", r.Time, err)
			continue
		}
		if sec < 0 {
			sec = 0
		}
		if clipDuration > 0 && sec > clipDuration {
			sec = clipDuration
		}

		intensity := r.Intensity
		if intensity < 1 {
			intensity = 1
		} else if intensity > 10 {
			intensity = 10
		}

		events = append(events, commentary.Event{
			TimeSec:     sec,
			Description: strings.TrimSpace(r.Description),
			Replay:      r.Replay,
			Intensity:   intensity,
		})
	}
	return events, nil
}

func detectionPrompt(clipDuration float64) string {
	return fmt.Sprintf(`You are analyzing a clip from a football match broadcast. The clip starts at 0:00 and runs for %.0f seconds. All timestamps you report must be relative to the start of THIS clip.

Identify every notable match event: goals, shots, saves, fouls, cards, corners, free kicks, substitutions, near misses, skillful plays, and replays of earlier action.

For each event report:
- time: when it happens, as MM:SS relative to the clip start
- description: one sentence describing the action, naming shirt numbers or positions when visible
- replay: true if the footage is a replay of earlier action
- intensity: 1 to 10, how exciting the moment is

Report events in chronological order. If nothing notable happens, return an empty list.`, clipDuration)
}

func eventSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"events": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"time":        {Type: genai.TypeString},
						"description": {Type: genai.TypeString},
						"replay":      {Type: genai.TypeBoolean},
						"intensity":   {Type: genai.TypeInteger},
					},
					Required: []string{"time", "description"},
				},
			},
		},
		Required: []string{"events"},
	}
}

func wrapQuota(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"quota", "429", "resource_exhausted", "rate limit"} {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %v", ratelimit.ErrQuotaExhausted, err)
		}
	}
	return err
}
