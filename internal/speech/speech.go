// Package speech converts commentary text to MP3 audio using the OpenAI
// text-to-speech API, with a distinct voice per commentator.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ovrbk/matchcast/internal/commentary"
	"github.com/ovrbk/matchcast/internal/ratelimit"
)

// Client synthesizes commentary audio.
type Client struct {
	client *openai.Client
	model  openai.SpeechModel
	voices map[string]openai.SpeechVoice
	retry  ratelimit.RetryPolicy
}

// New creates a speech client. voices maps speaker identifiers to voice
// names; empty entries fall back to the defaults.
func New(apiKey string, voices map[string]string) *Client {
	v := map[string]openai.SpeechVoice{
		commentary.SpeakerLead:    openai.VoiceOnyx,
		commentary.SpeakerAnalyst: openai.VoiceEcho,
	}
	for speaker, voice := range voices {
		if voice != "" {
			v[speaker] = openai.SpeechVoice(voice)
		}
	}

	return &Client{
		client: openai.NewClient(apiKey),
		model:  openai.TTSModel1,
		voices: v,
		retry:  ratelimit.DefaultRetry(),
	}
}

// Synthesize renders one segment's text to MP3 bytes.
func (c *Client) Synthesize(ctx context.Context, seg commentary.Segment) ([]byte, error) {
	voice, ok := c.voices[seg.Speaker]
	if !ok {
		return nil, fmt.Errorf("unknown speaker %q", seg.Speaker)
	}

	var audio []byte
	err := c.retry.Do(ctx, func() error {
		resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
			Model:          c.model,
			Input:          seg.Text,
			Voice:          voice,
			ResponseFormat: openai.SpeechResponseFormatMp3,
		})
		if err != nil {
			return wrapQuota(fmt.Errorf("synthesize speech: %w", err))
		}
		defer resp.Close()

		audio, err = io.ReadAll(resp)
		if err != nil {
			return fmt.Errorf("read speech response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return audio, nil
}

func wrapQuota(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
		return fmt.Errorf("%w: %v", ratelimit.ErrQuotaExhausted, err)
	}
	if strings.Contains(strings.ToLower(err.Error()), "rate limit") {
		return fmt.Errorf("%w: %v", ratelimit.ErrQuotaExhausted, err)
	}
	return err
}
