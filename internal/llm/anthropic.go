package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicMaxTokens bounds completion length; a narration script for one
// 30 second window fits well within it.
const anthropicMaxTokens = 8192

// jsonOnlyInstruction emulates a JSON response mode; the messages API has no
// response-format switch.
const jsonOnlyInstruction = "Respond with a single JSON object and nothing else: no prose, no code fences."

type anthropicClient struct {
	client   anthropic.Client
	model    string
	jsonMode bool
}

func newAnthropicClient(apiKey, model string, opts *clientOptions) (*anthropicClient, error) {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if opts.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.baseURL))
	}

	return &anthropicClient{
		client:   anthropic.NewClient(reqOpts...),
		model:    model,
		jsonMode: opts.jsonMode,
	}, nil
}

// Complete sends the conversation, lifting system messages into the
// top-level system field as the messages API requires.
func (c *anthropicClient) Complete(ctx context.Context, messages []Message) (string, error) {
	system, chat := splitSystemMessages(messages)
	if c.jsonMode {
		system = append(system, anthropic.TextBlockParam{Text: jsonOnlyInstruction})
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: anthropicMaxTokens,
		System:    system,
		Messages:  chat,
	})
	if err != nil {
		return "", wrapQuota(fmt.Errorf("anthropic completion: %w", err))
	}

	var text strings.Builder
	for i := range resp.Content {
		if block := &resp.Content[i]; block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	out := strings.TrimSpace(text.String())
	if out == "" {
		return "", fmt.Errorf("anthropic: empty response content")
	}
	return out, nil
}

func splitSystemMessages(messages []Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	var chat []anthropic.MessageParam

	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case "user":
			chat = append(chat, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			chat = append(chat, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return system, chat
}
