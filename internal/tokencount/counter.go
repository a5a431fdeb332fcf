package tokencount

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// ErrUnsupportedContent indicates a message carried content the tokenizer
// cannot count. The event fails rather than guessing a count of zero.
var ErrUnsupportedContent = errors.New("unsupported message content")

// UpstreamCounts carries token counts reported by the gateway itself.
type UpstreamCounts struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// Message is one entry of a chat transcript.
//
// Content is the decoded JSON value: a plain string for ordinary messages, or
// a list of typed parts for multimodal ones.
type Message struct {
	Role    string          `json:"role"`
	Content any             `json:"content"`
	Info    *UpstreamCounts `json:"info,omitempty"`
}

// Counts is the result of counting one billing event's transcript.
type Counts struct {
	InputTokens  int64
	OutputTokens int64
}

// Counter computes input/output token counts for a transcript.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter constructs a Counter backed by the cl100k_base BPE vocabulary,
// matching the gpt-4 family the upstream gateway fronts.
func NewCounter() (*Counter, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("tokencount: load codec: %w", err)
	}
	return &Counter{codec: codec}, nil
}

// Count returns token counts for the transcript ending in the billed turn.
//
// When the last message carries upstream-reported prompt and completion
// counts, those are trusted verbatim. Otherwise every message's content is
// tokenized: output is the last message's count and input is the remainder of
// the whole transcript. Earlier turns already billed are therefore counted
// again on each event; that matches the upstream gateway's accounting.
func (c *Counter) Count(messages []Message) (Counts, error) {
	if len(messages) == 0 {
		return Counts{}, fmt.Errorf("tokencount: empty transcript")
	}

	last := messages[len(messages)-1]
	if last.Info != nil && last.Info.PromptTokens > 0 && last.Info.CompletionTokens > 0 {
		return Counts{
			InputTokens:  last.Info.PromptTokens,
			OutputTokens: last.Info.CompletionTokens,
		}, nil
	}

	var total, output int64
	for i, msg := range messages {
		text, errText := contentText(msg.Content)
		if errText != nil {
			return Counts{}, errText
		}
		ids, _, errCount := c.codec.Encode(text)
		if errCount != nil {
			return Counts{}, fmt.Errorf("tokencount: encode: %w", errCount)
		}
		n := len(ids)
		total += int64(n)
		if i == len(messages)-1 {
			output = int64(n)
		}
	}

	return Counts{InputTokens: total - output, OutputTokens: output}, nil
}

// contentText flattens a decoded content value into countable text.
func contentText(content any) (string, error) {
	switch value := content.(type) {
	case nil:
		return "", nil
	case string:
		return value, nil
	case []any:
		var parts []string
		for _, item := range value {
			part, ok := item.(map[string]any)
			if !ok {
				return "", fmt.Errorf("%w: %T", ErrUnsupportedContent, item)
			}
			if part["type"] != nil && part["type"] != "text" {
				return "", fmt.Errorf("%w: part type %v", ErrUnsupportedContent, part["type"])
			}
			text, ok := part["text"].(string)
			if !ok {
				return "", fmt.Errorf("%w: text part without text", ErrUnsupportedContent)
			}
			parts = append(parts, text)
		}
		return strings.Join(parts, "\n"), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedContent, content)
	}
}
