package tokencount

import (
	"errors"
	"testing"
)

func newTestCounter(t *testing.T) *Counter {
	t.Helper()
	counter, errCounter := NewCounter()
	if errCounter != nil {
		t.Fatalf("new counter: %v", errCounter)
	}
	return counter
}

func TestCountTrustsUpstreamCounts(t *testing.T) {
	counter := newTestCounter(t)

	counts, errCount := counter.Count([]Message{
		{Role: "user", Content: "a very long prompt that is never tokenized"},
		{
			Role:    "assistant",
			Content: "reply",
			Info:    &UpstreamCounts{PromptTokens: 500_000, CompletionTokens: 100_000},
		},
	})
	if errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if counts.InputTokens != 500_000 || counts.OutputTokens != 100_000 {
		t.Fatalf("upstream counts must pass through verbatim: %+v", counts)
	}
}

func TestCountIgnoresPartialUpstreamCounts(t *testing.T) {
	counter := newTestCounter(t)

	// Completion count missing, so the transcript is tokenized locally.
	counts, errCount := counter.Count([]Message{
		{Role: "user", Content: "hello there"},
		{Role: "assistant", Content: "hi", Info: &UpstreamCounts{PromptTokens: 500_000}},
	})
	if errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if counts.InputTokens >= 500_000 {
		t.Fatalf("partial upstream counts must not be trusted: %+v", counts)
	}
	if counts.InputTokens <= 0 || counts.OutputTokens <= 0 {
		t.Fatalf("expected local counts for both sides: %+v", counts)
	}
}

func TestCountTranscriptFallback(t *testing.T) {
	counter := newTestCounter(t)

	messages := []Message{
		{Role: "user", Content: "What is the capital of France?"},
		{Role: "assistant", Content: "The capital of France is Paris."},
	}
	counts, errCount := counter.Count(messages)
	if errCount != nil {
		t.Fatalf("count: %v", errCount)
	}

	outputIDs, _, errOutput := counter.codec.Encode("The capital of France is Paris.")
	if errOutput != nil {
		t.Fatalf("codec: %v", errOutput)
	}
	inputIDs, _, errInput := counter.codec.Encode("What is the capital of France?")
	if errInput != nil {
		t.Fatalf("codec: %v", errInput)
	}
	if counts.OutputTokens != int64(len(outputIDs)) {
		t.Fatalf("output must be the last message's count: got %d want %d", counts.OutputTokens, len(outputIDs))
	}
	if counts.InputTokens != int64(len(inputIDs)) {
		t.Fatalf("input must be the rest of the transcript: got %d want %d", counts.InputTokens, len(inputIDs))
	}
}

func TestCountRecountsEarlierTurns(t *testing.T) {
	counter := newTestCounter(t)

	short := []Message{
		{Role: "user", Content: "first question"},
		{Role: "assistant", Content: "answer"},
	}
	long := []Message{
		{Role: "user", Content: "first question"},
		{Role: "assistant", Content: "first answer already billed"},
		{Role: "user", Content: "second question"},
		{Role: "assistant", Content: "answer"},
	}

	shortCounts, errShort := counter.Count(short)
	if errShort != nil {
		t.Fatalf("count: %v", errShort)
	}
	longCounts, errLong := counter.Count(long)
	if errLong != nil {
		t.Fatalf("count: %v", errLong)
	}
	if longCounts.InputTokens <= shortCounts.InputTokens {
		t.Fatalf("later events must count the whole transcript again: %d vs %d", longCounts.InputTokens, shortCounts.InputTokens)
	}
	if longCounts.OutputTokens != shortCounts.OutputTokens {
		t.Fatalf("same final message must give the same output count: %d vs %d", longCounts.OutputTokens, shortCounts.OutputTokens)
	}
}

func TestCountTextParts(t *testing.T) {
	counter := newTestCounter(t)

	counts, errCount := counter.Count([]Message{
		{Role: "user", Content: []any{
			map[string]any{"type": "text", "text": "describe this"},
			map[string]any{"type": "text", "text": "in one word"},
		}},
		{Role: "assistant", Content: "blue"},
	})
	if errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if counts.InputTokens <= 0 || counts.OutputTokens <= 0 {
		t.Fatalf("expected positive counts for text parts: %+v", counts)
	}
}

func TestCountUnsupportedContent(t *testing.T) {
	counter := newTestCounter(t)

	cases := [][]Message{
		{{Role: "user", Content: 42}},
		{{Role: "user", Content: []any{"bare string part"}}},
		{{Role: "user", Content: []any{map[string]any{"type": "image_url", "image_url": map[string]any{"url": "data:image/png"}}}}},
		{{Role: "user", Content: []any{map[string]any{"type": "text"}}}},
	}
	for i, messages := range cases {
		if _, errCount := counter.Count(messages); !errors.Is(errCount, ErrUnsupportedContent) {
			t.Errorf("case %d: expected ErrUnsupportedContent, got %v", i, errCount)
		}
	}
}

func TestCountEmptyTranscript(t *testing.T) {
	counter := newTestCounter(t)
	if _, errCount := counter.Count(nil); errCount == nil {
		t.Fatal("expected error for empty transcript")
	}
}
