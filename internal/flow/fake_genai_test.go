package flow

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
)

// fakeGenAI returns canned completions in order, or a fixed error.
type fakeGenAI struct {
	replies []string
	err     error
	calls   int
	prompts []string
}

func (f *fakeGenAI) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.prompts = append(f.prompts, userPrompt)
	return f.next()
}

func (f *fakeGenAI) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	return f.next()
}

func (f *fakeGenAI) next() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.calls >= len(f.replies) {
		return "", errors.New("fakeGenAI: no more replies")
	}
	reply := f.replies[f.calls]
	f.calls++
	return reply, nil
}
