// Copyright 2025 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
)

// fakeModel returns a canned message so the adapter is testable without a
// provider.
type fakeModel struct {
	reply *schema.Message
	err   error
	seen  []*schema.Message
}

func (f *fakeModel) Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.seen = in
	return f.reply, f.err
}

func (f *fakeModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestGenerateBuildsMessagesAndReadsUsage(t *testing.T) {
	fake := &fakeModel{reply: &schema.Message{
		Role:    schema.Assistant,
		Content: "patched",
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
	}}

	resp, err := NewClient(fake).Generate(context.Background(), Request{
		System: "you edit code",
		Prompt: "change foo",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content != "patched" || resp.TokensUsed != 15 {
		t.Fatalf("got %+v", resp)
	}
	if len(fake.seen) != 2 || fake.seen[0].Role != schema.System || fake.seen[1].Role != schema.User {
		t.Fatalf("messages: %+v", fake.seen)
	}
}

func TestGenerateOmitsEmptySystemMessage(t *testing.T) {
	fake := &fakeModel{reply: &schema.Message{Role: schema.Assistant, Content: "ok"}}
	if _, err := NewClient(fake).Generate(context.Background(), Request{Prompt: "hi"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(fake.seen) != 1 || fake.seen[0].Role != schema.User {
		t.Fatalf("messages: %+v", fake.seen)
	}
}

func TestGenerateEstimatesWhenUsageMissing(t *testing.T) {
	fake := &fakeModel{reply: &schema.Message{Role: schema.Assistant, Content: "12345678"}}
	resp, err := NewClient(fake).Generate(context.Background(), Request{Prompt: "12345678"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	// 8 prompt chars + 8 completion chars at 4 chars/token.
	if resp.TokensUsed != 4 {
		t.Fatalf("TokensUsed: %d", resp.TokensUsed)
	}
}

func TestGenerateWrapsModelError(t *testing.T) {
	sentinel := errors.New("connection reset")
	fake := &fakeModel{err: sentinel}
	_, err := NewClient(fake).Generate(context.Background(), Request{Prompt: "x"})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(Request{System: "12345678", Prompt: "1234"}); got != 3 {
		t.Fatalf("got %d", got)
	}
	if got := EstimateTokens(Request{}); got != 1 {
		t.Fatalf("empty request floor: %d", got)
	}
}

func TestIsThrottle(t *testing.T) {
	throttled := []error{
		errors.New("HTTP 429 Too Many Requests"),
		errors.New("rate limit exceeded, retry later"),
		errors.New("anthropic: overloaded_error"),
		errors.New("monthly quota exceeded"),
	}
	for _, err := range throttled {
		if !IsThrottle(err) {
			t.Errorf("should throttle: %v", err)
		}
	}
	transient := []error{
		errors.New("connection reset by peer"),
		errors.New("context deadline exceeded"),
		nil,
	}
	for _, err := range transient {
		if IsThrottle(err) {
			t.Errorf("should not throttle: %v", err)
		}
	}
}

func TestNewModelTypeAliases(t *testing.T) {
	cases := map[string]ModelType{
		"Anthropic": ModelTypeClaude,
		"gpt":       ModelTypeOpenAI,
		"doubao":    ModelTypeARK,
		"qwen":      ModelTypeDashScope,
		"deepseek":  ModelTypeDeepSeek,
		"ollama":    ModelTypeOllama,
		"mystery":   ModelTypeUnknown,
	}
	for in, want := range cases {
		if got := NewModelType(in); got != want {
			t.Errorf("%s: got %q want %q", in, got, want)
		}
	}
}
