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
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
)

// charsPerToken is the rough budget estimate used before a call, when the
// provider has not told us anything yet. Four characters per token is the
// usual English-text approximation.
const charsPerToken = 4

// Request is one blocking completion call.
type Request struct {
	System string `json:"system"`
	Prompt string `json:"prompt"`
}

// Response carries the completion and the token usage the provider
// reported. TokensUsed falls back to an estimate when the provider omits
// usage metadata.
type Response struct {
	Content    string `json:"content"`
	TokensUsed int    `json:"tokens_used"`
}

// Caller is the narrow surface the pipeline depends on. Implementations
// must be safe for sequential reuse within one run.
type Caller interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// EstimateTokens sizes a request for admission control before any
// provider has seen it.
func EstimateTokens(req Request) int64 {
	n := (len(req.System) + len(req.Prompt)) / charsPerToken
	if n < 1 {
		n = 1
	}
	return int64(n)
}

// Client adapts a ChatModel to the Caller interface.
type Client struct {
	model ChatModel
}

func NewClient(model ChatModel) *Client {
	return &Client{model: model}
}

func (c *Client) Generate(ctx context.Context, req Request) (Response, error) {
	msgs := make([]*schema.Message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, schema.SystemMessage(req.System))
	}
	msgs = append(msgs, schema.UserMessage(req.Prompt))

	out, err := c.model.Generate(ctx, msgs)
	if err != nil {
		return Response{}, errors.Wrap(err, "model generate")
	}

	resp := Response{Content: out.Content}
	if meta := out.ResponseMeta; meta != nil && meta.Usage != nil {
		resp.TokensUsed = meta.Usage.TotalTokens
	}
	if resp.TokensUsed == 0 {
		resp.TokensUsed = int(EstimateTokens(req)) + len(out.Content)/charsPerToken
	}
	return resp, nil
}

// IsThrottle reports whether err is the provider pushing back on rate or
// quota, as opposed to a transient failure worth plain retrying.
func IsThrottle(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429",
		"rate limit",
		"rate_limit",
		"too many requests",
		"quota exceeded",
		"overloaded",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
