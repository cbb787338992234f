package model

import (
	"context"
	"errors"
)

// Generator produces text for a prompt.
type Generator interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

var errNoChoices = errors.New("llama.cpp returned no choices")

type completionRequest struct {
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

// Complete returns choices[0].text from POST /v1/completions.
// maxTokens <= 0 uses the client default.
func (c *LlamaClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	var resp completionResponse
	if err := c.postJSON(ctx, completionPath, completionRequest{Prompt: prompt, MaxTokens: maxTokens}, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errNoChoices
	}
	return resp.Choices[0].Text, nil
}
