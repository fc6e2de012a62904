// Package llm is the research/analyst LLM collaborator: a minimal
// OpenAI-compatible JSON-mode completion client plus the cost ledger.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"meridian/logger"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the token accounting a completion reports back.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// Request is the completion call's parameters.
type Request struct {
	Model          string
	Messages       []Message
	MaxTokens      int
	Temperature    float64
	ResponseFormat string // "json_object" or ""
}

// Response is the completion result.
type Response struct {
	Content string
	Usage   Usage
}

// Client completes chat requests against an OpenAI-compatible endpoint
// (LocalAI, or any hosted provider behind the same wire format).
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{baseURL: baseURL, apiKey: apiKey, http: &http.Client{Timeout: 60 * time.Second}}
}

func (c *Client) Complete(ctx context.Context, req Request) (Response, error) {
	wireReq := map[string]any{
		"model":       req.Model,
		"messages":    req.Messages,
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
	}
	if req.ResponseFormat != "" {
		wireReq["response_format"] = map[string]string{"type": req.ResponseFormat}
	}
	body, err := json.Marshal(wireReq)
	if err != nil {
		return Response{}, fmt.Errorf("marshal llm request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build llm request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read llm response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Response{}, fmt.Errorf("llm error (status %d): %s", resp.StatusCode, string(raw))
	}

	var wire struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Response{}, fmt.Errorf("parse llm response: %w", err)
	}
	if len(wire.Choices) == 0 {
		return Response{}, fmt.Errorf("llm response had no choices")
	}

	logger.Debugf("[LLM] completion ok: %d prompt / %d completion tokens", wire.Usage.PromptTokens, wire.Usage.CompletionTokens)
	return Response{
		Content: wire.Choices[0].Message.Content,
		Usage:   Usage{PromptTokens: wire.Usage.PromptTokens, CompletionTokens: wire.Usage.CompletionTokens},
	}, nil
}
