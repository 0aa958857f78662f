package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIProvider generates suggestions using the OpenAI chat completions API.
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOpenAIProvider creates an OpenAI suggestion provider. Model should be
// a chat model like "gpt-4o-mini"; baseURL defaults to the public API.
func NewOpenAIProvider(apiKey, baseURL, model string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("suggest: openai api key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &OpenAIProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Suggest drafts a value for the entity's target field. Rule constraints
// are passed to the model as soft guidance only — the rules pipeline
// enforces them deterministically afterwards, so the generated text never
// needs to be trusted.
func (p *OpenAIProvider) Suggest(ctx context.Context, req Request) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write a concise %s for a store product.\n", strings.ReplaceAll(req.TargetField, "_", " "))
	fmt.Fprintf(&sb, "Playbook: %s\n", req.PlaybookName)
	if req.CurrentValue != "" {
		fmt.Fprintf(&sb, "Current value: %s\n", req.CurrentValue)
	}
	if req.Rules.MaxLength > 0 {
		fmt.Fprintf(&sb, "Keep it under %d characters.\n", req.Rules.MaxLength)
	}
	if len(req.Rules.ForbiddenPhrases) > 0 {
		fmt.Fprintf(&sb, "Never use these phrases: %s.\n", strings.Join(req.Rules.ForbiddenPhrases, ", "))
	}
	sb.WriteString("Reply with the text only, no quotes, no explanation.")

	body, err := json.Marshal(chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are an SEO copywriter for e-commerce storefronts."},
			{Role: "user", Content: sb.String()},
		},
		Temperature: 0.4,
		MaxTokens:   200,
	})
	if err != nil {
		return "", fmt.Errorf("suggest: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("suggest: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("suggest: openai request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("suggest: read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("suggest: parse response (status %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("suggest: openai error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("suggest: openai status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", nil
	}

	return strings.TrimSpace(strings.Trim(strings.TrimSpace(parsed.Choices[0].Message.Content), `"`)), nil
}
