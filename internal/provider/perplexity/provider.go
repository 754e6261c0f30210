// Package perplexity talks to Perplexity's OpenAI-compatible chat endpoint.
// Perplexity answers with live web context, which makes it the provider most
// representative of what a search-style answer engine says about a brand.
package perplexity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brandlens/brandlens/internal/config"
	"github.com/brandlens/brandlens/pkg/models"
)

const apiURL = "https://api.perplexity.ai/chat/completions"

// Provider implements models.Provider using Perplexity.
type Provider struct {
	cfg    config.PerplexityConfig
	client *http.Client
}

func NewProvider(cfg config.PerplexityConfig) *Provider {
	return &Provider{
		cfg:    cfg,
		client: &http.Client{},
	}
}

func (p *Provider) Name() string { return "perplexity" }

func (p *Provider) CostPerCall() int { return 1 }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (p *Provider) Complete(ctx context.Context, prompt string) (models.Completion, error) {
	text, latency, err := p.chat(ctx, prompt)
	if err != nil {
		return models.Completion{}, err
	}
	return models.Completion{Text: text, LatencyMs: latency}, nil
}

func (p *Provider) ClassifySentiment(ctx context.Context, question, response, brand string) (string, error) {
	prompt := fmt.Sprintf(
		"A user asked: %q\n\nAn AI assistant answered:\n%s\n\n"+
			"How does the answer speak about the brand %q? "+
			"Reply with exactly one word: positive, neutral, or negative.",
		question, response, brand)

	text, _, err := p.chat(ctx, prompt)
	if err != nil {
		return "", err
	}

	switch s := strings.ToLower(strings.TrimSpace(text)); {
	case strings.HasPrefix(s, "positive"):
		return models.SentimentPositive, nil
	case strings.HasPrefix(s, "negative"):
		return models.SentimentNegative, nil
	default:
		return models.SentimentNeutral, nil
	}
}

func (p *Provider) chat(ctx context.Context, prompt string) (string, int64, error) {
	body, err := json.Marshal(chatRequest{
		Model:    p.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	start := time.Now()
	resp, err := p.client.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return "", latency, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", latency, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		snippet := string(raw)
		if len(snippet) > 500 {
			snippet = snippet[:500]
		}
		return "", latency, &models.ProviderError{
			Provider:   "perplexity",
			StatusCode: resp.StatusCode,
			Body:       snippet,
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", latency, fmt.Errorf("decoding perplexity response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", latency, fmt.Errorf("perplexity returned no choices: malformed payload")
	}

	return parsed.Choices[0].Message.Content, latency, nil
}

var _ models.Provider = (*Provider)(nil)
