package anthropic

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

const (
	apiURL     = "https://api.anthropic.com/v1/messages"
	apiVersion = "2023-06-01"
	maxTokens  = 2048
)

// Provider implements models.Provider using the Anthropic Messages API.
type Provider struct {
	cfg    config.AnthropicConfig
	client *http.Client
}

func NewProvider(cfg config.AnthropicConfig) *Provider {
	return &Provider{
		cfg:    cfg,
		client: &http.Client{},
	}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) CostPerCall() int { return 2 }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (p *Provider) Complete(ctx context.Context, prompt string) (models.Completion, error) {
	text, latency, err := p.send(ctx, prompt)
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

	text, _, err := p.send(ctx, prompt)
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

func (p *Provider) send(ctx context.Context, prompt string) (string, int64, error) {
	body, err := json.Marshal(messagesRequest{
		Model:     p.cfg.Model,
		MaxTokens: maxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)

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
			Provider:   "anthropic",
			StatusCode: resp.StatusCode,
			Body:       snippet,
		}
	}

	var parsed messagesResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", latency, fmt.Errorf("decoding anthropic response: %w", err)
	}

	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", latency, fmt.Errorf("anthropic returned no text content: malformed payload")
	}

	return sb.String(), latency, nil
}

var _ models.Provider = (*Provider)(nil)
