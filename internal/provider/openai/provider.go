package openai

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

const apiURL = "https://api.openai.com/v1/chat/completions"

// Provider implements models.Provider using OpenAI Chat Completions.
type Provider struct {
	cfg    config.OpenAIConfig
	client *http.Client
}

func NewProvider(cfg config.OpenAIConfig) *Provider {
	return &Provider{
		cfg:    cfg,
		client: &http.Client{},
	}
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) CostPerCall() int { return 1 }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (p *Provider) Complete(ctx context.Context, prompt string) (models.Completion, error) {
	text, latency, err := p.chat(ctx, []chatMessage{
		{Role: "user", Content: prompt},
	}, 0.7)
	if err != nil {
		return models.Completion{}, err
	}
	return models.Completion{Text: text, LatencyMs: latency}, nil
}

func (p *Provider) ClassifySentiment(ctx context.Context, question, response, brand string) (string, error) {
	prompt := sentimentPrompt(question, response, brand)
	text, _, err := p.chat(ctx, []chatMessage{
		{Role: "user", Content: prompt},
	}, 0)
	if err != nil {
		return "", err
	}
	return normalizeSentiment(text), nil
}

func (p *Provider) chat(ctx context.Context, messages []chatMessage, temperature float32) (string, int64, error) {
	body, err := json.Marshal(chatRequest{
		Model:       p.cfg.Model,
		Messages:    messages,
		Temperature: temperature,
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
		return "", latency, &models.ProviderError{
			Provider:   "openai",
			StatusCode: resp.StatusCode,
			Body:       truncate(string(raw), 500),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", latency, fmt.Errorf("decoding openai response: %w", err)
	}
	if parsed.Error != nil {
		return "", latency, fmt.Errorf("openai error: %s (%s)", parsed.Error.Message, parsed.Error.Type)
	}
	if len(parsed.Choices) == 0 {
		return "", latency, fmt.Errorf("openai returned no choices: malformed payload")
	}

	return parsed.Choices[0].Message.Content, latency, nil
}

func sentimentPrompt(question, response, brand string) string {
	return fmt.Sprintf(
		"A user asked: %q\n\nAn AI assistant answered:\n%s\n\n"+
			"How does the answer speak about the brand %q? "+
			"Reply with exactly one word: positive, neutral, or negative.",
		question, response, brand)
}

func normalizeSentiment(text string) string {
	switch s := strings.ToLower(strings.TrimSpace(text)); {
	case strings.HasPrefix(s, "positive"):
		return models.SentimentPositive
	case strings.HasPrefix(s, "negative"):
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ models.Provider = (*Provider)(nil)
