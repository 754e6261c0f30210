package provider

import (
	"fmt"

	"github.com/brandlens/brandlens/internal/config"
	"github.com/brandlens/brandlens/internal/provider/anthropic"
	"github.com/brandlens/brandlens/internal/provider/openai"
	"github.com/brandlens/brandlens/internal/provider/perplexity"
	"github.com/brandlens/brandlens/pkg/models"
)

// NewProviders constructs the enabled provider set from config.
// Called once at server startup.
func NewProviders(cfg config.ProvidersConfig) ([]models.Provider, error) {
	providers := make([]models.Provider, 0, len(cfg.Enabled))
	for _, name := range cfg.Enabled {
		switch name {
		case "openai":
			providers = append(providers, openai.NewProvider(cfg.OpenAI))
		case "anthropic":
			providers = append(providers, anthropic.NewProvider(cfg.Anthropic))
		case "perplexity":
			providers = append(providers, perplexity.NewProvider(cfg.Perplexity))
		default:
			return nil, fmt.Errorf("unknown AI provider %q: must be one of openai, anthropic, perplexity", name)
		}
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no AI providers enabled")
	}
	return providers, nil
}
