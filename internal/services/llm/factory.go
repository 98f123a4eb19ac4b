package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/interfaces"
)

// NewLLMService creates the LLM service for the configured provider.
// When cache is non-nil and caching is enabled, responses are reused across runs.
func NewLLMService(
	cfg *common.Config,
	cache interfaces.ResponseCache,
	logger arbor.ILogger,
) (interfaces.LLMService, error) {
	provider := NewProviderFactory(cfg, logger)

	if err := validateProviderConfig(cfg, provider.provider); err != nil {
		return nil, err
	}

	logger.Info().
		Str("model", provider.Model()).
		Bool("cache", cfg.LLM.CacheEnabled && cache != nil).
		Msg("Initializing LLM service")

	if cfg.LLM.CacheEnabled && cache != nil {
		return NewCachedService(provider, cache, logger), nil
	}
	return provider, nil
}

// validateProviderConfig checks the selected provider can be called
func validateProviderConfig(cfg *common.Config, provider ProviderType) error {
	switch provider {
	case ProviderClaude:
		if cfg.Claude.APIKey == "" {
			return fmt.Errorf("claude provider selected but no API key configured (set ANTHROPIC_API_KEY or [claude].api_key)")
		}
		if cfg.Claude.MaxTokens <= 0 {
			return fmt.Errorf("claude max_tokens must be positive, got %d", cfg.Claude.MaxTokens)
		}
	case ProviderGemini:
		if cfg.Gemini.APIKey == "" {
			return fmt.Errorf("gemini provider selected but no API key configured (set GEMINI_API_KEY or [gemini].api_key)")
		}
	default:
		return fmt.Errorf("unsupported LLM provider: %s", provider)
	}
	return nil
}
