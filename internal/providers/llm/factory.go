package llm

import (
	"time"

	"github.com/lodestone-kg/lodestone/internal/config"
	"github.com/lodestone-kg/lodestone/internal/providers"
)

// FromConfig builds the chat provider selected by configuration. The mock
// provider exists for offline operation and tests.
func FromConfig(cfg config.LLMConfig) providers.LLMProvider {
	if cfg.Provider == "mock" {
		return NewMockProvider()
	}

	opts := []OpenAIOption{
		WithAPIKey(cfg.ResolveAPIKey()),
		WithBaseURL(cfg.BaseURL),
		WithModel(cfg.Model),
		WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.CallIntervalMs > 0 {
		opts = append(opts, WithCallInterval(time.Duration(cfg.CallIntervalMs)*time.Millisecond))
	}
	if cfg.ErrorBackoffMs > 0 {
		opts = append(opts, WithErrorBackoff(time.Duration(cfg.ErrorBackoffMs)*time.Millisecond))
	}
	return NewOpenAIProvider(opts...)
}
