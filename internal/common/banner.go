package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and logs the effective screen
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.Print("ValueScreen", GetVersion())

	logger.Info().
		Str("version", GetFullVersion()).
		Float64("pe_max", config.Criteria.PEMax).
		Float64("pb_max", config.Criteria.PBMax).
		Float64("de_max", config.Criteria.DEMax).
		Float64("roe_min", config.Criteria.ROEMin).
		Int("concurrency", config.Run.Concurrency).
		Str("provider", string(config.LLM.DefaultProvider)).
		Msg("Value screen configured")
}
