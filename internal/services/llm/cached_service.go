package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/interfaces"
)

// responseCacheTTL bounds how long identical prompts reuse an answer.
// Prompts embed dated headlines, so stale keys stop matching on their own.
const responseCacheTTL = 30 * 24 * time.Hour

// CachedService wraps an LLMService with a persistent response cache and
// per-call audit logging. A cache hit never reaches the provider.
type CachedService struct {
	inner  interfaces.LLMService
	cache  interfaces.ResponseCache
	logger arbor.ILogger
}

var _ interfaces.LLMService = (*CachedService)(nil)

// NewCachedService creates a caching decorator around inner
func NewCachedService(inner interfaces.LLMService, cache interfaces.ResponseCache, logger arbor.ILogger) *CachedService {
	return &CachedService{inner: inner, cache: cache, logger: logger}
}

// CacheKey is the SHA-256 of the JSON-encoded model and messages
func CacheKey(model string, messages []interfaces.Message) string {
	payload, _ := json.Marshal(struct {
		Model    string               `json:"model"`
		Messages []interfaces.Message `json:"messages"`
	}{model, messages})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Chat implements interfaces.LLMService
func (s *CachedService) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	key := CacheKey(s.inner.Model(), messages)

	if value, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn().Err(err).Msg("LLM cache read failed")
	} else if ok {
		s.logger.Debug().Str("key", key[:12]).Msg("LLM cache hit")
		return string(value), nil
	}

	start := time.Now()
	text, err := s.inner.Chat(ctx, messages)
	duration := time.Since(start)

	if err != nil {
		s.logger.Debug().
			Str("model", s.inner.Model()).
			Dur("duration", duration).
			Err(err).
			Msg("LLM call failed")
		return "", err
	}

	s.logger.Debug().
		Str("model", s.inner.Model()).
		Dur("duration", duration).
		Int("response_chars", len(text)).
		Msg("LLM call succeeded")

	if err := s.cache.Set(ctx, key, []byte(text), responseCacheTTL); err != nil {
		s.logger.Warn().Err(err).Msg("LLM cache write failed")
	}
	return text, nil
}

// Model implements interfaces.LLMService
func (s *CachedService) Model() string {
	return s.inner.Model()
}

// Close implements interfaces.LLMService
func (s *CachedService) Close() error {
	return s.inner.Close()
}
