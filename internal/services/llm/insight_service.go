package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/interfaces"
	"github.com/ternarybob/valuescreen/internal/models"
)

// sentimentThreshold is the news polarity beyond which sentiment is directional
const sentimentThreshold = 0.1

// InsightService generates the narrative fields for tickers that passed the screen.
// It runs one prompt per insight field through the LLM service.
type InsightService struct {
	llm    interfaces.LLMService
	logger arbor.ILogger
}

var _ interfaces.InsightGenerator = (*InsightService)(nil)

// NewInsightService creates an insight generator backed by llm
func NewInsightService(llm interfaces.LLMService, logger arbor.ILogger) *InsightService {
	return &InsightService{llm: llm, logger: logger}
}

// Generate implements interfaces.InsightGenerator. Any failed prompt fails
// the whole insight so the row never carries a partial narrative.
func (s *InsightService) Generate(ctx context.Context, ticker common.Ticker, raw *models.RawFinancials, eval *models.EvaluationResult) (*models.Insight, error) {
	key := ticker.String()
	in := promptInput{Symbol: ticker.Code, Raw: raw, Eval: eval}
	if raw != nil {
		in.Name = raw.Name
	}

	answers := make(map[PromptKind]string, len(PromptKinds))
	for _, kind := range PromptKinds {
		if err := ctx.Err(); err != nil {
			return nil, models.NewCallError(models.KindTransient, "generate", key, err)
		}

		text, err := s.llm.Chat(ctx, buildMessages(kind, in))
		if err != nil {
			s.logger.Debug().Str("ticker", key).Str("prompt", string(kind)).Err(err).Msg("Insight prompt failed")
			return nil, withTicker(err, key)
		}
		answers[kind] = text
	}

	insight := &models.Insight{
		SentimentSummary: answers[PromptSentiment],
		EarningsSummary:  answers[PromptEarnings],
		Commentary:       answers[PromptInsight],
		ValueView:        answers[PromptValue],
	}
	insight.Sentiment, insight.SentimentScore = sentimentFor(raw, answers[PromptSentiment])

	s.logger.Debug().
		Str("ticker", key).
		Str("sentiment", string(insight.Sentiment)).
		Float64("sentiment_score", insight.SentimentScore).
		Msg("Insight generated")

	return insight, nil
}

// sentimentFor labels sentiment from news polarity when news exists,
// otherwise from the model's answer.
func sentimentFor(raw *models.RawFinancials, answer string) (models.SentimentLabel, float64) {
	if raw != nil && raw.NewsCount > 0 {
		switch {
		case raw.NewsPolarity > sentimentThreshold:
			return models.SentimentPositive, raw.NewsPolarity
		case raw.NewsPolarity < -sentimentThreshold:
			return models.SentimentNegative, raw.NewsPolarity
		default:
			return models.SentimentNeutral, raw.NewsPolarity
		}
	}
	return ParseSentiment(answer), 0
}

// ParseSentiment returns the first sentiment word in text, neutral when none appears
func ParseSentiment(text string) models.SentimentLabel {
	lower := strings.ToLower(text)
	best := models.SentimentNeutral
	bestAt := -1
	for _, label := range []models.SentimentLabel{models.SentimentPositive, models.SentimentNegative, models.SentimentNeutral} {
		at := strings.Index(lower, string(label))
		if at >= 0 && (bestAt < 0 || at < bestAt) {
			best, bestAt = label, at
		}
	}
	return best
}

// withTicker returns a classified copy of err carrying the ticker key
func withTicker(err error, key string) error {
	var callErr *models.CallError
	if !errors.As(err, &callErr) {
		callErr = classifyProviderError(err)
	}
	c := *callErr
	c.Op = "generate"
	c.Ticker = key
	return &c
}
