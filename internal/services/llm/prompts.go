package llm

import (
	"fmt"
	"strings"

	"github.com/ternarybob/valuescreen/internal/interfaces"
	"github.com/ternarybob/valuescreen/internal/models"
)

// PromptKind names one of the insight prompts
type PromptKind string

const (
	PromptSentiment PromptKind = "sentiment"
	PromptEarnings  PromptKind = "earnings"
	PromptInsight   PromptKind = "insight"
	PromptValue     PromptKind = "value"
)

// PromptKinds lists the prompts in the order they are run
var PromptKinds = []PromptKind{PromptSentiment, PromptEarnings, PromptInsight, PromptValue}

const (
	systemPrompt = "You are an equity research analyst writing for value investors. " +
		"Only use the data provided. If the data is thin, say so plainly."

	conciseSuffix = "Be concise and to the point, maximum 2 sentences."

	maxPromptHeadlines = 8
)

// promptInput is the data shared by every prompt for one ticker
type promptInput struct {
	Symbol string
	Name   string
	Raw    *models.RawFinancials
	Eval   *models.EvaluationResult
}

// buildMessages renders the system and user messages for kind
func buildMessages(kind PromptKind, in promptInput) []interfaces.Message {
	var b strings.Builder

	switch kind {
	case PromptSentiment:
		fmt.Fprintf(&b, "Provide a sentiment analysis for stock %s based on the recent news below. ", in.Symbol)
		b.WriteString("Is the sentiment positive, negative, or neutral? Start your answer with that one word. ")
		b.WriteString("Focus on key drivers (e.g., earnings reports, news events, market sentiment).\n\n")
		writeHeadlines(&b, in.Raw)
	case PromptEarnings:
		fmt.Fprintf(&b, "Summarize the latest earnings call for stock %s. ", in.Symbol)
		b.WriteString("Highlight key points such as management outlook, risks, opportunities, and financial performance.\n\n")
		if in.Raw != nil && in.Raw.LastEarningsAt != "" {
			fmt.Fprintf(&b, "Most recent reported earnings: %s\n", in.Raw.LastEarningsAt)
		}
		writeHeadlines(&b, in.Raw)
	case PromptInsight:
		fmt.Fprintf(&b, "Analyze stock %s. ", in.Symbol)
		b.WriteString("Include its business model, growth prospects, financial performance, and risks. ")
		b.WriteString("Provide key investment takeaways.\n\n")
		writeMetrics(&b, in)
	case PromptValue:
		fmt.Fprintf(&b, "Evaluate stock %s from a value investor's perspective. ", in.Symbol)
		b.WriteString("Compare key metrics (PE ratio, PB ratio, ROE) to the industry average and provide investment recommendations.\n\n")
		writeMetrics(&b, in)
	}

	b.WriteString("\n")
	b.WriteString(conciseSuffix)

	return []interfaces.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: b.String()},
	}
}

func writeHeadlines(b *strings.Builder, raw *models.RawFinancials) {
	if raw == nil || len(raw.Headlines) == 0 {
		b.WriteString("No recent headlines are available.\n")
		return
	}
	b.WriteString("Recent headlines:\n")
	for i, h := range raw.Headlines {
		if i == maxPromptHeadlines {
			break
		}
		fmt.Fprintf(b, "- %s\n", h)
	}
}

func writeMetrics(b *strings.Builder, in promptInput) {
	if in.Name != "" {
		fmt.Fprintf(b, "Company: %s\n", in.Name)
	}
	if in.Raw != nil {
		fmt.Fprintf(b, "Price: %.2f %s\n", in.Raw.Price, in.Raw.Currency)
	}
	if in.Eval == nil {
		return
	}
	for _, r := range in.Eval.Results() {
		if r.Available {
			fmt.Fprintf(b, "%s: %.4f\n", strings.ToUpper(string(r.Metric)), r.Value)
		} else {
			fmt.Fprintf(b, "%s: unavailable\n", strings.ToUpper(string(r.Metric)))
		}
	}
}
