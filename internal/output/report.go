package output

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// Report is the end-of-run summary rendered as Markdown, HTML and optionally PDF
type Report struct {
	Summary  *models.RunSummary
	Criteria models.Criteria
	Rows     []*models.ResultRow
}

// newMarkdown configures goldmark the same way for HTML and PDF rendering
func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.Table, extension.Strikethrough),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)
}

// Markdown renders the report
func (r *Report) Markdown() string {
	var b strings.Builder
	s := r.Summary

	b.WriteString("# Value Screen Report\n\n")
	fmt.Fprintf(&b, "Run `%s` started %s, finished in %s.\n\n",
		s.RunID, s.StartedAt.UTC().Format(time.RFC3339), s.Elapsed.Round(time.Second))
	if !s.Completed {
		fmt.Fprintf(&b, "**Incomplete run:** %d tickers still pending and will resume on the next run.\n\n", s.Pending())
	}

	b.WriteString("## Summary\n\n")
	summary := table.NewWriter()
	summary.AppendHeader(table.Row{"Measure", "Count"})
	summary.AppendRows([]table.Row{
		{"Tickers requested", s.Total},
		{"Resumed from checkpoint", s.SkippedResumed},
		{"Processed this run", s.Processed},
		{"Passed screen", s.Passed},
		{"Failed screen", s.FailedScreen},
		{"Fetch failed", s.FetchFailed},
		{"Insight unavailable", s.InsightUnavailable},
		{"Retries", s.Retries},
		{"Success rate", fmt.Sprintf("%.1f%%", s.SuccessRate()*100)},
	})
	b.WriteString(summary.RenderMarkdown())
	b.WriteString("\n\n")

	b.WriteString("## Criteria\n\n")
	criteria := table.NewWriter()
	criteria.AppendHeader(table.Row{"Metric", "Rule"})
	criteria.AppendRows([]table.Row{
		{"P/E", fmt.Sprintf("< %g", r.Criteria.PEMax)},
		{"P/B", fmt.Sprintf("< %g", r.Criteria.PBMax)},
		{"D/E", fmt.Sprintf("< %g", r.Criteria.DEMax)},
		{"ROE", fmt.Sprintf("> %g", r.Criteria.ROEMin)},
	})
	b.WriteString(criteria.RenderMarkdown())
	b.WriteString("\n\n")

	var passed, failed []*models.ResultRow
	for _, row := range r.Rows {
		if row.Passed() {
			passed = append(passed, row)
		}
		if row.Status == models.StatusFetchFailed {
			failed = append(failed, row)
		}
	}

	fmt.Fprintf(&b, "## Passing tickers (%d)\n\n", len(passed))
	if len(passed) == 0 {
		b.WriteString("No ticker passed the screen.\n\n")
	} else {
		t := table.NewWriter()
		t.AppendHeader(table.Row{"Symbol", "Company", "Price", "P/E", "P/B", "D/E", "ROE", "Sentiment", "Status"})
		for _, row := range passed {
			sentiment := ""
			if row.Insight != nil {
				sentiment = string(row.Insight.Sentiment)
			}
			e := row.Evaluation
			t.AppendRow(table.Row{
				row.Key, row.Company, formatNumber(row.Price),
				metricCell(e.PE), metricCell(e.PB), metricCell(e.DE), metricCell(e.ROE),
				sentiment, string(row.Status),
			})
		}
		b.WriteString(t.RenderMarkdown())
		b.WriteString("\n\n")

		for _, row := range passed {
			if row.Insight == nil {
				continue
			}
			fmt.Fprintf(&b, "### %s\n\n", row.Key)
			writeBullet(&b, "Sentiment", row.Insight.SentimentSummary)
			writeBullet(&b, "Earnings", row.Insight.EarningsSummary)
			writeBullet(&b, "Commentary", row.Insight.Commentary)
			writeBullet(&b, "Value view", row.Insight.ValueView)
			b.WriteString("\n")
		}
	}

	if len(failed) > 0 {
		fmt.Fprintf(&b, "## Fetch failures (%d)\n\n", len(failed))
		t := table.NewWriter()
		t.AppendHeader(table.Row{"Symbol", "Note"})
		for _, row := range failed {
			t.AppendRow(table.Row{row.Key, row.Note})
		}
		b.WriteString(t.RenderMarkdown())
		b.WriteString("\n")
	}

	return b.String()
}

func metricCell(r models.MetricResult) string {
	if !r.Available {
		return "n/a"
	}
	return formatNumber(r.Value)
}

func writeBullet(b *strings.Builder, label, text string) {
	if text == "" {
		return
	}
	fmt.Fprintf(b, "- **%s:** %s\n", label, strings.Join(strings.Fields(text), " "))
}

// HTML renders the Markdown report as a standalone HTML page
func (r *Report) HTML() ([]byte, error) {
	var body bytes.Buffer
	if err := newMarkdown().Convert([]byte(r.Markdown()), &body); err != nil {
		return nil, fmt.Errorf("failed to render report HTML: %w", err)
	}

	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>Value Screen Report</title>\n")
	page.WriteString("<style>body{font-family:sans-serif;max-width:960px;margin:2em auto}table{border-collapse:collapse}th,td{border:1px solid #ccc;padding:4px 8px}</style>\n")
	page.WriteString("</head><body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body></html>\n")
	return page.Bytes(), nil
}

// WriteReport writes the Markdown report to path plus .html and, when
// withPDF is set, .pdf siblings.
func WriteReport(path string, withPDF bool, report *Report, logger arbor.ILogger) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	markdown := report.Markdown()
	if err := os.WriteFile(path, []byte(markdown), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))

	html, err := report.HTML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(base+".html", html, 0644); err != nil {
		return fmt.Errorf("failed to write HTML report: %w", err)
	}

	written := []string{path, base + ".html"}

	if withPDF {
		pdf, err := MarkdownToPDF(markdown, "Value Screen Report")
		if err != nil {
			return err
		}
		if err := os.WriteFile(base+".pdf", pdf, 0644); err != nil {
			return fmt.Errorf("failed to write PDF report: %w", err)
		}
		written = append(written, base+".pdf")
	}

	logger.Info().Strs("files", written).Msg("Run report written")
	return nil
}
