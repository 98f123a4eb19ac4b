package output

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/valuescreen/internal/models"
)

func sampleReport() *Report {
	summary := &models.RunSummary{
		RunID:     "run-1",
		StartedAt: time.Date(2024, 7, 3, 12, 0, 0, 0, time.UTC),
		Elapsed:   90 * time.Second,
		Total:     4,
		Completed: true,
	}
	rows := sampleRows()
	summary.SkippedResumed = 1
	for _, row := range rows {
		summary.Record(row)
	}
	return &Report{Summary: summary, Criteria: models.DefaultCriteria(), Rows: rows}
}

func TestReport_Markdown(t *testing.T) {
	md := sampleReport().Markdown()

	assert.Contains(t, md, "# Value Screen Report")
	assert.Contains(t, md, "run-1")
	assert.Contains(t, md, "## Passing tickers (1)")
	assert.Contains(t, md, "### US:KO")
	assert.Contains(t, md, "- **Commentary:** Durable brand, modest growth.")
	assert.Contains(t, md, "## Fetch failures (1)")
	assert.Contains(t, md, "ASX:ZZZ")
	assert.NotContains(t, md, "Incomplete run")
	assert.NotContains(t, md, "### US:XYZ", "failed screen rows get no narrative")
}

func TestReport_MarkdownIncomplete(t *testing.T) {
	report := sampleReport()
	report.Summary.Completed = false
	report.Summary.Total = 10

	assert.Contains(t, report.Markdown(), "**Incomplete run:** 6 tickers still pending")
}

func TestReport_HTML(t *testing.T) {
	html, err := sampleReport().HTML()
	require.NoError(t, err)

	page := string(html)
	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))
	assert.Contains(t, page, "<table>")
	assert.Contains(t, page, "<h1 id=")
	assert.Contains(t, page, "US:KO")
}

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reports", "run.md")

	require.NoError(t, WriteReport(path, true, sampleReport(), arbor.NewLogger()))

	for _, name := range []string{"run.md", "run.html", "run.pdf"} {
		info, err := os.Stat(filepath.Join(dir, "reports", name))
		require.NoError(t, err, name)
		assert.Greater(t, info.Size(), int64(0), name)
	}

	pdf, err := os.ReadFile(filepath.Join(dir, "reports", "run.pdf"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}

func TestRunSummary_Counts(t *testing.T) {
	s := sampleReport().Summary

	assert.Equal(t, 3, s.Processed)
	assert.Equal(t, 1, s.Passed)
	assert.Equal(t, 1, s.FailedScreen)
	assert.Equal(t, 1, s.FetchFailed)
	assert.Equal(t, 0, s.Pending())
	assert.InDelta(t, 2.0/3.0, s.SuccessRate(), 1e-9)
}
