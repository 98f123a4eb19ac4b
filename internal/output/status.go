package output

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/ternarybob/valuescreen/internal/models"
)

// CheckpointCounts tallies committed rows by outcome
type CheckpointCounts struct {
	Committed          int
	Passed             int
	FailedScreen       int
	FetchFailed        int
	InsightUnavailable int
	LastRunID          string
}

// CountRows tallies rows in commit order. LastRunID is the run of the last row.
func CountRows(rows []*models.ResultRow) CheckpointCounts {
	var c CheckpointCounts
	for _, row := range rows {
		c.Committed++
		c.LastRunID = row.RunID
		switch {
		case row.Status == models.StatusFetchFailed:
			c.FetchFailed++
		case row.Passed():
			c.Passed++
			if row.Status == models.StatusInsightUnavailable {
				c.InsightUnavailable++
			}
		default:
			c.FailedScreen++
		}
	}
	return c
}

// StatusTable renders the counts as a terminal table
func StatusTable(c CheckpointCounts, requested int) string {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	w.AppendHeader(table.Row{"Checkpoint", "Tickers"})
	w.AppendRows([]table.Row{
		{"Committed", c.Committed},
		{"Passed screen", c.Passed},
		{"  insight unavailable", c.InsightUnavailable},
		{"Failed screen", c.FailedScreen},
		{"Fetch failed", c.FetchFailed},
	})
	if requested > 0 {
		pending := requested - c.Committed
		if pending < 0 {
			pending = 0
		}
		w.AppendFooter(table.Row{"Pending", pending})
	}
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	return w.Render()
}
