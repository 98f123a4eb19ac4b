// Package output writes the consolidated screen results and run reports.
package output

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/interfaces"
	"github.com/ternarybob/valuescreen/internal/models"
)

// baseColumns are the screen's fixed contract (the first fifteen) followed
// by run context
var baseColumns = []string{
	"symbol", "price", "pe", "pb", "de", "roe",
	"pe_pass", "pb_pass", "de_pass", "roe_pass", "overall_pass",
	"sentiment", "earnings_summary", "commentary", "status",
	"company", "sentiment_score", "sentiment_summary", "value_view", "note", "run_id", "fetched_at",
}

// fundamentalColumns are appended after baseColumns. Zero values are written
// as blanks.
var fundamentalColumns = []struct {
	name  string
	field func(f *models.Fundamentals) *float64
}{
	{"market_cap", func(f *models.Fundamentals) *float64 { return &f.MarketCap }},
	{"forward_pe", func(f *models.Fundamentals) *float64 { return &f.ForwardPE }},
	{"price_to_sales", func(f *models.Fundamentals) *float64 { return &f.PriceToSales }},
	{"revenue", func(f *models.Fundamentals) *float64 { return &f.Revenue }},
	{"ebitda", func(f *models.Fundamentals) *float64 { return &f.EBITDA }},
	{"ebitda_margin", func(f *models.Fundamentals) *float64 { return &f.EBITDAMargin }},
	{"gross_margin", func(f *models.Fundamentals) *float64 { return &f.GrossMargin }},
	{"operating_margin", func(f *models.Fundamentals) *float64 { return &f.OperatingMargin }},
	{"net_margin", func(f *models.Fundamentals) *float64 { return &f.NetMargin }},
	{"net_income", func(f *models.Fundamentals) *float64 { return &f.NetIncome }},
	{"roa", func(f *models.Fundamentals) *float64 { return &f.ROA }},
	{"free_cash_flow", func(f *models.Fundamentals) *float64 { return &f.FreeCashFlow }},
	{"operating_cash_flow", func(f *models.Fundamentals) *float64 { return &f.OperatingCashFlow }},
	{"insider_ownership", func(f *models.Fundamentals) *float64 { return &f.InsiderOwnership }},
	{"short_ratio", func(f *models.Fundamentals) *float64 { return &f.ShortRatio }},
	{"short_percent_float", func(f *models.Fundamentals) *float64 { return &f.ShortPercentFloat }},
	{"fifty_two_week_low", func(f *models.Fundamentals) *float64 { return &f.FiftyTwoWeekLow }},
	{"fifty_two_week_high", func(f *models.Fundamentals) *float64 { return &f.FiftyTwoWeekHigh }},
	{"target_mean_price", func(f *models.Fundamentals) *float64 { return &f.TargetMeanPrice }},
	{"total_debt", func(f *models.Fundamentals) *float64 { return &f.TotalDebt }},
	{"total_cash", func(f *models.Fundamentals) *float64 { return &f.TotalCash }},
	{"total_equity", func(f *models.Fundamentals) *float64 { return &f.TotalEquity }},
}

// Columns is the CSV header
var Columns = buildColumns()

func buildColumns() []string {
	cols := append([]string{}, baseColumns...)
	for _, c := range fundamentalColumns {
		cols = append(cols, c.name)
	}
	return cols
}

// legacyAliases maps columns of the earlier CSV-only workflow onto Columns
var legacyAliases = map[string]string{
	"company":              "symbol",
	"market_price":         "price",
	"pe_ratio":             "pe",
	"price_to_book_ratio":  "pb",
	"de_ratio":             "de",
	"roe_ratio":            "roe",
	"sentiment_insight":    "sentiment_summary",
	"earnings_insight":     "earnings_summary",
	"stock_insight":        "commentary",
	"value_insight":        "value_view",
	"current_price":        "price",
	"price_to_sales_ratio": "price_to_sales",
}

// CSVWriter is the OutputSink for the consolidated CSV file
type CSVWriter struct {
	path   string
	logger arbor.ILogger
}

var _ interfaces.OutputSink = (*CSVWriter)(nil)

// NewCSVWriter creates a writer for path
func NewCSVWriter(path string, logger arbor.ILogger) *CSVWriter {
	return &CSVWriter{path: path, logger: logger}
}

// Path returns the output file path
func (w *CSVWriter) Path() string {
	return w.path
}

// Write implements interfaces.OutputSink. The file is written to a temp file
// in the same directory, synced and renamed over the target.
func (w *CSVWriter) Write(rows []*models.ResultRow) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp output: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	cw := csv.NewWriter(tmp)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(Record(row)); err != nil {
			return fmt.Errorf("failed to write row %s: %w", row.Key, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", w.path, err)
	}
	committed = true

	w.logger.Debug().Str("path", w.path).Int("rows", len(rows)).Msg("Output consolidated")
	return nil
}

// Record renders row in Columns order
func Record(row *models.ResultRow) []string {
	rec := make([]string, len(Columns))
	rec[0] = row.Key
	rec[1] = formatNumber(row.Price)

	if row.Evaluation != nil {
		for i, r := range row.Evaluation.Results() {
			if r.Available {
				rec[2+i] = formatNumber(r.Value)
			}
			rec[6+i] = strconv.FormatBool(r.Pass)
		}
		rec[10] = strconv.FormatBool(row.Evaluation.Overall)
	}

	if row.Insight != nil {
		rec[11] = string(row.Insight.Sentiment)
		rec[12] = row.Insight.EarningsSummary
		rec[13] = row.Insight.Commentary
		rec[16] = formatNumber(row.Insight.SentimentScore)
		rec[17] = row.Insight.SentimentSummary
		rec[18] = row.Insight.ValueView
	}

	rec[14] = string(row.Status)
	rec[15] = row.Company
	rec[19] = row.Note
	rec[20] = row.RunID
	if !row.FetchedAt.IsZero() {
		rec[21] = row.FetchedAt.UTC().Format(time.RFC3339)
	}

	if row.Fundamentals != nil {
		for i, c := range fundamentalColumns {
			if v := *c.field(row.Fundamentals); v != 0 {
				rec[len(baseColumns)+i] = formatNumber(v)
			}
		}
	}
	return rec
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e4)/1e4, 'f', -1, 64)
}

// ReadCSV loads rows from an existing output file, including files written
// by the earlier CSV-only workflow. A missing file yields no rows.
func ReadCSV(path string) ([]*models.ResultRow, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	index := headerIndex(records[0])
	if _, ok := index["symbol"]; !ok {
		return nil, fmt.Errorf("%s has no symbol column", path)
	}
	_, hasFlags := index["overall_pass"]

	var rows []*models.ResultRow
	seen := make(map[string]struct{})
	for _, rec := range records[1:] {
		get := func(col string) string {
			if i, ok := index[col]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}

		ticker := common.ParseTicker(get("symbol"))
		if ticker.Code == "" {
			continue
		}
		key := ticker.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		row := &models.ResultRow{
			Key:     key,
			Symbol:  ticker.EODHDSymbol(),
			Company: get("company"),
			Price:   parseNumber(get("price")),
			Status:  models.RowStatus(get("status")),
			Note:    get("note"),
			RunID:   get("run_id"),
		}
		if row.Status == "" {
			row.Status = models.StatusOK
		}
		if t, err := time.Parse(time.RFC3339, get("fetched_at")); err == nil {
			row.FetchedAt = t
		}

		if row.Status != models.StatusFetchFailed {
			row.Evaluation = readEvaluation(get, hasFlags)
			row.Fundamentals = readFundamentals(get)
		}

		if summary := get("sentiment_summary"); summary != "" || get("commentary") != "" || get("sentiment") != "" {
			row.Insight = &models.Insight{
				Sentiment:        models.SentimentLabel(get("sentiment")),
				SentimentScore:   parseNumber(get("sentiment_score")),
				SentimentSummary: summary,
				EarningsSummary:  get("earnings_summary"),
				Commentary:       get("commentary"),
				ValueView:        get("value_view"),
			}
		}

		rows = append(rows, row)
	}
	return rows, nil
}

// headerIndex maps column names to positions. Legacy aliases only apply to
// files without the native header.
func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		index[name] = i
	}
	_, native := index["overall_pass"]
	if !native {
		for legacy, canonical := range legacyAliases {
			if i, ok := index[legacy]; ok {
				index[canonical] = i
			}
		}
		// The legacy "company" column held the ticker, not the name
		delete(index, "company")
	}
	return index
}

// readEvaluation rebuilds the screen result. The legacy workflow only saved
// tickers that passed, so a file without flag columns implies a pass.
func readEvaluation(get func(string) string, hasFlags bool) *models.EvaluationResult {
	eval := &models.EvaluationResult{}
	metrics := []*models.MetricResult{&eval.PE, &eval.PB, &eval.DE, &eval.ROE}
	for i, m := range models.Metrics {
		r := metrics[i]
		r.Metric = m
		if value := get(string(m)); value != "" {
			if v, err := strconv.ParseFloat(value, 64); err == nil && !math.IsNaN(v) {
				r.Value = v
				r.Available = true
			}
		}
		if hasFlags {
			r.Pass = parseBool(get(string(m) + "_pass"))
		} else {
			r.Pass = r.Available
		}
	}
	if hasFlags {
		eval.Overall = parseBool(get("overall_pass"))
	} else {
		eval.Overall = eval.PE.Pass && eval.PB.Pass && eval.DE.Pass && eval.ROE.Pass
	}
	return eval
}

// readFundamentals returns nil when no fundamentals column holds a value
func readFundamentals(get func(string) string) *models.Fundamentals {
	var f models.Fundamentals
	found := false
	for _, c := range fundamentalColumns {
		if v := parseNumber(get(c.name)); v != 0 {
			*c.field(&f) = v
			found = true
		}
	}
	if !found {
		return nil
	}
	return &f
}

func parseNumber(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0
	}
	return v
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}
