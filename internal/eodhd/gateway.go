package eodhd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/interfaces"
	"github.com/ternarybob/valuescreen/internal/models"
)

const (
	priceLookback   = 14 * 24 * time.Hour
	maxHeadlineText = 280
)

// Gateway assembles RawFinancials from EODHD fundamentals, prices and news.
type Gateway struct {
	client    *Client
	newsLimit int
	logger    arbor.ILogger
	now       func() time.Time
}

// NewGateway creates a gateway. newsLimit of 0 skips the news request.
func NewGateway(client *Client, newsLimit int, logger arbor.ILogger) *Gateway {
	return &Gateway{
		client:    client,
		newsLimit: newsLimit,
		logger:    logger,
		now:       time.Now,
	}
}

var _ interfaces.FinancialsGateway = (*Gateway)(nil)

// Fetch implements interfaces.FinancialsGateway
func (g *Gateway) Fetch(ctx context.Context, ticker common.Ticker) (*models.RawFinancials, error) {
	key := ticker.String()
	symbol := ticker.EODHDSymbol()

	fundamentals, err := g.client.GetFundamentals(ctx, symbol)
	if err != nil {
		return nil, classify(key, err)
	}
	if err := validateFundamentals(fundamentals); err != nil {
		return nil, models.NewCallError(kindForValidation(fundamentals), "fetch", key, err)
	}

	price, err := g.latestClose(ctx, symbol)
	if err != nil {
		return nil, classify(key, err)
	}

	raw := buildFinancials(symbol, fundamentals, price)
	raw.FetchedAt = g.now().UTC()

	if err := raw.Validate(); err != nil {
		return nil, models.NewCallError(models.KindMalformed, "fetch", key, err)
	}

	// News only feeds the sentiment prompt, so it never fails the fetch
	if g.newsLimit > 0 {
		if news, err := g.client.GetNews(ctx, []string{symbol}, WithLimit(g.newsLimit)); err != nil {
			g.logger.Warn().Str("ticker", key).Err(err).Msg("News unavailable, continuing without headlines")
		} else {
			applyNews(raw, news)
		}
	}

	return raw, nil
}

// latestClose returns the most recent close within the lookback window.
func (g *Gateway) latestClose(ctx context.Context, symbol string) (float64, error) {
	to := g.now()
	eod, err := g.client.GetEOD(ctx, symbol, WithDateRange(to.Add(-priceLookback), to), WithOrder("d"))
	if err != nil {
		return 0, err
	}
	if len(eod) == 0 {
		return 0, &DecodeError{Endpoint: "/eod/" + symbol, Err: errors.New("no recent prices")}
	}

	sort.Slice(eod, func(i, j int) bool { return eod[i].DateStr > eod[j].DateStr })

	price := eod[0].Close
	if price <= 0 {
		return 0, &DecodeError{Endpoint: "/eod/" + symbol, Err: fmt.Errorf("non-positive close %v", price)}
	}
	return price, nil
}

// validateFundamentals checks the sections every ratio depends on.
func validateFundamentals(f *FundamentalsResponse) error {
	if f.General == nil && f.Highlights == nil {
		return errors.New("no fundamentals for symbol")
	}
	if f.General == nil || f.General.Code == "" {
		return errors.New("fundamentals missing General.Code")
	}
	if f.Highlights == nil {
		return errors.New("fundamentals missing Highlights")
	}
	return nil
}

// kindForValidation treats an entirely empty payload as an unknown symbol.
func kindForValidation(f *FundamentalsResponse) models.ErrorKind {
	if f.General == nil && f.Highlights == nil {
		return models.KindNotFound
	}
	return models.KindMalformed
}

// buildFinancials maps fundamentals onto RawFinancials, falling back to
// statement line items when a highlight is missing.
func buildFinancials(symbol string, f *FundamentalsResponse, price float64) *models.RawFinancials {
	raw := &models.RawFinancials{
		Symbol:            symbol,
		Name:              f.General.Name,
		Currency:          f.General.CurrencyCode,
		Price:             price,
		EPS:               f.Highlights.EarningsShare,
		BookValuePerShare: f.Highlights.BookValue,
	}

	if raw.EPS == 0 {
		raw.EPS = f.Highlights.DilutedEpsTTM
	}
	if raw.EPS == 0 {
		raw.EPS = latestAnnualEPS(f.Earnings)
	}

	var balance map[string]interface{}
	if f.Financials != nil {
		_, balance = f.Financials.BalanceSheet.Latest()
	}

	if equity, ok := Number(balance, "totalStockholderEquity"); ok {
		raw.TotalEquity = equity
	} else {
		assets, okA := Number(balance, "totalAssets")
		liabilities, okL := Number(balance, "totalLiab")
		if okA && okL {
			raw.TotalEquity = assets - liabilities
		}
	}

	if debt, ok := Number(balance, "shortLongTermDebtTotal"); ok {
		raw.TotalDebt = debt
	} else {
		short, _ := Number(balance, "shortTermDebt")
		long, _ := Number(balance, "longTermDebt", "longTermDebtTotal")
		raw.TotalDebt = short + long
	}

	raw.SharesOutstanding = latestShares(f.OutstandingShares)
	if raw.SharesOutstanding == 0 {
		raw.SharesOutstanding, _ = Number(balance, "commonStockSharesOutstanding")
	}

	var income map[string]interface{}
	if f.Financials != nil {
		_, income = f.Financials.IncomeStatement.LatestYearly()
	}
	if netIncome, ok := Number(income, "netIncome", "netIncomeApplicableToCommonShares"); ok {
		raw.NetIncome = netIncome
	} else if f.Highlights.ReturnOnEquityTTM != 0 && raw.TotalEquity > 0 {
		raw.NetIncome = f.Highlights.ReturnOnEquityTTM * raw.TotalEquity
	}

	if raw.BookValuePerShare == 0 && raw.TotalEquity > 0 && raw.SharesOutstanding > 0 {
		raw.BookValuePerShare = raw.TotalEquity / raw.SharesOutstanding
	}

	raw.LastEarningsAt = lastReportDate(f.Earnings)
	raw.Fundamentals = buildFundamentals(f, raw, balance)

	return raw
}

// buildFundamentals collects the wider snapshot. Highlights are preferred;
// ratios missing there are derived from the latest statements.
func buildFundamentals(f *FundamentalsResponse, raw *models.RawFinancials, balance map[string]interface{}) models.Fundamentals {
	h := f.Highlights
	out := models.Fundamentals{
		MarketCap:       h.MarketCapitalization,
		Revenue:         h.RevenueTTM,
		EBITDA:          h.EBITDA,
		NetMargin:       h.ProfitMargin,
		OperatingMargin: h.OperatingMarginTTM,
		ROA:             h.ReturnOnAssetsTTM,
		TargetMeanPrice: h.WallStreetTargetPrice,
		NetIncome:       raw.NetIncome,
		TotalDebt:       raw.TotalDebt,
		TotalEquity:     raw.TotalEquity,
	}

	if h.RevenueTTM > 0 {
		if h.GrossProfitTTM != 0 {
			out.GrossMargin = h.GrossProfitTTM / h.RevenueTTM
		}
		if h.EBITDA != 0 {
			out.EBITDAMargin = h.EBITDA / h.RevenueTTM
		}
	}

	if v := f.Valuation; v != nil {
		out.ForwardPE = v.ForwardPE
		out.PriceToSales = v.PriceSalesTTM
	}
	if s := f.SharesStats; s != nil {
		out.InsiderOwnership = s.PercentInsiders
		out.ShortPercentFloat = s.ShortPercentFloat
	}
	if t := f.Technicals; t != nil {
		out.FiftyTwoWeekLow = t.FiftyTwoWeekLow
		out.FiftyTwoWeekHigh = t.FiftyTwoWeekHigh
		out.ShortRatio = t.ShortRatio
		if out.ShortPercentFloat == 0 {
			out.ShortPercentFloat = t.ShortPercent
		}
	}
	if a := f.AnalystRatings; a != nil && a.TargetPrice > 0 {
		out.TargetMeanPrice = a.TargetPrice
	}

	out.TotalCash, _ = Number(balance, "cashAndShortTermInvestments", "cash")

	var cashFlow map[string]interface{}
	if f.Financials != nil {
		_, cashFlow = f.Financials.CashFlow.LatestYearly()
	}
	out.OperatingCashFlow, _ = Number(cashFlow, "totalCashFromOperatingActivities")
	if fcf, ok := Number(cashFlow, "freeCashFlow"); ok {
		out.FreeCashFlow = fcf
	} else if capex, ok := Number(cashFlow, "capitalExpenditures"); ok && out.OperatingCashFlow != 0 {
		// The sign of capital expenditures varies between filers
		if capex < 0 {
			capex = -capex
		}
		out.FreeCashFlow = out.OperatingCashFlow - capex
	}

	return out
}

func latestAnnualEPS(e *Earnings) float64 {
	if e == nil || len(e.Annual) == 0 {
		return 0
	}
	var latest EarningsAnnualEntry
	for _, entry := range e.Annual {
		if entry.Date > latest.Date {
			latest = entry
		}
	}
	return latest.EPSActual
}

func latestShares(s *OutstandingShares) float64 {
	if s == nil {
		return 0
	}
	for _, entries := range []map[string]SharesEntry{s.Quarterly, s.Annual} {
		var latest SharesEntry
		for _, entry := range entries {
			if entry.DateFormatted > latest.DateFormatted {
				latest = entry
			}
		}
		if latest.Shares > 0 {
			return latest.Shares
		}
	}
	return 0
}

// lastReportDate returns the most recent reported (not estimated) earnings date.
func lastReportDate(e *Earnings) string {
	if e == nil {
		return ""
	}
	latest := ""
	for _, entry := range e.History {
		if entry.EPSActual == nil {
			continue
		}
		if entry.ReportDate > latest {
			latest = entry.ReportDate
		}
	}
	return latest
}

func applyNews(raw *models.RawFinancials, news NewsResponse) {
	total := 0.0
	scored := 0
	for _, item := range news {
		headline := strings.TrimSpace(item.Title)
		if text := plainText(item.Content); text != "" {
			headline += ": " + truncate(text, maxHeadlineText)
		}
		if headline != "" {
			raw.Headlines = append(raw.Headlines, headline)
		}
		if item.Sentiment != nil {
			total += item.Sentiment.Polarity
			scored++
		}
	}
	raw.NewsCount = len(news)
	if scored > 0 {
		raw.NewsPolarity = total / float64(scored)
	}
}

// plainText strips markup from article bodies before they reach a prompt.
func plainText(content string) string {
	if content == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return strings.TrimSpace(content)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// classify maps client errors onto the pipeline's error kinds.
func classify(ticker string, err error) error {
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return models.NewCallError(models.KindRateLimited, "fetch", ticker, err).WithRetryAfter(rateErr.RetryAfter)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusNotFound:
			return models.NewCallError(models.KindNotFound, "fetch", ticker, err)
		case apiErr.StatusCode == http.StatusRequestTimeout || apiErr.StatusCode >= 500:
			return models.NewCallError(models.KindTransient, "fetch", ticker, err)
		default:
			// 401/403 and other client errors will not improve on retry
			return models.NewCallError(models.KindMalformed, "fetch", ticker, err)
		}
	}

	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return models.NewCallError(models.KindMalformed, "fetch", ticker, err)
	}

	// Network failures, deadlines and anything unrecognised
	return models.NewCallError(models.KindTransient, "fetch", ticker, err)
}
