package eodhd

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// EODData represents a single day's end-of-day price data.
type EODData struct {
	Date          time.Time `json:"-"`
	DateStr       string    `json:"date"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	AdjustedClose float64   `json:"adjusted_close"`
	Volume        int64     `json:"volume"`
}

// EODResponse is a slice of EODData.
type EODResponse []EODData

// NewsItem represents a single news article.
type NewsItem struct {
	Date      time.Time      `json:"-"`
	DateStr   string         `json:"date"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Link      string         `json:"link"`
	Symbols   []string       `json:"symbols"`
	Tags      []string       `json:"tags"`
	Sentiment *NewsSentiment `json:"sentiment,omitempty"`
}

// NewsSentiment represents sentiment analysis data for news.
type NewsSentiment struct {
	Polarity float64 `json:"polarity"`
	Neg      float64 `json:"neg"`
	Neu      float64 `json:"neu"`
	Pos      float64 `json:"pos"`
}

// NewsResponse is a slice of NewsItem.
type NewsResponse []NewsItem

// FundamentalsResponse holds the fundamentals sections the screen reads.
type FundamentalsResponse struct {
	General           *GeneralInfo       `json:"General"`
	Highlights        *Highlights        `json:"Highlights"`
	Valuation         *Valuation         `json:"Valuation"`
	SharesStats       *SharesStats       `json:"SharesStats"`
	Technicals        *Technicals        `json:"Technicals"`
	AnalystRatings    *AnalystRatings    `json:"AnalystRatings"`
	OutstandingShares *OutstandingShares `json:"outstandingShares"`
	Earnings          *Earnings          `json:"Earnings"`
	Financials        *Financials        `json:"Financials"`
}

// GeneralInfo contains general company information.
type GeneralInfo struct {
	Code         string `json:"Code"`
	Type         string `json:"Type"`
	Name         string `json:"Name"`
	Exchange     string `json:"Exchange"`
	CurrencyCode string `json:"CurrencyCode"`
	Sector       string `json:"Sector"`
	Industry     string `json:"Industry"`
	IsDelisted   bool   `json:"IsDelisted"`
}

// Highlights contains key financial highlights.
type Highlights struct {
	MarketCapitalization  float64 `json:"MarketCapitalization"`
	EBITDA                float64 `json:"EBITDA"`
	PERatio               float64 `json:"PERatio"`
	WallStreetTargetPrice float64 `json:"WallStreetTargetPrice"`
	BookValue             float64 `json:"BookValue"`
	EarningsShare         float64 `json:"EarningsShare"`
	DilutedEpsTTM         float64 `json:"DilutedEpsTTM"`
	ProfitMargin          float64 `json:"ProfitMargin"`
	OperatingMarginTTM    float64 `json:"OperatingMarginTTM"`
	ReturnOnAssetsTTM     float64 `json:"ReturnOnAssetsTTM"`
	ReturnOnEquityTTM     float64 `json:"ReturnOnEquityTTM"`
	RevenueTTM            float64 `json:"RevenueTTM"`
	GrossProfitTTM        float64 `json:"GrossProfitTTM"`
	MostRecentQuarter     string  `json:"MostRecentQuarter"`
}

// Valuation contains market valuation multiples.
type Valuation struct {
	TrailingPE    float64 `json:"TrailingPE"`
	ForwardPE     float64 `json:"ForwardPE"`
	PriceSalesTTM float64 `json:"PriceSalesTTM"`
	PriceBookMRQ  float64 `json:"PriceBookMRQ"`
}

// SharesStats contains ownership and short interest as percentages.
type SharesStats struct {
	SharesOutstanding   float64 `json:"SharesOutstanding"`
	SharesFloat         float64 `json:"SharesFloat"`
	PercentInsiders     float64 `json:"PercentInsiders"`
	PercentInstitutions float64 `json:"PercentInstitutions"`
	ShortPercentFloat   float64 `json:"ShortPercentFloat"`
}

// Technicals contains trading range and short interest data.
type Technicals struct {
	Beta             float64 `json:"Beta"`
	FiftyTwoWeekHigh float64 `json:"52WeekHigh"`
	FiftyTwoWeekLow  float64 `json:"52WeekLow"`
	ShortRatio       float64 `json:"ShortRatio"`
	ShortPercent     float64 `json:"ShortPercent"`
}

// AnalystRatings contains the consensus rating and mean target price.
type AnalystRatings struct {
	Rating      float64 `json:"Rating"`
	TargetPrice float64 `json:"TargetPrice"`
}

// OutstandingShares contains outstanding shares history, keyed by index.
type OutstandingShares struct {
	Annual    map[string]SharesEntry `json:"annual"`
	Quarterly map[string]SharesEntry `json:"quarterly"`
}

// SharesEntry represents a single entry in outstanding shares.
type SharesEntry struct {
	Date          string  `json:"date"`
	DateFormatted string  `json:"dateFormatted"`
	SharesMln     float64 `json:"sharesMln"`
	Shares        float64 `json:"shares"`
}

// Earnings contains earnings data keyed by period date.
type Earnings struct {
	History map[string]EarningsHistoryEntry `json:"History"`
	Annual  map[string]EarningsAnnualEntry  `json:"Annual"`
}

// EarningsHistoryEntry represents a single earnings report.
type EarningsHistoryEntry struct {
	ReportDate  string   `json:"reportDate"`
	Date        string   `json:"date"`
	EPSActual   *float64 `json:"epsActual"`
	EPSEstimate *float64 `json:"epsEstimate"`
}

// EarningsAnnualEntry represents annual earnings.
type EarningsAnnualEntry struct {
	Date      string  `json:"date"`
	EPSActual float64 `json:"epsActual"`
}

// Financials contains financial statements.
type Financials struct {
	BalanceSheet    *FinancialStatement `json:"Balance_Sheet"`
	CashFlow        *FinancialStatement `json:"Cash_Flow"`
	IncomeStatement *FinancialStatement `json:"Income_Statement"`
}

// FinancialStatement represents a financial statement with quarterly and yearly data.
// Periods are keyed by date; values are usually numeric strings or null.
type FinancialStatement struct {
	Currency  string                            `json:"currency_symbol"`
	Quarterly map[string]map[string]interface{} `json:"quarterly"`
	Yearly    map[string]map[string]interface{} `json:"yearly"`
}

// Latest returns the most recent period, preferring quarterly data.
func (s *FinancialStatement) Latest() (string, map[string]interface{}) {
	if s == nil {
		return "", nil
	}
	if date, period := latestPeriod(s.Quarterly); period != nil {
		return date, period
	}
	return latestPeriod(s.Yearly)
}

// LatestYearly returns the most recent yearly period.
func (s *FinancialStatement) LatestYearly() (string, map[string]interface{}) {
	if s == nil {
		return "", nil
	}
	return latestPeriod(s.Yearly)
}

func latestPeriod(periods map[string]map[string]interface{}) (string, map[string]interface{}) {
	if len(periods) == 0 {
		return "", nil
	}
	dates := make([]string, 0, len(periods))
	for date := range periods {
		dates = append(dates, date)
	}
	// ISO dates sort lexically
	sort.Strings(dates)
	latest := dates[len(dates)-1]
	return latest, periods[latest]
}

// Number reads the first present numeric field from a statement period.
// EODHD encodes most figures as strings, so both forms are accepted.
func Number(period map[string]interface{}, fields ...string) (float64, bool) {
	for _, field := range fields {
		raw, ok := period[field]
		if !ok || raw == nil {
			continue
		}
		switch v := raw.(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}
