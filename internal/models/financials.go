package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// RawFinancials is the per-ticker snapshot the screen is computed from.
// Values are in the listing currency; per-share values are per ordinary share.
type RawFinancials struct {
	Symbol            string    `json:"symbol" validate:"required"`
	Name              string    `json:"name"`
	Currency          string    `json:"currency"`
	Price             float64   `json:"price" validate:"gt=0"`
	EPS               float64   `json:"eps"`
	BookValuePerShare float64   `json:"book_value_per_share"`
	TotalDebt         float64   `json:"total_debt"`
	TotalEquity       float64   `json:"total_equity"`
	NetIncome         float64   `json:"net_income"`
	SharesOutstanding float64   `json:"shares_outstanding"`
	FetchedAt         time.Time `json:"fetched_at"`

	// Fundamentals is the wider snapshot written alongside the screen
	Fundamentals Fundamentals `json:"fundamentals"`

	// News context for the sentiment prompt
	Headlines      []string `json:"headlines,omitempty"`
	NewsPolarity   float64  `json:"news_polarity"`
	NewsCount      int      `json:"news_count"`
	LastEarningsAt string   `json:"last_earnings_at,omitempty"`
}

// Fundamentals is context carried to the output next to the four screened
// ratios. Margins and returns are fractions (0.12 = 12%); ownership and short
// interest are as the upstream reports them. Zero means not reported.
type Fundamentals struct {
	MarketCap         float64 `json:"market_cap"`
	ForwardPE         float64 `json:"forward_pe"`
	PriceToSales      float64 `json:"price_to_sales"`
	Revenue           float64 `json:"revenue"`
	EBITDA            float64 `json:"ebitda"`
	EBITDAMargin      float64 `json:"ebitda_margin"`
	GrossMargin       float64 `json:"gross_margin"`
	OperatingMargin   float64 `json:"operating_margin"`
	NetMargin         float64 `json:"net_margin"`
	NetIncome         float64 `json:"net_income"`
	ROA               float64 `json:"roa"`
	FreeCashFlow      float64 `json:"free_cash_flow"`
	OperatingCashFlow float64 `json:"operating_cash_flow"`
	InsiderOwnership  float64 `json:"insider_ownership"`
	ShortRatio        float64 `json:"short_ratio"`
	ShortPercentFloat float64 `json:"short_percent_float"`
	FiftyTwoWeekLow   float64 `json:"fifty_two_week_low"`
	FiftyTwoWeekHigh  float64 `json:"fifty_two_week_high"`
	TargetMeanPrice   float64 `json:"target_mean_price"`
	TotalDebt         float64 `json:"total_debt"`
	TotalCash         float64 `json:"total_cash"`
	TotalEquity       float64 `json:"total_equity"`
}

var financialsValidator = validator.New()

// Validate checks the fields every screen depends on
func (r *RawFinancials) Validate() error {
	return financialsValidator.Struct(r)
}
