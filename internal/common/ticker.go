// Package common provides shared utilities across the application.
package common

import (
	"strings"
)

// Ticker represents a parsed exchange-qualified ticker.
// Format: EXCHANGE:CODE (e.g., "NYSE:KO", "US:AAPL")
type Ticker struct {
	// Exchange is the exchange code (e.g., "US", "NYSE", "ASX")
	Exchange string
	// Code is the stock/security code (e.g., "KO", "AAPL")
	Code string
	// Raw is the original ticker string
	Raw string
}

// ExchangeToSuffix maps exchange codes to EODHD API suffixes.
var ExchangeToSuffix = map[string]string{
	"US":     ".US",
	"NYSE":   ".US",
	"NASDAQ": ".US",
	"AMEX":   ".US",
	"ASX":    ".AU",
	"LSE":    ".LSE",
	"TSX":    ".TO",
	"XETRA":  ".XETRA",
}

// eodhdSuffixToExchange maps EODHD suffixes back to the exchange code used in keys.
var eodhdSuffixToExchange = map[string]string{
	"US":    "US",
	"AU":    "ASX",
	"LSE":   "LSE",
	"TO":    "TSX",
	"XETRA": "XETRA",
}

// DefaultExchange is the exchange used when parsing tickers without an exchange prefix.
// Overridden from [tickers] default_exchange.
var DefaultExchange = "US"

// SetDefaultExchange sets the default exchange for parsing tickers.
func SetDefaultExchange(exchange string) {
	if exchange != "" {
		DefaultExchange = strings.ToUpper(exchange)
	}
}

// ParseTicker parses an exchange-qualified ticker string.
// Supports formats:
//   - "NYSE:KO" -> Exchange="NYSE", Code="KO" (colon separator)
//   - "NYSE.KO" -> Exchange="NYSE", Code="KO" (known exchange prefix)
//   - "KO.US" -> Exchange="US", Code="KO" (EODHD symbol)
//   - "ko" -> Exchange=DefaultExchange, Code="KO"
func ParseTicker(ticker string) Ticker {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return Ticker{}
	}

	if idx := strings.Index(ticker, ":"); idx > 0 {
		code := strings.ToUpper(strings.TrimSpace(ticker[idx+1:]))
		if code == "" {
			return Ticker{}
		}
		return Ticker{
			Exchange: strings.ToUpper(ticker[:idx]),
			Code:     code,
			Raw:      ticker,
		}
	}

	// Only match a dot prefix when it is a known exchange, codes such as BRK.B contain dots
	if idx := strings.Index(ticker, "."); idx > 0 {
		possibleExchange := strings.ToUpper(ticker[:idx])
		if _, ok := ExchangeToSuffix[possibleExchange]; ok {
			return Ticker{
				Exchange: possibleExchange,
				Code:     strings.ToUpper(ticker[idx+1:]),
				Raw:      ticker,
			}
		}
	}

	if lastDot := strings.LastIndex(ticker, "."); lastDot > 0 && lastDot < len(ticker)-1 {
		if exchange, ok := eodhdSuffixToExchange[strings.ToUpper(ticker[lastDot+1:])]; ok {
			return Ticker{
				Exchange: exchange,
				Code:     strings.ToUpper(ticker[:lastDot]),
				Raw:      ticker,
			}
		}
	}

	return Ticker{
		Exchange: DefaultExchange,
		Code:     strings.ToUpper(ticker),
		Raw:      ticker,
	}
}

// String returns the full exchange-qualified ticker string.
// It is also the checkpoint key for the ticker.
func (t Ticker) String() string {
	if t.Exchange == "" || t.Code == "" {
		return t.Code
	}
	return t.Exchange + ":" + t.Code
}

// EODHDSymbol returns the EODHD API symbol format.
// Example: "NYSE:KO" -> "KO.US"
func (t Ticker) EODHDSymbol() string {
	if t.Code == "" {
		return ""
	}
	suffix, ok := ExchangeToSuffix[t.Exchange]
	if !ok {
		suffix = "." + t.Exchange
	}
	return t.Code + suffix
}

// ParseTickers parses a list of ticker strings, dropping blanks and duplicates.
// The first occurrence wins so the input order is preserved.
func ParseTickers(tickers []string) []Ticker {
	result := make([]Ticker, 0, len(tickers))
	seen := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		parsed := ParseTicker(t)
		if parsed.Code == "" {
			continue
		}
		key := parsed.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, parsed)
	}
	return result
}
