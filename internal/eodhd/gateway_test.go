package eodhd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/models"
)

const koFundamentals = `{
  "General": {"Code": "KO", "Name": "The Coca-Cola Company", "CurrencyCode": "USD"},
  "Highlights": {"EarningsShare": 1.5, "BookValue": 10, "ReturnOnEquityTTM": 0.4},
  "outstandingShares": {"quarterly": {"0": {"dateFormatted": "2024-06-30", "shares": 4300000000}}},
  "Earnings": {"History": {
    "2024-06-30": {"reportDate": "2024-07-23", "epsActual": 0.84},
    "2024-09-30": {"reportDate": "2024-10-22", "epsActual": null}
  }},
  "Financials": {
    "Balance_Sheet": {"quarterly": {
      "2024-03-31": {"totalStockholderEquity": "90", "shortLongTermDebtTotal": "70"},
      "2024-06-30": {"totalStockholderEquity": "100", "shortLongTermDebtTotal": "50"}
    }},
    "Income_Statement": {"yearly": {
      "2022-12-31": {"netIncome": "9"},
      "2023-12-31": {"netIncome": "15"}
    }}
  }
}`

type fakeServer struct {
	fundamentals string
	status       int
	eod          string
	news         string
	requests     int32
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.requests, 1)
		assert.Equal(t, "test-key", r.URL.Query().Get("api_token"))

		if f.status != 0 && f.status != http.StatusOK {
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
			return
		}

		switch {
		case strings.HasPrefix(r.URL.Path, "/fundamentals/"):
			_, _ = w.Write([]byte(f.fundamentals))
		case strings.HasPrefix(r.URL.Path, "/eod/"):
			_, _ = w.Write([]byte(f.eod))
		case r.URL.Path == "/news":
			_, _ = w.Write([]byte(f.news))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newTestGateway(t *testing.T, f *fakeServer, opts ...ClientOption) *Gateway {
	t.Helper()
	server := httptest.NewServer(f.handler(t))
	t.Cleanup(server.Close)

	opts = append([]ClientOption{WithBaseURL(server.URL), WithRateLimit(100), WithLogger(arbor.NewLogger())}, opts...)
	client := NewClient("test-key", opts...)
	return NewGateway(client, 5, arbor.NewLogger())
}

func defaultServer() *fakeServer {
	return &fakeServer{
		fundamentals: koFundamentals,
		eod:          `[{"date":"2024-07-01","close":11.5},{"date":"2024-07-02","close":12}]`,
		news:         `[{"date":"2024-07-02T10:00:00+00:00","title":"KO beats","content":"<p>Strong <b>quarter</b> for   KO</p>","sentiment":{"polarity":0.5}},{"title":"KO flat","sentiment":{"polarity":0.1}}]`,
	}
}

func TestGateway_Fetch(t *testing.T) {
	gateway := newTestGateway(t, defaultServer())

	raw, err := gateway.Fetch(context.Background(), common.ParseTicker("NYSE:KO"))
	require.NoError(t, err)

	assert.Equal(t, "KO.US", raw.Symbol)
	assert.Equal(t, "The Coca-Cola Company", raw.Name)
	assert.Equal(t, 12.0, raw.Price, "latest close wins")
	assert.Equal(t, 1.5, raw.EPS)
	assert.Equal(t, 10.0, raw.BookValuePerShare)
	assert.Equal(t, 100.0, raw.TotalEquity, "latest quarter wins")
	assert.Equal(t, 50.0, raw.TotalDebt)
	assert.Equal(t, 15.0, raw.NetIncome, "latest fiscal year wins")
	assert.Equal(t, 4300000000.0, raw.SharesOutstanding)
	assert.Equal(t, "2024-07-23", raw.LastEarningsAt)
	assert.False(t, raw.FetchedAt.IsZero())

	require.Len(t, raw.Headlines, 2)
	assert.Equal(t, "KO beats: Strong quarter for KO", raw.Headlines[0])
	assert.Equal(t, 2, raw.NewsCount)
	assert.InDelta(t, 0.3, raw.NewsPolarity, 1e-9)
}

func TestGateway_Fallbacks(t *testing.T) {
	f := defaultServer()
	f.fundamentals = `{
	  "General": {"Code": "XYZ"},
	  "Highlights": {"EarningsShare": 0, "DilutedEpsTTM": 0, "BookValue": 0, "ReturnOnEquityTTM": 0.2},
	  "Earnings": {"Annual": {"2022-12-31": {"date": "2022-12-31", "epsActual": 1.1}, "2023-12-31": {"date": "2023-12-31", "epsActual": 1.4}}},
	  "Financials": {"Balance_Sheet": {"yearly": {"2023-12-31": {
	    "totalAssets": "500", "totalLiab": "300", "shortTermDebt": "20", "longTermDebt": "60",
	    "commonStockSharesOutstanding": "40"
	  }}}}
	}`

	raw, err := newTestGateway(t, f).Fetch(context.Background(), common.ParseTicker("US:XYZ"))
	require.NoError(t, err)

	assert.Equal(t, 1.4, raw.EPS, "annual EPS fallback")
	assert.Equal(t, 200.0, raw.TotalEquity, "assets minus liabilities")
	assert.Equal(t, 80.0, raw.TotalDebt, "short plus long term debt")
	assert.InDelta(t, 40.0, raw.NetIncome, 1e-9, "ROE TTM times equity")
	assert.Equal(t, 5.0, raw.BookValuePerShare, "equity per share")
}

func TestGateway_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fakeServer)
		kind   models.ErrorKind
	}{
		{"not found status", func(f *fakeServer) { f.status = http.StatusNotFound }, models.KindNotFound},
		{"rate limited", func(f *fakeServer) { f.status = http.StatusTooManyRequests }, models.KindRateLimited},
		{"server error", func(f *fakeServer) { f.status = http.StatusBadGateway }, models.KindTransient},
		{"unauthorized", func(f *fakeServer) { f.status = http.StatusUnauthorized }, models.KindMalformed},
		{"invalid json", func(f *fakeServer) { f.fundamentals = `{"General": [` }, models.KindMalformed},
		{"empty payload", func(f *fakeServer) { f.fundamentals = `{}` }, models.KindNotFound},
		{"missing highlights", func(f *fakeServer) { f.fundamentals = `{"General": {"Code": "KO"}}` }, models.KindMalformed},
		{"no prices", func(f *fakeServer) { f.eod = `[]` }, models.KindMalformed},
		{"zero price", func(f *fakeServer) { f.eod = `[{"date":"2024-07-02","close":0}]` }, models.KindMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := defaultServer()
			tt.mutate(f)

			_, err := newTestGateway(t, f).Fetch(context.Background(), common.ParseTicker("US:KO"))
			require.Error(t, err)

			var callErr *models.CallError
			require.True(t, errors.As(err, &callErr))
			assert.Equal(t, tt.kind, callErr.Kind)
			assert.Equal(t, "US:KO", callErr.Ticker)
		})
	}
}

func TestGateway_TimeoutIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL), WithLogger(arbor.NewLogger()))
	gateway := NewGateway(client, 0, arbor.NewLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := gateway.Fetch(ctx, common.ParseTicker("US:KO"))
	assert.Equal(t, models.KindTransient, models.KindOf(err))
}

func TestGateway_NewsFailureIsNotFatal(t *testing.T) {
	f := defaultServer()
	f.news = `not json`

	raw, err := newTestGateway(t, f).Fetch(context.Background(), common.ParseTicker("US:KO"))
	require.NoError(t, err)
	assert.Empty(t, raw.Headlines)
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func TestGateway_ResponseCache(t *testing.T) {
	f := defaultServer()
	cache := &memoryCache{data: map[string][]byte{}}
	gateway := newTestGateway(t, f, WithCache(cache, time.Hour))
	// Pin the clock so the EOD date range, and therefore its cache key, is stable
	fixed := time.Date(2024, 7, 3, 12, 0, 0, 0, time.UTC)
	gateway.now = func() time.Time { return fixed }

	_, err := gateway.Fetch(context.Background(), common.ParseTicker("US:KO"))
	require.NoError(t, err)
	first := atomic.LoadInt32(&f.requests)
	assert.Equal(t, int32(3), first)

	_, err = gateway.Fetch(context.Background(), common.ParseTicker("US:KO"))
	require.NoError(t, err)
	assert.Equal(t, first, atomic.LoadInt32(&f.requests), "second fetch served from cache")

	for key := range cache.data {
		assert.NotContains(t, key, "test-key", "api token must not be part of cache keys")
	}
}

const wideFundamentals = `{
  "General": {"Code": "KO", "Name": "The Coca-Cola Company", "CurrencyCode": "USD"},
  "Highlights": {
    "MarketCapitalization": 270000000000, "EBITDA": 15000000000, "EarningsShare": 1.5, "BookValue": 10,
    "ProfitMargin": 0.23, "OperatingMarginTTM": 0.3, "ReturnOnAssetsTTM": 0.08,
    "RevenueTTM": 46000000000, "GrossProfitTTM": 27600000000, "WallStreetTargetPrice": 68
  },
  "Valuation": {"ForwardPE": 22.5, "PriceSalesTTM": 5.9},
  "SharesStats": {"PercentInsiders": 0.66, "ShortPercentFloat": 0.0087},
  "Technicals": {"52WeekLow": 57.9, "52WeekHigh": 73.5, "ShortRatio": 2.6},
  "AnalystRatings": {"Rating": 4.2, "TargetPrice": 71.5},
  "Financials": {
    "Balance_Sheet": {"quarterly": {"2024-06-30": {
      "totalStockholderEquity": "100", "shortLongTermDebtTotal": "50", "cashAndShortTermInvestments": "14"
    }}},
    "Cash_Flow": {"yearly": {"2023-12-31": {"totalCashFromOperatingActivities": "11.6", "freeCashFlow": "9.7"}}},
    "Income_Statement": {"yearly": {"2023-12-31": {"netIncome": "15"}}}
  }
}`

func TestGateway_FetchFundamentals(t *testing.T) {
	f := defaultServer()
	f.fundamentals = wideFundamentals
	g := newTestGateway(t, f)

	raw, err := g.Fetch(context.Background(), common.ParseTicker("US:KO"))
	require.NoError(t, err)

	got := raw.Fundamentals
	assert.InDelta(t, 270e9, got.MarketCap, 1)
	assert.InDelta(t, 22.5, got.ForwardPE, 1e-9)
	assert.InDelta(t, 5.9, got.PriceToSales, 1e-9)
	assert.InDelta(t, 46e9, got.Revenue, 1)
	assert.InDelta(t, 15e9, got.EBITDA, 1)
	assert.InDelta(t, 15.0/46.0, got.EBITDAMargin, 1e-9)
	assert.InDelta(t, 0.6, got.GrossMargin, 1e-9)
	assert.InDelta(t, 0.3, got.OperatingMargin, 1e-9)
	assert.InDelta(t, 0.23, got.NetMargin, 1e-9)
	assert.InDelta(t, 0.08, got.ROA, 1e-9)
	assert.InDelta(t, 11.6, got.OperatingCashFlow, 1e-9)
	assert.InDelta(t, 9.7, got.FreeCashFlow, 1e-9)
	assert.InDelta(t, 0.66, got.InsiderOwnership, 1e-9)
	assert.InDelta(t, 2.6, got.ShortRatio, 1e-9)
	assert.InDelta(t, 0.0087, got.ShortPercentFloat, 1e-9)
	assert.InDelta(t, 57.9, got.FiftyTwoWeekLow, 1e-9)
	assert.InDelta(t, 73.5, got.FiftyTwoWeekHigh, 1e-9)
	assert.InDelta(t, 71.5, got.TargetMeanPrice, 1e-9, "analyst target wins over the highlight")
	assert.InDelta(t, 14.0, got.TotalCash, 1e-9)
	assert.InDelta(t, 15.0, got.NetIncome, 1e-9)
	assert.InDelta(t, 50.0, got.TotalDebt, 1e-9)
	assert.InDelta(t, 100.0, got.TotalEquity, 1e-9)
}

func TestBuildFundamentals_Fallbacks(t *testing.T) {
	f := &FundamentalsResponse{
		General:    &GeneralInfo{Code: "KO"},
		Highlights: &Highlights{WallStreetTargetPrice: 68, GrossProfitTTM: 10},
		Technicals: &Technicals{ShortPercent: 0.02},
		Financials: &Financials{CashFlow: &FinancialStatement{Yearly: map[string]map[string]interface{}{
			"2023-12-31": {"totalCashFromOperatingActivities": "12", "capitalExpenditures": "-2"},
		}}},
	}

	got := buildFundamentals(f, &models.RawFinancials{}, nil)

	assert.InDelta(t, 68.0, got.TargetMeanPrice, 1e-9)
	assert.InDelta(t, 0.02, got.ShortPercentFloat, 1e-9)
	assert.InDelta(t, 10.0, got.FreeCashFlow, 1e-9, "operating cash flow less capex")
	assert.Zero(t, got.GrossMargin, "no revenue, no margin")
	assert.Zero(t, got.TotalCash)
}
