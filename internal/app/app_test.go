package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/output"
	"github.com/ternarybob/valuescreen/internal/storage/badger"
)

// eodhdStub serves fundamentals that fail the P/E screen so no insight is generated
func eodhdStub(t *testing.T, requests *int32) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requests, 1)
		switch {
		case strings.HasPrefix(r.URL.Path, "/fundamentals/"):
			code := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/fundamentals/"), ".US")
			fmt.Fprintf(w, `{
			  "General": {"Code": %q, "Name": "%s Corp"},
			  "Highlights": {"EarningsShare": 0.8, "BookValue": 10},
			  "Financials": {
			    "Balance_Sheet": {"quarterly": {"2024-06-30": {"totalStockholderEquity": "100", "shortLongTermDebtTotal": "50"}}},
			    "Income_Statement": {"yearly": {"2023-12-31": {"netIncome": "15"}}}
			  }
			}`, code, code)
		case strings.HasPrefix(r.URL.Path, "/eod/"):
			_, _ = w.Write([]byte(`[{"date":"2024-07-02","close":12}]`))
		case r.URL.Path == "/news":
			_, _ = w.Write([]byte(`[]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server.URL
}

func testConfig(t *testing.T, baseURL string) *common.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := common.NewDefaultConfig()
	cfg.EODHD.APIKey = "test-key"
	cfg.EODHD.BaseURL = baseURL
	cfg.EODHD.RateLimit = 100
	cfg.LLM.DefaultProvider = common.LLMProviderGemini
	cfg.Gemini.APIKey = "test-key"
	cfg.Run.RetryBackoffBase = "1ms"
	cfg.Run.RetryBackoffMax = "2ms"
	cfg.Storage.Badger.Path = filepath.Join(dir, "data")
	cfg.Output.Path = filepath.Join(dir, "stock_analysis.csv")
	cfg.Output.ReportPath = filepath.Join(dir, "report.md")
	return cfg
}

func TestApp_RunOnce(t *testing.T) {
	var requests int32
	cfg := testConfig(t, eodhdStub(t, &requests))

	a, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	defer a.Close()

	tickers := common.ParseTickers([]string{"US:KO", "US:PEP"})
	summary, err := a.RunOnce(context.Background(), tickers, RunOptions{})
	require.NoError(t, err)

	assert.True(t, summary.Completed)
	assert.Equal(t, 2, summary.FailedScreen)

	rows, err := output.ReadCSV(cfg.Output.Path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "US:KO", rows[0].Key)
	assert.InDelta(t, 15.0, rows[0].Evaluation.PE.Value, 1e-9)

	for _, name := range []string{"report.md", "report.html"} {
		_, err := os.Stat(filepath.Join(filepath.Dir(cfg.Output.ReportPath), name))
		assert.NoError(t, err, name)
	}

	// A rerun resumes everything from the checkpoint
	before := atomic.LoadInt32(&requests)
	summary, err = a.RunOnce(context.Background(), tickers, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.SkippedResumed)
	assert.Equal(t, before, atomic.LoadInt32(&requests))
}

func TestApp_ResetOnCompleteStartsFresh(t *testing.T) {
	var requests int32
	cfg := testConfig(t, eodhdStub(t, &requests))
	cfg.EODHD.CacheTTL = "0"
	ctx := context.Background()
	tickers := common.ParseTickers([]string{"US:KO", "US:PEP"})

	// Two CLI invocations: seed, then run with clear_on_complete
	for i := 1; i <= 2; i++ {
		a, err := New(cfg, arbor.NewLogger())
		require.NoError(t, err)

		require.NoError(t, a.SeedFromOutput(ctx))
		before := atomic.LoadInt32(&requests)

		summary, err := a.RunOnce(ctx, tickers, RunOptions{ResetOnComplete: true})
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Processed, "invocation %d", i)
		assert.Equal(t, 0, summary.SkippedResumed, "invocation %d", i)
		assert.Greater(t, atomic.LoadInt32(&requests), before, "invocation %d", i)

		n, err := a.StorageManager.CheckpointStorage().Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n, "checkpoint cleared after a completed run")

		marker, err := a.StorageManager.CheckpointStorage().LastCompletion(ctx)
		require.NoError(t, err)
		require.NotNil(t, marker)
		assert.Equal(t, summary.RunID, marker.RunID)

		require.NoError(t, a.Close())
	}

	rows, err := output.ReadCSV(cfg.Output.Path)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestApp_SeedFromOutput(t *testing.T) {
	var requests int32
	cfg := testConfig(t, eodhdStub(t, &requests))
	ctx := context.Background()
	tickers := common.ParseTickers([]string{"US:KO", "US:PEP"})

	a, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	_, err = a.RunOnce(ctx, tickers, RunOptions{})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	// A new checkpoint store next to an existing CSV, as after an upgrade
	cfg.Storage.Badger.Path = filepath.Join(t.TempDir(), "data")
	a, err = New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.SeedFromOutput(ctx))
	n, err := a.StorageManager.CheckpointStorage().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	before := atomic.LoadInt32(&requests)
	summary, err := a.RunOnce(ctx, tickers, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.SkippedResumed)
	assert.Equal(t, before, atomic.LoadInt32(&requests))
}

func TestApp_DryRun(t *testing.T) {
	var requests int32
	cfg := testConfig(t, eodhdStub(t, &requests))

	a, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	defer a.Close()

	summary, err := a.RunOnce(context.Background(), common.ParseTickers([]string{"KO"}), RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Pending())
	assert.Equal(t, int32(0), atomic.LoadInt32(&requests))

	_, err = os.Stat(cfg.Output.Path)
	assert.True(t, os.IsNotExist(err), "dry run writes no output")
}

func TestApp_PrepareDryRunLeavesCheckpointAlone(t *testing.T) {
	var requests int32
	cfg := testConfig(t, eodhdStub(t, &requests))
	ctx := context.Background()

	a, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	_, err = a.RunOnce(ctx, common.ParseTickers([]string{"US:KO", "US:PEP"}), RunOptions{})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	cfg.Storage.Badger.Path = filepath.Join(t.TempDir(), "data")
	a, err = New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	defer a.Close()

	tests := []struct {
		name string
		opts RunOptions
		want int
	}{
		{"dry run does not seed", RunOptions{DryRun: true}, 0},
		{"dry run ignores fresh and clear-cache", RunOptions{DryRun: true, Fresh: true, ClearCache: true}, 0},
		{"normal run seeds", RunOptions{}, 2},
		{"later dry run keeps the seeded rows", RunOptions{DryRun: true, Fresh: true}, 2},
		{"fresh run resets", RunOptions{Fresh: true}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, a.Prepare(ctx, tt.opts))
			n, err := a.StorageManager.CheckpointStorage().Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestApp_PrepareClearCache(t *testing.T) {
	var requests int32
	cfg := testConfig(t, eodhdStub(t, &requests))
	ctx := context.Background()
	tickers := common.ParseTickers([]string{"US:KO"})

	a, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.RunOnce(ctx, tickers, RunOptions{})
	require.NoError(t, err)
	first := atomic.LoadInt32(&requests)
	require.Positive(t, first)

	// Fresh with a warm cache screens again without touching EODHD
	require.NoError(t, a.Prepare(ctx, RunOptions{Fresh: true}))
	_, err = a.RunOnce(ctx, tickers, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, first, atomic.LoadInt32(&requests))

	require.NoError(t, a.StorageManager.ResponseCache(badger.CacheNamespaceLLM).Set(ctx, "prompt", []byte("answer"), 0))
	require.NoError(t, a.Prepare(ctx, RunOptions{Fresh: true, ClearCache: true}))
	_, ok, err := a.StorageManager.ResponseCache(badger.CacheNamespaceLLM).Get(ctx, "prompt")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = a.RunOnce(ctx, tickers, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2*first, atomic.LoadInt32(&requests))
}

func TestNew_RequiresLLMKey(t *testing.T) {
	var requests int32
	cfg := testConfig(t, eodhdStub(t, &requests))
	cfg.Gemini.APIKey = ""

	_, err := New(cfg, arbor.NewLogger())
	require.Error(t, err)
}
