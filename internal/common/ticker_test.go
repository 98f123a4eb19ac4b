package common

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseTicker(t *testing.T) {
	originalDefault := DefaultExchange
	DefaultExchange = "US"
	defer func() { DefaultExchange = originalDefault }()

	tests := []struct {
		input        string
		wantExchange string
		wantCode     string
		wantString   string
		wantEODHD    string
	}{
		// Exchange-qualified format with colon separator
		{"NYSE:KO", "NYSE", "KO", "NYSE:KO", "KO.US"},
		{"NASDAQ:MSFT", "NASDAQ", "MSFT", "NASDAQ:MSFT", "MSFT.US"},
		{"ASX:GNP", "ASX", "GNP", "ASX:GNP", "GNP.AU"},

		// Known exchange prefix with dot separator
		{"NYSE.KO", "NYSE", "KO", "NYSE:KO", "KO.US"},
		{"AMEX.IMO", "AMEX", "IMO", "AMEX:IMO", "IMO.US"},

		// EODHD symbols
		{"AAPL.US", "US", "AAPL", "US:AAPL", "AAPL.US"},
		{"CBA.AU", "ASX", "CBA", "ASX:CBA", "CBA.AU"},

		// Bare codes use the default exchange
		{"AAPL", "US", "AAPL", "US:AAPL", "AAPL.US"},
		{"brk.b", "US", "BRK.B", "US:BRK.B", "BRK.B.US"},

		// Case and whitespace normalization
		{"  nyse:ko  ", "NYSE", "KO", "NYSE:KO", "KO.US"},

		// Empty input
		{"", "", "", "", ""},
		{"NYSE:", "", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseTicker(tt.input)

			if result.Exchange != tt.wantExchange {
				t.Errorf("Exchange = %q, want %q", result.Exchange, tt.wantExchange)
			}
			if result.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", result.Code, tt.wantCode)
			}
			if result.String() != tt.wantString {
				t.Errorf("String() = %q, want %q", result.String(), tt.wantString)
			}
			if result.EODHDSymbol() != tt.wantEODHD {
				t.Errorf("EODHDSymbol() = %q, want %q", result.EODHDSymbol(), tt.wantEODHD)
			}
		})
	}
}

func TestParseTickers_DedupesInOrder(t *testing.T) {
	originalDefault := DefaultExchange
	DefaultExchange = "US"
	defer func() { DefaultExchange = originalDefault }()

	result := ParseTickers([]string{"AAPL", "", "KO", "aapl", "AAPL.US", "MSFT"})

	want := []string{"US:AAPL", "US:KO", "US:MSFT"}
	if len(result) != len(want) {
		t.Fatalf("got %d tickers, want %d", len(result), len(want))
	}
	for i, w := range want {
		if result[i].String() != w {
			t.Errorf("result[%d] = %q, want %q", i, result[i].String(), w)
		}
	}
}

func TestLoadTickers_JSONAndYAML(t *testing.T) {
	originalDefault := DefaultExchange
	DefaultExchange = "US"
	defer func() { DefaultExchange = originalDefault }()

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "nasdaq_tickers.json")
	yamlPath := filepath.Join(dir, "nyse_tickers.yaml")

	if err := os.WriteFile(jsonPath, []byte(`["AAPL", "MSFT"]`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yamlPath, []byte("- KO\n- MSFT\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tickers, err := LoadTickers([]string{jsonPath, yamlPath}, []string{"PFE"})
	if err != nil {
		t.Fatalf("LoadTickers() error = %v", err)
	}

	want := []string{"US:AAPL", "US:MSFT", "US:KO", "US:PFE"}
	if len(tickers) != len(want) {
		t.Fatalf("got %d tickers, want %d", len(tickers), len(want))
	}
	for i, w := range want {
		if tickers[i].String() != w {
			t.Errorf("tickers[%d] = %q, want %q", i, tickers[i].String(), w)
		}
	}
}

func TestMergeTickerFiles(t *testing.T) {
	dir := t.TempDir()
	amex := filepath.Join(dir, "amex_tickers.json")
	nyse := filepath.Join(dir, "nyse_tickers.json")
	out := filepath.Join(dir, "stock_tickers.json")

	if err := os.WriteFile(amex, []byte(`["imo", "BTG"]`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(nyse, []byte(`["KO", "IMO"]`), 0644); err != nil {
		t.Fatal(err)
	}

	n, err := MergeTickerFiles(out, amex, nyse)
	if err != nil {
		t.Fatalf("MergeTickerFiles() error = %v", err)
	}
	if n != 3 {
		t.Errorf("merged = %d, want 3", n)
	}

	symbols, err := LoadTickerFile(out)
	if err != nil {
		t.Fatalf("LoadTickerFile() error = %v", err)
	}
	want := []string{"IMO", "BTG", "KO"}
	for i, w := range want {
		if symbols[i] != w {
			t.Errorf("symbols[%d] = %q, want %q", i, symbols[i], w)
		}
	}
}

func TestLoadTickerFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"not": "a list"}`), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadTickerFile(path); err == nil {
		t.Error("expected parse error for non-array JSON")
	}
}
