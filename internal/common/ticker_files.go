package common

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadTickerFile reads a ticker list. JSON files hold an array of strings;
// .yaml/.yml files hold a sequence of strings.
func LoadTickerFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ticker file %s: %w", path, err)
	}

	var symbols []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &symbols)
	default:
		err = json.Unmarshal(data, &symbols)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse ticker file %s: %w", path, err)
	}

	return symbols, nil
}

// LoadTickers merges ticker files and inline symbols into one deduplicated list.
// Files are read in order, inline symbols are appended last.
func LoadTickers(paths []string, inline []string) ([]Ticker, error) {
	var raw []string
	for _, path := range paths {
		if path == "" {
			continue
		}
		symbols, err := LoadTickerFile(path)
		if err != nil {
			return nil, err
		}
		raw = append(raw, symbols...)
	}
	raw = append(raw, inline...)

	return ParseTickers(raw), nil
}

// MergeTickerFiles combines exchange lists (e.g. amex, nasdaq, nyse) into a single
// deduplicated JSON array at out. Returns the number of symbols written.
func MergeTickerFiles(out string, paths ...string) (int, error) {
	seen := make(map[string]struct{})
	merged := make([]string, 0)

	for _, path := range paths {
		symbols, err := LoadTickerFile(path)
		if err != nil {
			return 0, err
		}
		for _, s := range symbols {
			s = strings.ToUpper(strings.TrimSpace(s))
			if s == "" {
				continue
			}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			merged = append(merged, s)
		}
	}

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to encode ticker list: %w", err)
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return 0, fmt.Errorf("failed to write ticker file %s: %w", out, err)
	}

	return len(merged), nil
}
