// Package universe resolves the list of symbols a run should cover.
package universe

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"MarketVault/internal/model"
)

// Load reads one "market:code" per line from path, then appends extra. Blank lines
// and text after '#' are ignored; duplicates keep their first position. An empty
// path reads nothing from disk.
func Load(path string, extra []string) ([]model.Symbol, error) {
	var raw []string
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open universe: %w", err)
		}
		defer f.Close()

		sc := bufio.NewScanner(f)
		line := 0
		for sc.Scan() {
			line++
			text := sc.Text()
			if i := strings.IndexByte(text, '#'); i >= 0 {
				text = text[:i]
			}
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			if _, err := model.ParseSymbol(text); err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, line, err)
			}
			raw = append(raw, text)
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read universe: %w", err)
		}
	}
	raw = append(raw, extra...)
	return Parse(raw)
}

// Parse converts textual symbols, dropping duplicates.
func Parse(items []string) ([]model.Symbol, error) {
	seen := make(map[model.Symbol]bool, len(items))
	out := make([]model.Symbol, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		sym, err := model.ParseSymbol(item)
		if err != nil {
			return nil, err
		}
		if seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out, nil
}

// Filter keeps the symbols of market; an empty market keeps everything.
func Filter(syms []model.Symbol, market model.Market) []model.Symbol {
	if market == "" {
		return syms
	}
	out := make([]model.Symbol, 0, len(syms))
	for _, sym := range syms {
		if sym.Market == market {
			out = append(out, sym)
		}
	}
	return out
}
