package collector

import (
	"context"
	"hash/fnv"
	"net/http"
	"net/url"
	"strings"
	"time"

	"MarketVault/internal/model"
)

// MockBaseURL selects the MockFetcher in configuration.
const MockBaseURL = "mock"

// NewFetcher picks the data source: the mock for "mock", vstrader for any other base URL,
// Yahoo when no base URL is configured.
func NewFetcher(baseURL, apiKey, proxyURL string) Fetcher {
	switch strings.TrimSpace(baseURL) {
	case "":
		return NewYahooFetcher(proxyURL)
	case MockBaseURL:
		return &MockFetcher{}
	default:
		return NewVsTraderFetcher(baseURL, apiKey, proxyURL)
	}
}

func newHTTPClient(proxyURL string) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}
}

// MockFetcher returns deterministic weekday bars for development and testing.
type MockFetcher struct {
	// Now overrides the clock; zero means time.Now.
	Now func() time.Time
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchBars(ctx context.Context, sym model.Symbol, req FetchRequest) (model.Series, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now()
	if m.Now != nil {
		now = m.Now()
	}
	return generateMockBars(sym, req.From(now), model.DateOf(now)), nil
}

// generateMockBars produces one bar per weekday in [from, to]; prices depend only on
// the symbol and the date so repeated fetches agree.
func generateMockBars(sym model.Symbol, from, to time.Time) model.Series {
	h := fnv.New32a()
	h.Write([]byte(sym.String()))
	basePrice := 20 + float64(h.Sum32()%480)

	var bars model.Series
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		i := float64(d.Unix()/86400%97) - 48
		p := basePrice * (1 + i*0.001)
		bars = append(bars, model.Bar{
			Date:   d,
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		})
	}
	return bars
}
