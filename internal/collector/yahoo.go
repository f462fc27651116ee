package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"MarketVault/internal/model"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// YahooFetcher implements Fetcher using the Yahoo Finance chart API.
type YahooFetcher struct {
	BaseURL string
	Client  *http.Client
	now     func() time.Time
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(proxyURL string) *YahooFetcher {
	return &YahooFetcher{
		BaseURL: yahooBaseURL,
		Client:  newHTTPClient(proxyURL),
		now:     time.Now,
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

// YahooTicker maps a symbol onto Yahoo's ticker convention.
func YahooTicker(sym model.Symbol) string {
	switch sym.Market {
	case model.MarketHK:
		code := strings.TrimLeft(sym.Code, "0")
		for len(code) < 4 {
			code = "0" + code
		}
		return code + ".HK"
	case model.MarketCN:
		if strings.HasPrefix(sym.Code, "6") || strings.HasPrefix(sym.Code, "9") {
			return sym.Code + ".SS"
		}
		return sym.Code + ".SZ"
	default:
		return strings.ReplaceAll(sym.Code, ".", "-")
	}
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				GMTOffset int64 `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// price rounds to four decimal places; a null becomes NaN.
func price(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return decimal.NewFromFloat(*v).Round(4).InexactFloat64()
}

func volume(v *float64) int64 {
	if v == nil {
		return -1
	}
	return int64(*v)
}

func at[T any](s []T, i int) (T, bool) {
	var zero T
	if i >= len(s) {
		return zero, false
	}
	return s[i], true
}

func (f *YahooFetcher) FetchBars(ctx context.Context, sym model.Symbol, req FetchRequest) (model.Series, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := f.now()
	from := req.From(now)
	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("period1", fmt.Sprint(from.Unix()))
	q.Set("period2", fmt.Sprint(now.Unix()))
	q.Set("events", "history")
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", f.BaseURL, url.PathEscape(YahooTicker(sym)), q.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, truncate(body))
		}
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		// Yahoo answers a range with no sessions with a "No data found" error.
		if strings.Contains(strings.ToLower(chart.Chart.Error.Description), "no data found") {
			return nil, nil
		}
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, truncate(body))
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	bars := make(model.Series, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o, _ := at(quote.Open, i)
		h, _ := at(quote.High, i)
		l, _ := at(quote.Low, i)
		c, _ := at(quote.Close, i)
		if o == nil && h == nil && l == nil && c == nil {
			continue // skip null bars (holidays etc.)
		}
		v, _ := at(quote.Volume, i)
		date := model.DateOf(time.Unix(ts+result.Meta.GMTOffset, 0).UTC())
		if date.Before(from) {
			continue
		}
		bars = append(bars, model.Bar{
			Date:   date,
			Open:   price(o),
			High:   price(h),
			Low:    price(l),
			Close:  price(c),
			Volume: volume(v),
		})
	}
	return bars, nil
}

func truncate(body []byte) string {
	const limit = 256
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
