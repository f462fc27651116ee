package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"MarketVault/internal/model"
)

// VsTraderFetcher implements Fetcher using the vstrader REST API.
type VsTraderFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	// Locations maps each market to its exchange timezone; bar timestamps that are
	// not UTC midnight are read as instants in that zone.
	Locations map[model.Market]*time.Location
}

// NewVsTraderFetcher creates a new fetcher with optional proxy support.
func NewVsTraderFetcher(baseURL, apiKey, proxyURL string) *VsTraderFetcher {
	return &VsTraderFetcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  newHTTPClient(proxyURL),
		Locations: map[model.Market]*time.Location{
			model.MarketUS: mustLocation("America/New_York"),
			model.MarketHK: mustLocation("Asia/Hong_Kong"),
			model.MarketCN: mustLocation("Asia/Shanghai"),
		},
	}
}

func (f *VsTraderFetcher) Name() string { return "vstrader" }

// vsBar is the expected JSON shape from the vstrader API. Prices may be null.
type vsBar struct {
	Timestamp int64            `json:"timestamp"`
	Open      *decimal.Decimal `json:"open"`
	High      *decimal.Decimal `json:"high"`
	Low       *decimal.Decimal `json:"low"`
	Close     *decimal.Decimal `json:"close"`
	Volume    *int64           `json:"volume"`
}

func decimalPrice(d *decimal.Decimal) float64 {
	if d == nil {
		return math.NaN()
	}
	return d.Round(4).InexactFloat64()
}

func (f *VsTraderFetcher) FetchBars(ctx context.Context, sym model.Symbol, req FetchRequest) (model.Series, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("symbol", sym.String())
	if !req.Start.IsZero() {
		q.Set("start", model.DateOf(req.Start).Format(time.DateOnly))
	} else {
		q.Set("days", fmt.Sprint(int(req.Lookback.Hours()/24)))
	}
	endpoint := fmt.Sprintf("%s/api/v1/bars/daily?%s", f.BaseURL, q.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if f.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fetch bars: status %d, body: %s", resp.StatusCode, truncate(body))
	}
	var vsBars []vsBar
	if err := json.NewDecoder(resp.Body).Decode(&vsBars); err != nil {
		return nil, fmt.Errorf("decode bars: %w", err)
	}
	bars := make(model.Series, len(vsBars))
	for i, vb := range vsBars {
		vol := int64(-1)
		if vb.Volume != nil {
			vol = *vb.Volume
		}
		bars[i] = model.Bar{
			Date:   f.barDate(sym.Market, vb.Timestamp),
			Open:   decimalPrice(vb.Open),
			High:   decimalPrice(vb.High),
			Low:    decimalPrice(vb.Low),
			Close:  decimalPrice(vb.Close),
			Volume: vol,
		}
	}
	return bars, nil
}

// barDate maps a bar timestamp to its trading date. UTC-midnight stamps already name
// the date; anything else is an exchange-local midnight or session time.
func (f *VsTraderFetcher) barDate(m model.Market, ts int64) time.Time {
	t := time.Unix(ts, 0).UTC()
	if ts%86400 == 0 {
		return model.DateOf(t)
	}
	if loc := f.Locations[m]; loc != nil {
		t = t.In(loc)
	}
	return model.DateOf(t)
}

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("load timezone %s: %v", name, err))
	}
	return loc
}
