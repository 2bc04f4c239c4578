// Package ipea fetches macroeconomic time series from the IPEA open data
// API (IBOVESPA index points, SELIC annualized rates, monthly IPCA).
package ipea

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"carteira/internal/domain"
	"carteira/internal/gather"
	"carteira/internal/marketdata"
	"carteira/internal/store"
	"carteira/internal/util"
)

// ---------------------------------------------------------------------------
// Compile-time interface check
// ---------------------------------------------------------------------------

var _ gather.Gatherer = (*BenchmarkGatherer)(nil)

// DefaultBaseURL is the public IPEA OData endpoint.
const DefaultBaseURL = "http://www.ipeadata.gov.br/api/odata4"

// Series codes for the benchmarks the engine consumes.
const (
	SeriesIBOV  = "GM366_IBVSP366"
	SeriesSelic = "BM366_TJOVER366"
	SeriesIPCA  = "PRECOS12_IPCAG12"
)

// ---------------------------------------------------------------------------
// Client — low-level HTTP client for the IPEA OData API.
// ---------------------------------------------------------------------------

// Client retrieves raw time series from the IPEA API with rate limiting and
// retries.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *util.RateLimiter
	maxAttempts int
	log         *slog.Logger
}

// NewClient creates a Client against baseURL, limited to rateLimitPerMin
// requests per minute with up to maxAttempts tries per request.
func NewClient(baseURL string, rateLimitPerMin, maxAttempts int, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     util.NewRateLimiter(rateLimitPerMin),
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// odataResponse mirrors the IPEA OData payload envelope.
type odataResponse struct {
	Value []odataObservation `json:"value"`
}

type odataObservation struct {
	Date  string   `json:"VALDATA"`
	Value *float64 `json:"VALVALOR"`
}

// FetchSeries retrieves the observations of one series code, ordered by
// date, with null observations dropped. Dates are normalized to midnight
// UTC.
func (c *Client) FetchSeries(ctx context.Context, code string) ([]domain.SeriesPoint, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/ValoresSerie(SERCODIGO='%s')", c.baseURL, code)

	var payload odataResponse
	err := util.Retry(ctx, c.maxAttempts, time.Second, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("ipea: series %s: unexpected status %d", code, resp.StatusCode)
		}
		payload = odataResponse{}
		return json.NewDecoder(resp.Body).Decode(&payload)
	})
	if err != nil {
		return nil, fmt.Errorf("fetching series %s: %w", code, err)
	}

	points := make([]domain.SeriesPoint, 0, len(payload.Value))
	for _, obs := range payload.Value {
		if obs.Value == nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339, obs.Date)
		if err != nil {
			c.log.Warn("skipping observation with bad date", "series", code, "date", obs.Date)
			continue
		}
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		points = append(points, domain.SeriesPoint{Date: day, Value: *obs.Value})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}

// ---------------------------------------------------------------------------
// BenchmarkGatherer — fetches and persists the benchmark series set.
// ---------------------------------------------------------------------------

// BenchmarkGatherer pulls the IBOV, SELIC, and IPCA series and persists them
// through a BenchmarkStore. SELIC rates arrive as whole percents per year
// and are stored as decimals; IPCA stays in monthly percent form.
type BenchmarkGatherer struct {
	client *Client
	store  store.BenchmarkStore
	log    *slog.Logger
}

// NewBenchmarkGatherer creates a BenchmarkGatherer with the given client and
// store.
func NewBenchmarkGatherer(client *Client, st store.BenchmarkStore, log *slog.Logger) *BenchmarkGatherer {
	return &BenchmarkGatherer{client: client, store: st, log: log}
}

// Name returns the gatherer identifier.
func (g *BenchmarkGatherer) Name() string { return "ipea-benchmarks" }

// Run fetches every benchmark series once. A failed series is logged and
// skipped; Run fails only when no series could be stored.
func (g *BenchmarkGatherer) Run(ctx context.Context) error {
	specs := []struct {
		code  string
		name  string
		scale float64
	}{
		{SeriesIBOV, marketdata.BenchmarkIBOV, 1},
		{SeriesSelic, marketdata.BenchmarkSelic, 1.0 / 100},
		{SeriesIPCA, marketdata.BenchmarkIPCA, 1},
	}

	stored := 0
	for _, spec := range specs {
		points, err := g.client.FetchSeries(ctx, spec.code)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.log.Warn("failed to fetch benchmark series",
				"series", spec.code, "name", spec.name, "error", err)
			continue
		}

		if spec.scale != 1 {
			for i := range points {
				points[i].Value *= spec.scale
			}
		}

		if err := g.store.SaveSeries(ctx, spec.name, points); err != nil {
			return fmt.Errorf("saving series %s: %w", spec.name, err)
		}
		g.log.Info("stored benchmark series", "name", spec.name, "points", len(points))
		stored++
	}

	if stored == 0 {
		return fmt.Errorf("ipea: no benchmark series could be fetched")
	}
	return nil
}
