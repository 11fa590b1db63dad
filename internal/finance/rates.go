package finance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	stdsync "sync"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultRatesBaseURL is the public Frankfurter endpoint.
const DefaultRatesBaseURL = "https://api.frankfurter.app"

// ratesTimeout bounds the exchange rate request: the caller renders a
// dashboard and must fail fast rather than hang on a slow upstream.
const ratesTimeout = 5 * time.Second

// ratesTTL is how long a fetched rate set stays fresh.
const ratesTTL = 5 * time.Minute

// Rates holds TRY-per-unit quotes for the supported foreign currencies.
type Rates struct {
	Date string          `json:"date"`
	USD  decimal.Decimal `json:"USD"`
	EUR  decimal.Decimal `json:"EUR"`
}

// RatesClient fetches exchange rates with an in-process freshness cache.
type RatesClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu        stdsync.Mutex
	cached    *Rates
	fetchedAt time.Time
}

// NewRatesClient creates a RatesClient. httpClient may be nil.
func NewRatesClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *RatesClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &RatesClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// frankfurterResponse mirrors the upstream latest-rates payload. With
// base=TRY the quotes are units-per-TRY and must be inverted.
type frankfurterResponse struct {
	Date  string                     `json:"date"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// Latest returns TRY-per-unit rates for USD and EUR, serving a cached
// result when it is fresher than five minutes.
func (c *RatesClient) Latest(ctx context.Context) (*Rates, error) {
	c.mu.Lock()
	if c.cached != nil && c.now().Sub(c.fetchedAt) < ratesTTL {
		cached := *c.cached
		c.mu.Unlock()

		return &cached, nil
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, ratesTimeout)
	defer cancel()

	url := c.baseURL + "/latest?base=TRY&symbols=USD,EUR"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("finance: creating rates request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("finance: fetching rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("finance: rates endpoint returned HTTP %d", resp.StatusCode)
	}

	var fr frankfurterResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("finance: decoding rates: %w", err)
	}

	rates := &Rates{Date: fr.Date}

	if rates.USD, err = invertRate(fr.Rates, "USD"); err != nil {
		return nil, err
	}

	if rates.EUR, err = invertRate(fr.Rates, "EUR"); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cached = rates
	c.fetchedAt = c.now()
	c.mu.Unlock()

	c.logger.Debug("fetched exchange rates",
		slog.String("date", rates.Date),
		slog.String("usd", rates.USD.String()),
		slog.String("eur", rates.EUR.String()),
	)

	out := *rates

	return &out, nil
}

// invertRate converts a units-per-TRY quote to TRY-per-unit.
func invertRate(rates map[string]decimal.Decimal, symbol string) (decimal.Decimal, error) {
	r, ok := rates[symbol]
	if !ok || r.IsZero() {
		return decimal.Decimal{}, fmt.Errorf("finance: missing %s rate in response", symbol)
	}

	// 4 decimal places is plenty for a TRY display rate.
	return decimal.NewFromInt(1).DivRound(r, 4), nil
}
