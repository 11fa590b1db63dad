package finance

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatest_InvertsToTRYPerUnit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest", r.URL.Path)
		assert.Equal(t, "TRY", r.URL.Query().Get("base"))
		assert.Equal(t, "USD,EUR", r.URL.Query().Get("symbols"))

		// Frankfurter with base=TRY quotes units-per-TRY.
		_, _ = w.Write([]byte(`{"date":"2026-02-21","rates":{"USD":0.025,"EUR":0.023}}`))
	}))
	defer srv.Close()

	client := NewRatesClient(srv.URL, http.DefaultClient, slog.Default())

	rates, err := client.Latest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2026-02-21", rates.Date)
	assert.True(t, rates.USD.Equal(decimal.RequireFromString("40")), "1/0.025, got %s", rates.USD)
	assert.True(t, rates.EUR.Equal(decimal.RequireFromString("43.4783")), "1/0.023 at 4dp, got %s", rates.EUR)
}

func TestLatest_ServesCacheWithinTTL(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"date":"2026-02-21","rates":{"USD":0.025,"EUR":0.023}}`))
	}))
	defer srv.Close()

	client := NewRatesClient(srv.URL, http.DefaultClient, slog.Default())

	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	ctx := context.Background()

	_, err := client.Latest(ctx)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)

	_, err = client.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "second call within TTL served from cache")

	now = now.Add(4 * time.Minute)

	_, err = client.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "stale cache refetched")
}

func TestLatest_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http error status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
		},
		{
			name: "missing symbol",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"date":"2026-02-21","rates":{"USD":0.025}}`))
			},
		},
		{
			name: "zero rate",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"date":"2026-02-21","rates":{"USD":0,"EUR":0.023}}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client := NewRatesClient(srv.URL, http.DefaultClient, slog.Default())

			_, err := client.Latest(context.Background())
			assert.Error(t, err)
		})
	}
}
