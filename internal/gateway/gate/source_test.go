package gate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpscope/internal/gateway/exchange"
	"pumpscope/internal/trade"
)

func newTestSource(t *testing.T, h http.HandlerFunc) *Source {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	src, err := New(exchange.Config{RESTBaseURL: srv.URL, HTTPTimeout: 200 * time.Millisecond})
	require.NoError(t, err)
	return src
}

func TestFetchTradesCursorModeSortsAscending(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/spot/trades", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "XYZ_BTC", q.Get("currency_pair"))
		assert.Equal(t, "1000", q.Get("limit"))
		assert.Equal(t, "1000", q.Get("last_id"))
		assert.Equal(t, "false", q.Get("reverse"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"1002","create_time":"1619892060","create_time_ms":"1619892060000.456","currency_pair":"XYZ_BTC","side":"sell","amount":"10","price":"0.0000016"},
			{"id":"1001","create_time":"1619892000","create_time_ms":"1619892000000.123","currency_pair":"XYZ_BTC","side":"buy","amount":"200","price":"0.0000015"}
		]`))
	})

	page, err := src.FetchTrades(context.Background(), exchange.Cursor("XYZ/BTC", 1000, 1001))
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(1001), *page[0].ID)
	assert.Equal(t, int64(1002), *page[1].ID)
	assert.Equal(t, int64(1619892000000), page[0].Timestamp)
	assert.Equal(t, trade.SideBuy, page[0].Side)
	assert.Equal(t, trade.SideSell, page[1].Side)
	assert.Equal(t, "XYZ/BTC", page[1].Symbol)
}

func TestFetchTradesRecentModeOmitsCursor(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("last_id"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	})
	page, err := src.FetchTrades(context.Background(), exchange.Recent("XYZ/BTC", 1000))
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestFetchTradesInvalidPair(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"label":"INVALID_CURRENCY_PAIR","message":"Invalid currency pair NOPE_BTC"}`))
	})
	_, err := src.FetchTrades(context.Background(), exchange.Recent("NOPE/BTC", 1000))
	assert.ErrorIs(t, err, exchange.ErrSymbolNotFound)
}

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		name   string
		ms     string
		sec    string
		expect int64
	}{
		{"fractional millis", "1619892000000.789", "", 1619892000000},
		{"seconds in ms field", "1619892000.5", "", 1619892000500},
		{"fallback to seconds", "", "1619892000", 1619892000000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseTimestamp(tc.ms, tc.sec)
			require.NoError(t, err)
			assert.Equal(t, tc.expect, got)
		})
	}
	_, err := parseTimestamp("", "bad")
	assert.Error(t, err)
}
