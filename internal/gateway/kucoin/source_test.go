package kucoin

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kucoin "github.com/Kucoin/kucoin-go-sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpscope/internal/gateway/exchange"
	"pumpscope/internal/trade"
)

func stubSource(fn historiesFunc) *Source {
	return &Source{cfg: exchange.Config{HTTPTimeout: 100 * time.Millisecond}, histories: fn}
}

func okResponse(t *testing.T, rows string) *kucoin.ApiResponse {
	t.Helper()
	return &kucoin.ApiResponse{Code: kucoin.ApiSuccess, RawData: json.RawMessage(rows)}
}

const page = `[
	{"sequence":"1502","price":"0.0000016","size":"3","side":"sell","time":1619892060000000000},
	{"sequence":"1500","price":"0.0000015","size":"1","side":"buy","time":1619892000000000000},
	{"sequence":"1501","price":"0.0000015","size":"2","side":"buy","time":1619892030000000000}
]`

func TestFetchTradesRecentSortsAscending(t *testing.T) {
	var gotSymbol string
	src := stubSource(func(symbol string) (*kucoin.ApiResponse, error) {
		gotSymbol = symbol
		return okResponse(t, page), nil
	})
	out, err := src.FetchTrades(context.Background(), exchange.Recent("XYZ/BTC", 1000))
	require.NoError(t, err)
	assert.Equal(t, "XYZ-BTC", gotSymbol)
	require.Len(t, out, 3)
	assert.Equal(t, int64(1500), *out[0].ID)
	assert.Equal(t, int64(1502), *out[2].ID)
	assert.Equal(t, int64(1619892000000), out[0].Timestamp)
	assert.Equal(t, trade.SideSell, out[2].Side)
}

func TestFetchTradesCursorFiltersRecentPage(t *testing.T) {
	src := stubSource(func(string) (*kucoin.ApiResponse, error) {
		return okResponse(t, page), nil
	})
	out, err := src.FetchTrades(context.Background(), exchange.Cursor("XYZ/BTC", 1000, 1501))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(1501), *out[0].ID)

	out, err = src.FetchTrades(context.Background(), exchange.Cursor("XYZ/BTC", 1000, 500))
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestFetchTradesUnknownSymbol(t *testing.T) {
	src := stubSource(func(string) (*kucoin.ApiResponse, error) {
		return &kucoin.ApiResponse{Code: "900001", Message: "symbol not exists"}, nil
	})
	_, err := src.FetchTrades(context.Background(), exchange.Recent("NOPE/BTC", 1000))
	assert.ErrorIs(t, err, exchange.ErrSymbolNotFound)
}

func TestFetchTradesTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	src := stubSource(func(string) (*kucoin.ApiResponse, error) {
		<-release
		return nil, errors.New("late")
	})
	_, err := src.FetchTrades(context.Background(), exchange.Recent("XYZ/BTC", 1000))
	assert.ErrorIs(t, err, exchange.ErrTimeout)
}

func TestFetchTradesCancelled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	src := stubSource(func(string) (*kucoin.ApiResponse, error) {
		<-release
		return nil, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.FetchTrades(ctx, exchange.Recent("XYZ/BTC", 1000))
	assert.ErrorIs(t, err, context.Canceled)
}
