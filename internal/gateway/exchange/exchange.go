// Package exchange defines the narrow trade-history surface the backfill walker
// needs from an exchange, independent of the SDK behind it.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"pumpscope/internal/trade"
)

// MaxPageLimit is the page size used for every trades request.
const MaxPageLimit = 1000

var (
	// ErrSymbolNotFound means the trading pair is not listed on the exchange.
	ErrSymbolNotFound = errors.New("symbol not found on exchange")
	// ErrTimeout means a single request exceeded the client's timeout.
	ErrTimeout = errors.New("exchange request timed out")
)

// FetchRequest selects one page of trades. A nil FromID asks for the most
// recent page; otherwise the page starts at FromID and ascends by id.
type FetchRequest struct {
	Symbol string
	Limit  int
	FromID *int64
}

// Cursor returns a FetchRequest in cursor mode.
func Cursor(symbol string, limit int, fromID int64) FetchRequest {
	id := fromID
	return FetchRequest{Symbol: symbol, Limit: limit, FromID: &id}
}

// Recent returns a FetchRequest in most-recent mode.
func Recent(symbol string, limit int) FetchRequest {
	return FetchRequest{Symbol: symbol, Limit: limit}
}

// RawTrade is one trade as reported by an exchange. ID and Order are optional;
// callers resolve them with trade.ResolveID.
type RawTrade struct {
	Symbol    string
	ID        *int64
	Order     *int64
	Timestamp int64
	Datetime  string
	Side      trade.Side
	Price     decimal.Decimal
	Amount    decimal.Decimal
}

// TradeFetcher is implemented by every exchange adapter. Pages are returned in
// ascending id order. Implementations map their SDK failures onto
// ErrSymbolNotFound and ErrTimeout so callers can tell them apart.
type TradeFetcher interface {
	Name() string
	FetchTrades(ctx context.Context, req FetchRequest) ([]RawTrade, error)
}

// Config carries the REST transport settings shared by the adapters.
type Config struct {
	RESTBaseURL  string
	HTTPTimeout  time.Duration
	ProxyEnabled bool
	RESTProxyURL string
	APIKey       string
}

// NewHTTPClient builds the http.Client used by an adapter: fixed request
// timeout, optional proxy.
func NewHTTPClient(cfg Config) (*http.Client, error) {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	if cfg.ProxyEnabled && cfg.RESTProxyURL != "" {
		proxyURL, err := url.Parse(cfg.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	return httpClient, nil
}

// IsTimeout reports whether err is a request timeout, either already
// classified or a raw transport timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ClassifyTransport wraps transport timeouts with ErrTimeout and leaves other
// errors unchanged.
func ClassifyTransport(err error) error {
	if err == nil || errors.Is(err, ErrTimeout) {
		return err
	}
	if IsTimeout(err) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
