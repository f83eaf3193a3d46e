package connectors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Exchange is the external spot exchange the execution client talks to.
type Exchange interface {
	GetBalance(ctx context.Context, asset string) (decimal.Decimal, error)
	GetTicker(ctx context.Context, symbol string) (decimal.Decimal, error)
	PlaceLimitOrder(ctx context.Context, req LimitOrderRequest) (*OrderAck, error)
}

type LimitOrderRequest struct {
	Symbol        string
	Side          string // BUY | SELL
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	ClientOrderID string
}

// OrderAck is what the exchange reported for a limit order.
type OrderAck struct {
	ExchangeOrderID string
	Status          string
	ExecutedQty     decimal.Decimal
	ExecutedPrice   decimal.Decimal
	QuoteQty        decimal.Decimal  // cash value of the executed quantity
	Fee             *decimal.Decimal // nil when not reported in the quote asset
}

// Filled reports whether any quantity was executed.
func (a *OrderAck) Filled() bool {
	return a != nil && a.ExecutedQty.IsPositive()
}

var (
	ErrAuth        = errors.New("exchange authorization failed")
	ErrRateLimited = errors.New("exchange rate limit")
	ErrUnavailable = errors.New("exchange unavailable")
	ErrRejected    = errors.New("exchange rejected request")
)

// APIError carries the exchange's own error code.
type APIError struct {
	HTTPStatus int
	Code       int
	Msg        string
	kind       error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange error %d (HTTP %d): %s", e.Code, e.HTTPStatus, e.Msg)
}

func (e *APIError) Unwrap() error { return e.kind }

// IsTransient reports errors worth retrying within the call budget:
// rate limits, timeouts, 5xx and network failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrRejected) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// SplitSymbol splits "BTCUSDT" (or "BTC_USDT", "BTC/USDT") into base and quote.
func SplitSymbol(symbol, quote string) (string, string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, sep := range []string{"_", "/", "-"} {
		if parts := strings.Split(s, sep); len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			return parts[0], parts[1], nil
		}
	}
	q := strings.ToUpper(quote)
	if q != "" && strings.HasSuffix(s, q) && len(s) > len(q) {
		return strings.TrimSuffix(s, q), q, nil
	}
	return "", "", fmt.Errorf("cannot split symbol %q with quote %q", symbol, quote)
}

// NormalizeSymbol returns the exchange form "BTCUSDT".
func NormalizeSymbol(symbol, quote string) string {
	base, q, err := SplitSymbol(symbol, quote)
	if err != nil {
		return strings.ToUpper(strings.TrimSpace(symbol))
	}
	return base + q
}
