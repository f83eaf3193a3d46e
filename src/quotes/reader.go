// Package quotes is the cache-first price lookup with an exchange fallback.
package quotes

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeledger/src/metrics"
)

var ErrNoQuote = errors.New("no quote available")

// TickerSource fetches a live last price.
type TickerSource interface {
	GetTicker(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Reader looks prices up in the cache first and falls back to the source,
// writing fetched prices back to the cache.
type Reader struct {
	cache  Cache
	source TickerSource
}

// NewReader accepts a nil source, in which case only cached prices are served.
func NewReader(cache Cache, source TickerSource) *Reader {
	return &Reader{cache: cache, source: source}
}

// Price returns a positive price for symbol or an error wrapping ErrNoQuote.
func (r *Reader) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	price, ok := r.Cached(ctx, symbol)
	if ok {
		metrics.QuoteLookups.WithLabelValues("cache").Inc()
		return price, nil
	}

	if r.source == nil {
		metrics.QuoteLookups.WithLabelValues("miss").Inc()
		return decimal.Zero, fmt.Errorf("%w: %s not cached", ErrNoQuote, symbol)
	}

	price, err := r.source.GetTicker(ctx, symbol)
	if err != nil {
		metrics.QuoteLookups.WithLabelValues("miss").Inc()
		return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrNoQuote, symbol, err)
	}
	if !price.IsPositive() {
		metrics.QuoteLookups.WithLabelValues("miss").Inc()
		return decimal.Zero, fmt.Errorf("%w: %s: non-positive price %s", ErrNoQuote, symbol, price)
	}
	metrics.QuoteLookups.WithLabelValues("exchange").Inc()

	if err := r.cache.Set(ctx, symbol, price); err != nil {
		logger.WithFields(map[string]interface{}{
			"component": "QuoteReader",
			"symbol":    symbol,
		}).WithError(err).Warn("Failed to write price to cache")
	}
	return price, nil
}

// Cached returns the cached price only. Cache errors count as a miss.
func (r *Reader) Cached(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	price, ok, err := r.cache.Get(ctx, symbol)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"component": "QuoteReader",
			"symbol":    symbol,
		}).WithError(err).Warn("Quote cache read failed")
		return decimal.Zero, false
	}
	if !ok || !price.IsPositive() {
		return decimal.Zero, false
	}
	return price, true
}

// Observe stores a price seen elsewhere, e.g. on a fill or a ticker stream.
func (r *Reader) Observe(ctx context.Context, symbol string, price decimal.Decimal) {
	if !price.IsPositive() {
		return
	}
	if err := r.cache.Set(ctx, symbol, price); err != nil {
		logger.WithFields(map[string]interface{}{
			"component": "QuoteReader",
			"symbol":    symbol,
		}).WithError(err).Warn("Failed to write price to cache")
	}
}
