package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeledger/src/retry"
)

// PriceSink receives every price seen on the stream.
type PriceSink func(ctx context.Context, symbol string, price decimal.Decimal)

// TickerStream consumes a combined miniTicker websocket stream and pushes
// last prices into a sink, reconnecting with backoff until ctx ends.
type TickerStream struct {
	streamURL string
	symbols   []string
	sink      PriceSink
	dialer    websocket.Dialer
}

type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type miniTicker struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Close  string `json:"c"`
}

func NewTickerStream(streamURL string, symbols []string, sink PriceSink) *TickerStream {
	return &TickerStream{
		streamURL: streamURL,
		symbols:   symbols,
		sink:      sink,
		dialer: websocket.Dialer{
			HandshakeTimeout:  15 * time.Second,
			EnableCompression: true,
			Proxy:             http.ProxyFromEnvironment,
		},
	}
}

func (s *TickerStream) url() (string, error) {
	u, err := url.Parse(s.streamURL)
	if err != nil {
		return "", err
	}
	streams := make([]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		streams = append(streams, strings.ToLower(strings.TrimSpace(sym))+"@miniTicker")
	}
	q := u.Query()
	q.Set("streams", strings.Join(streams, "/"))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run blocks until ctx is done.
func (s *TickerStream) Run(ctx context.Context) {
	attempt := 0
	for ctx.Err() == nil {
		err := s.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		attempt++
		delay := retry.Backoff(time.Second, time.Minute, attempt)
		logger.WithFields(map[string]interface{}{
			"component": "TickerStream",
			"attempt":   attempt,
			"delay":     delay.String(),
		}).WithError(err).Warn("Ticker stream disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (s *TickerStream) consume(ctx context.Context) error {
	target, err := s.url()
	if err != nil {
		return err
	}

	conn, _, err := s.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("ws dial failed: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when ctx ends.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	logger.WithField("component", "TickerStream").Info("Ticker stream connected")

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("ws read failed: %w", err)
		}
		symbol, price, ok := parseTicker(msg)
		if !ok {
			continue
		}
		s.sink(ctx, symbol, price)
	}
}

func parseTicker(msg []byte) (string, decimal.Decimal, bool) {
	var env streamEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return "", decimal.Zero, false
	}
	payload := env.Data
	if len(payload) == 0 {
		payload = msg
	}

	var t miniTicker
	if err := json.Unmarshal(payload, &t); err != nil || t.Symbol == "" || t.Close == "" {
		return "", decimal.Zero, false
	}
	price, err := decimal.NewFromString(t.Close)
	if err != nil || !price.IsPositive() {
		return "", decimal.Zero, false
	}
	return t.Symbol, price, true
}
