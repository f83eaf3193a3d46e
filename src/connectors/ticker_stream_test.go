package connectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestTickerStreamPushesPrices(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var gotStreams string
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotStreams = r.URL.Query().Get("streams")
		mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"btcusdt@miniTicker","data":{"e":"24hrMiniTicker","s":"BTCUSDT","c":"20001.5"}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"ethusdt@miniTicker","data":{"e":"24hrMiniTicker","s":"ETHUSDT","c":"1500"}}`))

		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/stream"

	prices := make(chan string, 4)
	stream := NewTickerStream(wsURL, []string{"BTCUSDT", "ethusdt"}, func(ctx context.Context, symbol string, price decimal.Decimal) {
		prices <- symbol + "=" + price.String()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		stream.Run(ctx)
		close(done)
	}()

	require.Equal(t, "BTCUSDT=20001.5", <-prices)
	require.Equal(t, "ETHUSDT=1500", <-prices)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "btcusdt@miniTicker/ethusdt@miniTicker", gotStreams)
}

func TestParseTicker(t *testing.T) {
	symbol, price, ok := parseTicker([]byte(`{"e":"24hrMiniTicker","s":"SOLUSDT","c":"101.25"}`))
	require.True(t, ok)
	require.Equal(t, "SOLUSDT", symbol)
	require.True(t, price.Equal(decimal.RequireFromString("101.25")))

	_, _, ok = parseTicker([]byte(`{"stream":"x","data":{"s":"SOLUSDT","c":"0"}}`))
	require.False(t, ok)
}
