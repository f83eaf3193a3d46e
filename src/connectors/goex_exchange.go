package connectors

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
)

// GoexExchange adapts a goex spot API (binance by default) to Exchange.
type GoexExchange struct {
	api        goex.API
	quoteAsset string
}

// NewBinanceExchange builds the goex binance client against endpoint.
func NewBinanceExchange(apiKey, apiSecret, endpoint string, config Config) *GoexExchange {
	if endpoint == "" {
		endpoint = binance.GLOBAL_API_BASE_URL
	}
	apiConfig := &goex.APIConfig{
		HttpClient:   &http.Client{Timeout: config.CallTimeout},
		Endpoint:     endpoint,
		ApiKey:       apiKey,
		ApiSecretKey: apiSecret,
	}
	return NewGoexExchange(binance.NewWithConfig(apiConfig), config.QuoteAsset)
}

func NewGoexExchange(api goex.API, quoteAsset string) *GoexExchange {
	return &GoexExchange{api: api, quoteAsset: quoteAsset}
}

func (g *GoexExchange) pair(symbol string) (goex.CurrencyPair, error) {
	base, quote, err := SplitSymbol(symbol, g.quoteAsset)
	if err != nil {
		return goex.UNKNOWN_PAIR, err
	}
	return goex.NewCurrencyPair(goex.Currency{Symbol: base}, goex.Currency{Symbol: quote}), nil
}

// goex has no context support, so ctx is only checked before the call.
func (g *GoexExchange) GetTicker(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	pair, err := g.pair(symbol)
	if err != nil {
		return decimal.Zero, err
	}

	ticker, err := g.api.GetTicker(pair)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: goex ticker %s: %v", ErrUnavailable, symbol, err)
	}
	return decimal.NewFromFloat(ticker.Last), nil
}

func (g *GoexExchange) GetBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	account, err := g.api.GetAccount()
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: goex account: %v", ErrUnavailable, err)
	}
	for currency, sub := range account.SubAccounts {
		if strings.EqualFold(currency.Symbol, asset) {
			return decimal.NewFromFloat(sub.Amount), nil
		}
	}
	return decimal.Zero, nil
}

func (g *GoexExchange) PlaceLimitOrder(ctx context.Context, req LimitOrderRequest) (*OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pair, err := g.pair(req.Symbol)
	if err != nil {
		return nil, err
	}

	amount := req.Quantity.String()
	price := req.Price.String()

	var order *goex.Order
	switch strings.ToUpper(req.Side) {
	case "BUY":
		order, err = g.api.LimitBuy(amount, price, pair)
	case "SELL":
		order, err = g.api.LimitSell(amount, price, pair)
	default:
		return nil, fmt.Errorf("%w: side %q", ErrRejected, req.Side)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: goex limit order: %v", ErrUnavailable, err)
	}

	ack := &OrderAck{
		ExchangeOrderID: order.OrderID2,
		Status:          order.Status.String(),
		ExecutedQty:     decimal.NewFromFloat(order.DealAmount),
		ExecutedPrice:   decimal.NewFromFloat(order.AvgPrice),
	}
	ack.QuoteQty = ack.ExecutedQty.Mul(ack.ExecutedPrice)
	if order.Fee > 0 {
		fee := decimal.NewFromFloat(order.Fee)
		ack.Fee = &fee
	}
	if order.Status == goex.ORDER_REJECT {
		return nil, fmt.Errorf("%w: order %s rejected", ErrRejected, order.OrderID2)
	}
	return ack, nil
}
