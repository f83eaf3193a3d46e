// REST CLIENT FOR A BINANCE-COMPATIBLE SPOT API
// RESTY ONLY, RETRIES ARE LEFT TO THE EXECUTION CLIENT
package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

// -----------------------------
// API PAYLOADS
// -----------------------------
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type accountInfo struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

type orderResponse struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	Status              string `json:"status"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Fills               []struct {
		Price           string `json:"price"`
		Qty             string `json:"qty"`
		Commission      string `json:"commission"`
		CommissionAsset string `json:"commissionAsset"`
	} `json:"fills"`
}

// -----------------------------
// AUTHENTICATED CLIENT
// -----------------------------
type RestExchange struct {
	apiKey     string
	apiSecret  string
	quoteAsset string
	recvWindow int64
	http       *resty.Client
	now        func() time.Time
}

func NewRestExchange(apiKey, apiSecret, baseURL string, config Config) *RestExchange {
	if baseURL == "" {
		baseURL = "https://testnet.binance.vision"
		logger.Warnf("No base URL provided, using default: %s", baseURL)
	}
	timeout := config.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &RestExchange{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		quoteAsset: config.QuoteAsset,
		recvWindow: config.RecvWindow,
		http:       httpClient,
		now:        time.Now,
	}
}

func signQuery(query, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *RestExchange) doRequest(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}

	req := c.http.R().SetContext(ctx)
	target := path

	if signed {
		params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
		if c.recvWindow > 0 {
			params.Set("recvWindow", strconv.FormatInt(c.recvWindow, 10))
		}
		// The signature covers the exact query string, so it is appended
		// verbatim instead of going through resty's query params.
		query := params.Encode()
		target = path + "?" + query + "&signature=" + signQuery(query, c.apiSecret)
		req = req.SetHeader("X-MBX-APIKEY", c.apiKey)
	} else if len(params) > 0 {
		req = req.SetQueryString(params.Encode())
	}

	resp, err := req.Execute(method, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}

	raw := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		var body apiError
		_ = json.Unmarshal(raw, &body)
		if body.Msg == "" {
			body.Msg = strings.TrimSpace(string(raw))
		}
		return nil, &APIError{
			HTTPStatus: resp.StatusCode(),
			Code:       body.Code,
			Msg:        fmt.Sprintf("%s %s", GetErrorMsg(body.Code), body.Msg),
			kind:       classify(resp.StatusCode(), body.Code),
		}
	}

	return raw, nil
}

// -----------------------------
// MARKET DATA
// -----------------------------
func (c *RestExchange) GetTicker(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", NormalizeSymbol(symbol, c.quoteAsset))

	raw, err := c.doRequest(ctx, http.MethodGet, "/api/v3/ticker/price", params, false)
	if err != nil {
		return decimal.Zero, err
	}

	var t tickerPrice
	if err := json.Unmarshal(raw, &t); err != nil {
		return decimal.Zero, fmt.Errorf("decode ticker: %w", err)
	}
	return decimal.NewFromString(t.Price)
}

// -----------------------------
// ACCOUNT
// -----------------------------
func (c *RestExchange) GetBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	raw, err := c.doRequest(ctx, http.MethodGet, "/api/v3/account", nil, true)
	if err != nil {
		return decimal.Zero, err
	}

	var info accountInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return decimal.Zero, fmt.Errorf("decode account: %w", err)
	}
	for _, b := range info.Balances {
		if strings.EqualFold(b.Asset, asset) {
			return decimal.NewFromString(b.Free)
		}
	}
	return decimal.Zero, nil
}

// -----------------------------
// TRADING
// -----------------------------

// PlaceLimitOrder submits an immediate-or-cancel limit order.
func (c *RestExchange) PlaceLimitOrder(ctx context.Context, req LimitOrderRequest) (*OrderAck, error) {
	params := url.Values{}
	params.Set("symbol", NormalizeSymbol(req.Symbol, c.quoteAsset))
	params.Set("side", strings.ToUpper(req.Side))
	params.Set("type", "LIMIT")
	params.Set("timeInForce", "IOC")
	params.Set("quantity", req.Quantity.String())
	params.Set("price", req.Price.String())
	params.Set("newOrderRespType", "FULL")
	if req.ClientOrderID != "" {
		params.Set("newClientOrderId", req.ClientOrderID)
	}

	logger.WithFields(map[string]interface{}{
		"component": "RestExchange",
		"symbol":    req.Symbol,
		"side":      req.Side,
		"qty":       req.Quantity.String(),
		"price":     req.Price.String(),
	}).Info("Placing limit order")

	raw, err := c.doRequest(ctx, http.MethodPost, "/api/v3/order", params, true)
	if err != nil {
		return nil, err
	}

	var resp orderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return c.toAck(resp)
}

func (c *RestExchange) toAck(resp orderResponse) (*OrderAck, error) {
	ack := &OrderAck{
		ExchangeOrderID: strconv.FormatInt(resp.OrderID, 10),
		Status:          resp.Status,
	}

	qty, err := decimal.NewFromString(orZero(resp.ExecutedQty))
	if err != nil {
		return nil, fmt.Errorf("decode executedQty: %w", err)
	}
	quoteQty, err := decimal.NewFromString(orZero(resp.CummulativeQuoteQty))
	if err != nil {
		return nil, fmt.Errorf("decode cummulativeQuoteQty: %w", err)
	}
	ack.ExecutedQty = qty
	ack.QuoteQty = quoteQty
	if qty.IsPositive() {
		ack.ExecutedPrice = quoteQty.Div(qty)
	}

	// Only commissions paid in the quote asset can be booked as a cash fee.
	var fee decimal.Decimal
	reported := false
	for _, f := range resp.Fills {
		if f.Commission == "" {
			continue
		}
		if !strings.EqualFold(f.CommissionAsset, c.quoteAsset) {
			reported = false
			break
		}
		amount, err := decimal.NewFromString(f.Commission)
		if err != nil {
			return nil, fmt.Errorf("decode commission: %w", err)
		}
		fee = fee.Add(amount)
		reported = true
	}
	if reported {
		ack.Fee = &fee
	}

	return ack, nil
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
