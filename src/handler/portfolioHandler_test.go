package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/src/database/migrations"
	"tradeledger/src/ledger"
	"tradeledger/src/model"
	"tradeledger/src/repository"
	"tradeledger/src/testutil"
)

type staticSnapshot struct {
	snap *ledger.Snapshot
	err  error
}

func (s staticSnapshot) Snapshot(context.Context) (*ledger.Snapshot, error) { return s.snap, s.err }

type staticPrices map[string]decimal.Decimal

func (p staticPrices) Cached(_ context.Context, symbol string) (decimal.Decimal, bool) {
	price, ok := p[symbol]
	return price, ok
}

func TestListPositionsHandler(t *testing.T) {
	db := testutil.NewDB(t)
	require.NoError(t, db.Create(&model.Position{Symbol: "BTC", Quantity: testutil.Dec("0.5"), AvgCostBasis: testutil.Dec("100")}).Error)
	require.NoError(t, db.Create(&model.Position{Symbol: "ETH", Quantity: decimal.Zero, AvgCostBasis: testutil.Dec("10")}).Error)
	handler := ListPositionsHandler(repository.NewPositionRepository(db))

	cases := []struct {
		query string
		code  int
		count int
	}{
		{"", http.StatusOK, 2},
		{"?open=true", http.StatusOK, 1},
		{"?open=maybe", http.StatusBadRequest, 0},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, withOperator(httptest.NewRequest(http.MethodGet, "/positions"+tc.query, nil)))
		require.Equal(t, tc.code, rr.Code, tc.query)
		if tc.code != http.StatusOK {
			continue
		}
		var got []model.Position
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.Len(t, got, tc.count, tc.query)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/positions", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestListCashBucketsHandler(t *testing.T) {
	db := testutil.NewSeededDB(t, migrations.Seed{Buckets: map[string]decimal.Decimal{
		"trading": testutil.Dec("10000"),
		"reserve": decimal.Zero,
	}})
	handler := ListCashBucketsHandler(repository.NewPositionRepository(db))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withOperator(httptest.NewRequest(http.MethodGet, "/cash-buckets", nil)))
	require.Equal(t, http.StatusOK, rr.Code)

	var got []model.CashBucket
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "reserve", got[0].BucketID)
	testutil.RequireDecimal(t, testutil.Dec("10000"), got[1].Balance)
}

func TestPortfolioHandler(t *testing.T) {
	snap := &ledger.Snapshot{
		Positions: []model.Position{
			{Symbol: "BTC", Quantity: testutil.Dec("0.1"), AvgCostBasis: testutil.Dec("10000")},
			{Symbol: "ETH", Quantity: testutil.Dec("2"), AvgCostBasis: testutil.Dec("100")},
		},
		Buckets: []model.CashBucket{
			{BucketID: "trading", Balance: testutil.Dec("8000")},
			{BucketID: "reserve", Balance: testutil.Dec("500")},
		},
		TakenAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	handler := PortfolioHandler(staticSnapshot{snap: snap}, staticPrices{"BTC": testutil.Dec("12000")})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withOperator(httptest.NewRequest(http.MethodGet, "/portfolio", nil)))
	require.Equal(t, http.StatusOK, rr.Code)

	var got portfolioResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	testutil.RequireDecimal(t, testutil.Dec("8500"), got.Cash)
	testutil.RequireDecimal(t, testutil.Dec("9700"), got.CostValue)
	// 8500 + 0.1*12000 + ETH at cost 200
	testutil.RequireDecimal(t, testutil.Dec("9900"), got.NAV)
	assert.Equal(t, []string{"ETH"}, got.Unpriced)
}

func TestPortfolioHandler_SnapshotError(t *testing.T) {
	handler := PortfolioHandler(staticSnapshot{err: assert.AnError}, nil)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withOperator(httptest.NewRequest(http.MethodGet, "/portfolio", nil)))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestListPnLAndSafetyEventsHandlers(t *testing.T) {
	db := testutil.NewDB(t)
	require.NoError(t, db.Create(&model.RealizedPnL{OrderID: 1, Symbol: "BTC", ProfitAmount: testutil.Dec("10"), RoiPct: testutil.Dec("1")}).Error)
	require.NoError(t, db.Create(&model.RealizedPnL{OrderID: 2, Symbol: "ETH", ProfitAmount: testutil.Dec("-5"), RoiPct: testutil.Dec("-2")}).Error)
	require.NoError(t, db.Create(&model.SafetyEvent{Kind: model.SafetyEventTermination, Rule: "loop", Agent: "alpha"}).Error)

	pnl := ListPnLHandler(repository.NewPnLRepository(db))
	rr := httptest.NewRecorder()
	pnl.ServeHTTP(rr, withOperator(httptest.NewRequest(http.MethodGet, "/pnl?symbol=eth", nil)))
	require.Equal(t, http.StatusOK, rr.Code)
	var rows []model.RealizedPnL
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, uint(2), rows[0].OrderID)

	events := ListSafetyEventsHandler(repository.NewSafetyEventRepository(db))
	rr = httptest.NewRecorder()
	events.ServeHTTP(rr, withOperator(httptest.NewRequest(http.MethodGet, "/safety-events", nil)))
	require.Equal(t, http.StatusOK, rr.Code)
	var got []model.SafetyEvent
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "loop", got[0].Rule)
}
