package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tradeledger/src/metrics"
	"tradeledger/src/model"
	"tradeledger/src/repository"
)

// Snapshot is a point-in-time view of every position and cash bucket.
type Snapshot struct {
	Positions []model.Position
	Buckets   []model.CashBucket
	TakenAt   time.Time
}

func (e *Engine) Snapshot(ctx context.Context) (*Snapshot, error) {
	repo := repository.NewPositionRepository(e.db)
	positions, err := repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	buckets, err := repo.FindBuckets(ctx)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Positions: positions, Buckets: buckets, TakenAt: e.now()}, nil
}

// Cash is the sum of all bucket balances.
func (s *Snapshot) Cash() decimal.Decimal {
	total := decimal.Zero
	for _, b := range s.Buckets {
		total = total.Add(b.Balance)
	}
	return total
}

// CostValue is cash plus positions valued at their average cost basis.
func (s *Snapshot) CostValue() decimal.Decimal {
	total := s.Cash()
	for _, p := range s.Positions {
		total = total.Add(p.CostValue())
	}
	return total
}

// NetAssetValue is cash plus positions marked at prices. Symbols without a
// price are valued at cost.
func (s *Snapshot) NetAssetValue(prices map[string]decimal.Decimal) decimal.Decimal {
	total := s.Cash()
	for _, p := range s.Positions {
		if price, ok := prices[p.Symbol]; ok && price.IsPositive() {
			total = total.Add(p.Quantity.Mul(price))
			continue
		}
		total = total.Add(p.CostValue())
	}
	return total
}

// NetAssetValue takes a fresh snapshot and marks it at prices.
func (e *Engine) NetAssetValue(ctx context.Context, prices map[string]decimal.Decimal) (decimal.Decimal, error) {
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	nav := snap.NetAssetValue(prices)
	metrics.NAV.Set(nav.InexactFloat64())
	return nav, nil
}
