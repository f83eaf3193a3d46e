package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeledger/src/auth"
	"tradeledger/src/ledger"
	"tradeledger/src/model"
)

type positionLister interface {
	FindAll(ctx context.Context) ([]model.Position, error)
	FindOpen(ctx context.Context) ([]model.Position, error)
	FindBuckets(ctx context.Context) ([]model.CashBucket, error)
}

type snapshotter interface {
	Snapshot(ctx context.Context) (*ledger.Snapshot, error)
}

// PriceLookup returns a cached mark price without touching the exchange.
type PriceLookup interface {
	Cached(ctx context.Context, symbol string) (decimal.Decimal, bool)
}

// ListPositionsHandler lists positions. ?open=true hides closed ones.
func ListPositionsHandler(repo positionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.GetOperatorFromContext(r.Context()); !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var (
			positions []model.Position
			err       error
		)
		switch strings.ToLower(r.URL.Query().Get("open")) {
		case "", "false":
			positions, err = repo.FindAll(r.Context())
		case "true":
			positions, err = repo.FindOpen(r.Context())
		default:
			http.Error(w, "invalid open", http.StatusBadRequest)
			return
		}
		if err != nil {
			logger.WithError(err).Error("failed to list positions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, positions)
	}
}

func ListCashBucketsHandler(repo positionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.GetOperatorFromContext(r.Context()); !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		buckets, err := repo.FindBuckets(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to list cash buckets")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, buckets)
	}
}

type portfolioResponse struct {
	Positions []model.Position   `json:"positions"`
	Buckets   []model.CashBucket `json:"cash_buckets"`
	Cash      decimal.Decimal    `json:"cash"`
	CostValue decimal.Decimal    `json:"cost_value"`
	NAV       decimal.Decimal    `json:"nav"`
	Unpriced  []string           `json:"unpriced,omitempty"`
	TakenAt   time.Time          `json:"taken_at"`
}

// PortfolioHandler returns a snapshot marked at cached prices. Positions
// without a cached price are valued at cost and listed under "unpriced".
func PortfolioHandler(engine snapshotter, prices PriceLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.GetOperatorFromContext(r.Context()); !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		snap, err := engine.Snapshot(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to take portfolio snapshot")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		marks := make(map[string]decimal.Decimal)
		var unpriced []string
		for _, p := range snap.Positions {
			if !p.Quantity.IsPositive() {
				continue
			}
			if prices != nil {
				if price, ok := prices.Cached(r.Context(), p.Symbol); ok {
					marks[p.Symbol] = price
					continue
				}
			}
			unpriced = append(unpriced, p.Symbol)
		}

		writeJSON(w, portfolioResponse{
			Positions: snap.Positions,
			Buckets:   snap.Buckets,
			Cash:      snap.Cash(),
			CostValue: snap.CostValue(),
			NAV:       snap.NetAssetValue(marks),
			Unpriced:  unpriced,
			TakenAt:   snap.TakenAt,
		})
	}
}
