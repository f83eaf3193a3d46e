package handler

import (
	"context"
	"net/http"
	"strings"

	logger "github.com/sirupsen/logrus"

	"tradeledger/src/auth"
	"tradeledger/src/model"
)

type pnlLister interface {
	FindLatest(ctx context.Context, limit int) ([]model.RealizedPnL, error)
	FindLatestBySymbol(ctx context.Context, symbol string, limit int) ([]model.RealizedPnL, error)
}

type safetyEventLister interface {
	FindLatest(ctx context.Context, limit int) ([]model.SafetyEvent, error)
}

// ListPnLHandler returns realized profit rows, newest first, optionally for one symbol.
func ListPnLHandler(repo pnlLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.GetOperatorFromContext(r.Context()); !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		_, limit, ok := parsePagination(w, r)
		if !ok {
			return
		}

		var (
			rows []model.RealizedPnL
			err  error
		)
		if symbol := r.URL.Query().Get("symbol"); symbol != "" {
			rows, err = repo.FindLatestBySymbol(r.Context(), strings.ToUpper(symbol), limit)
		} else {
			rows, err = repo.FindLatest(r.Context(), limit)
		}
		if err != nil {
			logger.WithError(err).Error("failed to list realized pnl")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, rows)
	}
}

// ListSafetyEventsHandler returns the fail-stop audit log, newest first.
func ListSafetyEventsHandler(repo safetyEventLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.GetOperatorFromContext(r.Context()); !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		_, limit, ok := parsePagination(w, r)
		if !ok {
			return
		}

		events, err := repo.FindLatest(r.Context(), limit)
		if err != nil {
			logger.WithError(err).Error("failed to list safety events")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, events)
	}
}
