package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"tradeledger/src/auth"
	"tradeledger/src/model"
	"tradeledger/src/repository"
)

type orderSearcher interface {
	Search(ctx context.Context, options repository.OrderSearchOptions) ([]model.Order, error)
}

type orderFinder interface {
	FindByID(ctx context.Context, id uint) (*model.Order, error)
	FindExecutionRecordsByOrderID(ctx context.Context, orderID uint) ([]model.ExecutionRecord, error)
}

var orderStatuses = map[string]bool{
	model.OrderStatusPending:  true,
	model.OrderStatusApproved: true,
	model.OrderStatusDone:     true,
	model.OrderStatusFailed:   true,
	model.OrderStatusExpired:  true,
	model.OrderStatusVetoed:   true,
}

// SearchOrdersHandler returns a handler that lists orders, newest first.
// Supports pagination and filters (symbol, status, agent, createdFrom, createdTo).
func SearchOrdersHandler(repo orderSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.GetOperatorFromContext(r.Context()); !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		query := r.URL.Query()
		var opts repository.OrderSearchOptions

		if symbolParam := query.Get("symbol"); symbolParam != "" {
			symbol := strings.ToUpper(symbolParam)
			opts.Symbol = &symbol
		}

		if statusParam := query.Get("status"); statusParam != "" {
			status := strings.ToUpper(statusParam)
			if !orderStatuses[status] {
				http.Error(w, "invalid status", http.StatusBadRequest)
				return
			}
			opts.Status = &status
		}

		if agentParam := query.Get("agent"); agentParam != "" {
			opts.Agent = &agentParam
		}

		var err error
		if opts.CreatedAfter, err = parseTimeParam(query.Get("createdFrom")); err != nil {
			http.Error(w, "invalid createdFrom", http.StatusBadRequest)
			return
		}
		if opts.CreatedBefore, err = parseTimeParam(query.Get("createdTo")); err != nil {
			http.Error(w, "invalid createdTo", http.StatusBadRequest)
			return
		}

		page, pageSize, ok := parsePagination(w, r)
		if !ok {
			return
		}
		opts.Limit = pageSize
		opts.Offset = (page - 1) * pageSize

		orders, err := repo.Search(r.Context(), opts)
		if err != nil {
			logger.WithError(err).Error("failed to search orders")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, orders)
	}
}

type orderDetail struct {
	*model.Order
	Executions []model.ExecutionRecord `json:"executions"`
}

// GetOrderHandler returns one order with its status history and execution records.
func GetOrderHandler(repo orderFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.GetOperatorFromContext(r.Context()); !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id == 0 {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}

		order, err := repo.FindByID(r.Context(), uint(id))
		if err != nil {
			logger.WithError(err).WithField("order_id", id).Error("failed to load order")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if order == nil {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}

		records, err := repo.FindExecutionRecordsByOrderID(r.Context(), order.ID)
		if err != nil {
			logger.WithError(err).WithField("order_id", id).Error("failed to load execution records")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, orderDetail{Order: order, Executions: records})
	}
}

func parseTimeParam(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
