package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	logger "github.com/sirupsen/logrus"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

func writeJSON(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Error("failed to encode response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// parsePagination reads page and pageSize. On invalid input it writes a 400
// and returns ok=false.
func parsePagination(w http.ResponseWriter, r *http.Request) (page, pageSize int, ok bool) {
	page = 1
	if pageParam := r.URL.Query().Get("page"); pageParam != "" {
		parsedPage, err := strconv.Atoi(pageParam)
		if err != nil || parsedPage <= 0 {
			http.Error(w, "invalid page", http.StatusBadRequest)
			return 0, 0, false
		}
		page = parsedPage
	}

	pageSize = defaultPageSize
	if sizeParam := r.URL.Query().Get("pageSize"); sizeParam != "" {
		parsedSize, err := strconv.Atoi(sizeParam)
		if err != nil || parsedSize <= 0 || parsedSize > maxPageSize {
			http.Error(w, "invalid pageSize", http.StatusBadRequest)
			return 0, 0, false
		}
		pageSize = parsedSize
	}
	return page, pageSize, true
}
