package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeledger/src/auth"
	"tradeledger/src/handler"
	"tradeledger/src/ledger"
	"tradeledger/src/repository"
)

// Deps are the read-side collaborators of the API. Every route is read only;
// writes stay with the agents and the serializer.
type Deps struct {
	DB     *gorm.DB
	Engine *ledger.Engine
	Prices handler.PriceLookup
	JWT    *auth.JWTService
}

func NewRouter(config *Config, deps Deps) http.Handler {
	orders := repository.NewOrderRepository(deps.DB)
	positions := repository.NewPositionRepository(deps.DB)

	// Router with middleware
	r := chi.NewRouter()
	// === Global Middleware ===
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(deps.JWT))
		r.Get("/portfolio", handler.PortfolioHandler(deps.Engine, deps.Prices))
		r.Get("/positions", handler.ListPositionsHandler(positions))
		r.Get("/cash-buckets", handler.ListCashBucketsHandler(positions))
		r.Get("/orders", handler.SearchOrdersHandler(orders))
		r.Get("/orders/{id}", handler.GetOrderHandler(orders))
		r.Get("/pnl", handler.ListPnLHandler(repository.NewPnLRepository(deps.DB)))
		r.Get("/safety-events", handler.ListSafetyEventsHandler(repository.NewSafetyEventRepository(deps.DB)))
	})

	return r
}

// StartServer serves h until ctx is cancelled, then shuts down gracefully.
func StartServer(ctx context.Context, config *Config, h http.Handler) error {
	// Server setup
	addr := ":" + config.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("Server crashed")
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
		return err
	}
	return nil
}
