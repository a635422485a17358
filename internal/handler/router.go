package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/pj-finance-ledger/internal/domain"
	"github.com/boddenberg/pj-finance-ledger/internal/infra/observability"
	"github.com/boddenberg/pj-finance-ledger/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Services bundles the application services the router exposes.
// A nil Advisor answers 503 on the advisor route.
type Services struct {
	Ledger     *service.LedgerService
	Invoices   *service.InvoiceService
	Stats      *service.StatsService
	Categories *service.CategoryService
	Advisor    *service.AdvisorService
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter creates the HTTP router with all routes and middleware.
// An empty jwtSecret leaves the account routes unauthenticated.
func NewRouter(svcs Services, store Pinger, jwtSecret string, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(store, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// 📊 Métricas do motor
		// GET /v1/metrics/engine
		// =============================================
		r.Get("/metrics/engine", engineMetricsHandler(metrics))

		r.Route("/accounts/{accountId}", func(r chi.Router) {
			r.Use(AccountAuthMiddleware(jwtSecret, logger))

			// =============================================
			// 1. 💰 Lançamentos (materialized ledger)
			// =============================================
			r.Get("/transactions", listTransactionsHandler(svcs.Ledger, logger))
			r.Post("/transactions", createTransactionHandler(svcs.Ledger, logger))
			r.Get("/transactions/{id}", getTransactionHandler(svcs.Ledger, logger))
			r.Patch("/transactions/{id}", updateTransactionHandler(svcs.Ledger, logger))
			r.Delete("/transactions/{id}", deleteTransactionHandler(svcs.Ledger, logger))

			// =============================================
			// 2. 🧾 Faturas
			// =============================================
			r.Get("/invoices", listInvoicesHandler(svcs.Invoices, logger))
			r.Post("/invoices/resync", resyncInvoicesHandler(svcs.Invoices, logger))
			r.Post("/invoices/{cardId}/{month}/pay", payInvoiceHandler(svcs.Invoices, logger))

			// =============================================
			// 3. 💳 Cartões e compras no cartão
			// =============================================
			r.Get("/cards", listCardsHandler(svcs.Invoices, logger))
			r.Post("/cards", createCardHandler(svcs.Invoices, logger))
			r.Get("/cards/{cardId}", getCardHandler(svcs.Invoices, logger))
			r.Delete("/cards/{cardId}", deleteCardHandler(svcs.Invoices, logger))

			r.Get("/card-transactions", listCardTransactionsHandler(svcs.Invoices, logger))
			r.Post("/card-transactions", createCardTransactionHandler(svcs.Invoices, logger))
			r.Patch("/card-transactions/{id}", updateCardTransactionHandler(svcs.Invoices, logger))
			r.Delete("/card-transactions/{id}", deleteCardTransactionHandler(svcs.Invoices, logger))

			// =============================================
			// 4. 📈 Estatísticas e categorias
			// =============================================
			r.Get("/stats", accountStatsHandler(svcs.Stats, logger))
			r.Get("/stats/categories", categoryStatsHandler(svcs.Stats, logger))
			r.Get("/categories", listCategoriesHandler(svcs.Categories, logger))

			// =============================================
			// 5. 🤖 Consultor financeiro
			// =============================================
			if svcs.Advisor == nil {
				r.Post("/advisor", func(w http.ResponseWriter, r *http.Request) {
					writeError(w, http.StatusServiceUnavailable, "advisor unavailable: not configured")
				})
			} else {
				r.Post("/advisor", advisorHandler(svcs.Advisor, logger))
			}
		})
	})

	return r
}

// ============================================================
// Métricas & Health
// ============================================================

func healthzHandler(store Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "ledger-api", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			start := time.Now()
			err := store.Ping(ctx)
			latency := time.Since(start).Milliseconds()
			status := "healthy"
			if err != nil {
				logger.Warn("store ping failed", zap.Error(err))
				status = "unhealthy"
			}
			services = append(services, domain.ServiceHealth{
				Name: "store", Status: status, LatencyMs: latency, LastChecked: now,
			})
		}

		overallStatus := "healthy"
		code := http.StatusOK
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				code = http.StatusServiceUnavailable
				break
			}
		}

		writeJSON(w, code, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func engineMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetEngineSnapshot())
	}
}
