package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shapeai4-rgb/shapeai/api/controllers"
	"github.com/shapeai4-rgb/shapeai/api/middleware"
	"github.com/shapeai4-rgb/shapeai/internal/ledger"
	planssvc "github.com/shapeai4-rgb/shapeai/internal/plans"
	"github.com/shapeai4-rgb/shapeai/internal/topup"
	"github.com/shapeai4-rgb/shapeai/internal/users"
	"github.com/shapeai4-rgb/shapeai/pkg/config"
	"github.com/shapeai4-rgb/shapeai/pkg/db"
	"github.com/shapeai4-rgb/shapeai/pkg/logger"
	"github.com/shapeai4-rgb/shapeai/pkg/payment"
	"github.com/shapeai4-rgb/shapeai/pkg/redis"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    *redis.Client
	Gatherer prometheus.Gatherer

	Ledger      ledger.Service
	Plans       planssvc.Service
	Topup       topup.Service
	Users       *users.Repository
	Transfermit *payment.TransfermitWebhook
	Bizon       *payment.BizonClient
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	readyChecks := map[string]controllers.Pinger{}
	if deps.DB != nil {
		readyChecks["database"] = deps.DB
	}
	if deps.Redis != nil {
		readyChecks["redis"] = deps.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readyChecks))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	// Webhooks authenticate with provider signatures, not bearer tokens.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		if deps.Transfermit != nil {
			handler := controllers.TransfermitWebhook(deps.Transfermit, deps.Users, deps.Topup, logg)
			r.Post("/transfermit", handler)
			r.Post("/payment", handler)
		}
	})

	generatePolicy := middleware.NewRateLimitPolicy(
		"generate",
		cfg.RateLimit.GenerateWindow,
		cfg.RateLimit.GenerateIPLimit,
		cfg.RateLimit.GenerateUserLimit,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Post("/costs/calculate", controllers.CalculateCost(deps.Ledger, logg))

		r.Route("/plans", func(r chi.Router) {
			r.With(middleware.RateLimit(generatePolicy, deps.Redis, logg)).
				Post("/generate", controllers.PlansGenerate(deps.Plans, logg))
			r.Get("/", controllers.PlansList(deps.Plans, logg))
			r.Get("/{planID}", controllers.PlansGet(deps.Plans, logg))
		})

		r.Route("/tokens", func(r chi.Router) {
			r.Get("/balance", controllers.TokenBalance(deps.Ledger, logg))
			r.Get("/transactions", controllers.TokenTransactions(deps.Ledger, logg))
		})

		r.Route("/topups", func(r chi.Router) {
			r.Post("/checkout", controllers.TopupCheckout(deps.Topup, logg))
			r.Get("/free/confirm", controllers.FreeTopupConfirm(deps.Topup, cfg, logg))
			if deps.Bizon != nil {
				r.Post("/bizon/confirm", controllers.BizonTopupConfirm(deps.Bizon, deps.Topup, logg))
			}
		})
	})

	return r
}
