// Package webhooks собирает HTTP- и gRPC-серверы сервиса приёма вебхуков.
package webhooks

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/entitlement-webhooks/internal/config"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/http/handlers/entitlement/read"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/http/handlers/health"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/http/handlers/webhook"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/lib/jwt"
)

// Routes содержит зависимости маршрутов приложения.
type Routes struct {
	Logger       *slog.Logger
	Webhook      config.Webhook
	Processor    webhook.Processor
	Prober       health.Prober
	Entitlements read.Service
	// TokenParser == nil отключает операторский API.
	TokenParser middlewarectx.TokenParser
	AuthMetrics middlewarectx.AuthFailureRecorder
	Gatherer    prometheus.Gatherer
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, deps Routes) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Method(http.MethodGet, "/health", health.New(deps.Prober))

	limiter := middlewarectx.NewLimiter(deps.Webhook.RateLimitRPS, deps.Webhook.RateBurst)

	r.Route("/api/v1", func(r chi.Router) {
		// Вебхуки провайдеров: лимит запросов, затем проверка секрета до чтения тела
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(limiter, deps.Logger))
			r.Use(middlewarectx.WebhookAuthMiddleware(deps.Webhook.Secret, deps.Logger, deps.AuthMetrics))
			r.Method(http.MethodPost, "/webhooks/{provider}",
				webhook.New(deps.Logger, deps.Processor, deps.Webhook.Providers, deps.Webhook.MaxBodyBytes))
		})

		// Операторский API
		if deps.TokenParser != nil {
			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.JWTMiddleware(deps.TokenParser, jwt.RoleAdmin, deps.Logger))
				r.Method(http.MethodGet, "/entitlements/{user_id}", read.New(deps.Logger, deps.Entitlements))
			})
		}
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
