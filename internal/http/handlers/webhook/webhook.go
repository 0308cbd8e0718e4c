// Package webhook реализует HTTP-обработчик доставки вебхука провайдера подписок.
//
// Коды ответа — сигнал провайдеру: 200 означает «не повторять», 500 — «повторить позже».
package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/entitlement-webhooks/internal/events"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/http/response"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/models"
	service "github.com/magabrotheeeer/entitlement-webhooks/internal/services/webhook"
)

// DefaultMaxBodyBytes используется, если предел тела запроса не задан.
const DefaultMaxBodyBytes = 256 << 10

// Processor обрабатывает одну доставку вебхука.
type Processor interface {
	Process(ctx context.Context, req service.Request) (service.Result, error)
}

// Handler принимает вебхуки от провайдеров из списка providers.
type Handler struct {
	log          *slog.Logger
	processor    Processor
	providers    []string
	maxBodyBytes int64
	now          func() time.Time
}

// New создаёт Handler. maxBodyBytes <= 0 заменяется на DefaultMaxBodyBytes.
func New(log *slog.Logger, processor Processor, providers []string, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{
		log:          log,
		processor:    processor,
		providers:    providers,
		maxBodyBytes: maxBodyBytes,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// ServeHTTP обрабатывает доставку вебхука.
//
//	@Summary		Доставка вебхука провайдера подписок
//	@Tags			webhooks
//	@Accept			json
//	@Produce		json
//	@Param			provider		path		string	true	"Провайдер"	default(revenuecat)
//	@Param			Authorization	header		string	true	"Bearer <shared secret>"
//	@Success		200				{object}	response.WebhookOK
//	@Failure		400				{object}	response.WebhookError
//	@Failure		401				{object}	response.WebhookError
//	@Failure		404				{object}	response.WebhookError
//	@Failure		429				{object}	response.WebhookError
//	@Failure		500				{object}	response.WebhookError
//	@Router			/api/v1/webhooks/{provider} [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.webhook.ServeHTTP"

	receivedAt := h.now()
	provider := chi.URLParam(r, "provider")
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("provider", provider),
	)

	if !slices.Contains(h.providers, provider) {
		log.Warn("unknown webhook provider")
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.WebhookFailure(response.ErrNotFound, "unknown provider"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn("webhook body too large", slog.Int64("limit", tooLarge.Limit))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.WebhookFailure(response.ErrBadRequest, "payload too large"))
			return
		}
		log.Error("failed to read request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.WebhookFailure(response.ErrBadRequest, "failed to read request body"))
		return
	}

	res, err := h.processor.Process(r.Context(), service.Request{
		Provider:   provider,
		Body:       body,
		ReceivedAt: receivedAt,
	})
	if err != nil {
		var verr *events.ValidationError
		if errors.As(err, &verr) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.WebhookFailure(response.ErrBadRequest, verr.Message))
			return
		}
		log.Error("failed to process webhook event", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.WebhookFailure(response.ErrInternal, "Failed to process webhook event"))
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response.Processed(res.EventType, res.Outcome == models.OutcomeAlreadyProcessed))
}
