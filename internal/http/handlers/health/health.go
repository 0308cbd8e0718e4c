// Package health реализует HTTP-обработчик проверки живости.
package health

import (
	"context"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/entitlement-webhooks/internal/http/response"
	service "github.com/magabrotheeeer/entitlement-webhooks/internal/services/health"
)

// Prober проверяет хранилище.
type Prober interface {
	Probe(ctx context.Context) service.Status
}

type Handler struct {
	prober Prober
}

func New(prober Prober) *Handler {
	return &Handler{
		prober: prober,
	}
}

// ServeHTTP отвечает 200, если хранилище доступно, иначе 503.
//
//	@Summary	Проверка живости
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	response.Health
//	@Failure	503	{object}	response.Health
//	@Router		/health [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.prober.Probe(r.Context()).Healthy {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Unhealthy)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, response.Healthy)
}
