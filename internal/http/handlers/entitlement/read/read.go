// Package read реализует HTTP-обработчик операторского API для чтения
// текущей записи Entitlement пользователя.
package read

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/entitlement-webhooks/internal/http/response"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/models"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/storage"
)

// Handler обрабатывает запросы на получение записи пользователя.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс чтения записи.
type Service interface {
	Get(ctx context.Context, userID string) (*models.Entitlement, error)
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP возвращает запись пользователя.
//
//	@Summary	Текущий доступ пользователя
//	@Tags		entitlements
//	@Produce	json
//	@Security	BearerAuth
//	@Param		user_id	path		string	true	"app_user_id"
//	@Success	200		{object}	response.Response
//	@Failure	401		{object}	response.ErrorResponse
//	@Failure	403		{object}	response.ErrorResponse
//	@Failure	404		{object}	response.ErrorResponse
//	@Failure	500		{object}	response.ErrorResponse
//	@Router		/api/v1/entitlements/{user_id} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.entitlement.read"

	userID := chi.URLParam(r, "user_id")
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("user_id", userID),
	)

	if userID == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("user_id is required"))
		return
	}

	res, err := h.service.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("entitlement not found"))
			return
		}
		log.Error("failed to read entitlement", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not read entitlement"))
		return
	}

	log.Debug("entitlement read", slog.Bool("is_pro", res.IsPro))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"entitlement": res,
	}))
}
