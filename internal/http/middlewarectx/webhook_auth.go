// Package middlewarectx содержит HTTP middleware сервиса: проверку общего
// секрета вебхука, проверку JWT оператора и ограничение частоты запросов.
package middlewarectx

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/entitlement-webhooks/internal/http/response"
)

// AuthReason — причина отказа в аутентификации вебхука.
type AuthReason string

const (
	// ReasonMissingConfig — секрет на сервере не задан. Ошибка развёртывания, 500.
	ReasonMissingConfig AuthReason = "missing_config"
	// ReasonMismatch — клиент не передал секрет или передал неверный, 401.
	ReasonMismatch AuthReason = "mismatch"
)

// AuthError — отказ в аутентификации вебхука.
type AuthError struct {
	Reason AuthReason
}

func (e *AuthError) Error() string {
	switch e.Reason {
	case ReasonMissingConfig:
		return "webhook secret not configured"
	default:
		return "invalid webhook secret"
	}
}

// VerifyBearer сравнивает значение заголовка Authorization с "Bearer <secret>"
// за постоянное время. Возвращает nil или *AuthError.
func VerifyBearer(header, secret string) error {
	if secret == "" {
		return &AuthError{Reason: ReasonMissingConfig}
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return &AuthError{Reason: ReasonMismatch}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
		return &AuthError{Reason: ReasonMismatch}
	}
	return nil
}

// unauthenticatedProvider — метка метрик для отвергнутых запросов: путь не проверен
// и не должен порождать новые значения метки.
const unauthenticatedProvider = "unauthenticated"

// AuthFailureRecorder учитывает отказы в метриках.
type AuthFailureRecorder interface {
	RecordWebhookError(provider, errorType string)
}

// WebhookAuthMiddleware пропускает запрос дальше только с верным секретом.
// Тело запроса до проверки не читается.
func WebhookAuthMiddleware(secret string, log *slog.Logger, metrics AuthFailureRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.WebhookAuth"

			err := VerifyBearer(r.Header.Get("Authorization"), secret)
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
			authErr := err.(*AuthError)
			if metrics != nil {
				metrics.RecordWebhookError(unauthenticatedProvider, string(authErr.Reason))
			}

			if authErr.Reason == ReasonMissingConfig {
				log.Error("webhook secret is not configured")
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.WebhookFailure(response.ErrMisconfiguration, "Webhook secret not configured"))
				return
			}

			log.Warn("invalid webhook secret")
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, response.WebhookFailure(response.ErrUnauthorized, "Invalid webhook secret"))
		})
	}
}
