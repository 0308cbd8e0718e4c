package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/entitlement-webhooks/internal/http/response"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/lib/jwt"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/lib/sl"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

const (
	// Operator ключ для имени оператора в контексте
	Operator Key = "operator"
	// Role ключ для роли оператора в контексте
	Role Key = "role"
)

// TokenParser разбирает JWT оператора.
type TokenParser interface {
	ParseToken(tokenStr string) (*jwt.OperatorClaims, error)
}

// JWTMiddleware пропускает только операторов с ролью requiredRole и кладёт
// имя оператора и роль в контекст запроса.
func JWTMiddleware(parser TokenParser, requiredRole string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.JWTMiddleware"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			tokenStr, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || tokenStr == "" {
				log.Warn("missing or invalid authorization header")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}

			claims, err := parser.ParseToken(tokenStr)
			if err != nil {
				log.Warn("invalid or expired token", sl.Err(err))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired token"))
				return
			}
			if claims.Role != requiredRole {
				log.Warn("operator role is not allowed", slog.String("operator", claims.Operator), slog.String("role", claims.Role))
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.Error("access denied"))
				return
			}

			ctx := context.WithValue(r.Context(), Operator, claims.Operator)
			ctx = context.WithValue(ctx, Role, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
