// Package health проверяет доступность хранилища.
package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/entitlement-webhooks/internal/lib/sl"
)

// DefaultTimeout ограничивает проверку хранилища.
const DefaultTimeout = time.Second

// Pinger выполняет тривиальный запрос к хранилищу.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status — результат проверки.
type Status struct {
	Healthy bool
	Err     error
}

// Reporter проверяет хранилище с ограничением по времени.
type Reporter struct {
	db      Pinger
	log     *slog.Logger
	timeout time.Duration
}

// NewReporter создаёт Reporter. timeout <= 0 заменяется на DefaultTimeout.
func NewReporter(db Pinger, log *slog.Logger, timeout time.Duration) *Reporter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Reporter{db: db, log: log, timeout: timeout}
}

// Probe выполняет проверку. Ошибка хранилища и превышение срока дают Healthy == false.
func (r *Reporter) Probe(ctx context.Context) Status {
	const op = "health.Probe"

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.db.Ping(ctx); err != nil {
		r.log.Warn("database health check failed", slog.String("op", op), sl.Err(err))
		return Status{Healthy: false, Err: err}
	}
	return Status{Healthy: true}
}
