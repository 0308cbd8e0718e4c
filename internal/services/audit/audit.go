// Package audit — журнал всех полученных событий. Запись в журнал не влияет
// на ответ провайдеру: ошибки логируются и поглощаются.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/entitlement-webhooks/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/models"
)

// DefaultTimeout — срок записи в журнал, если не задан другой.
const DefaultTimeout = 2 * time.Second

// Store добавляет запись в журнал аудита.
type Store interface {
	AppendAudit(ctx context.Context, entry models.AuditEntry) (bool, error)
}

// FailureRecorder учитывает неудачные записи в метриках.
type FailureRecorder interface {
	RecordSideEffectFailure(step string)
}

// Logger пишет записи аудита в Store.
type Logger struct {
	store   Store
	log     *slog.Logger
	timeout time.Duration
	metrics FailureRecorder
}

// NewLogger создаёт Logger. timeout <= 0 заменяется на DefaultTimeout.
func NewLogger(store Store, log *slog.Logger, timeout time.Duration) *Logger {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Logger{store: store, log: log, timeout: timeout}
}

// WithMetrics подключает учёт неудачных записей.
func (l *Logger) WithMetrics(m FailureRecorder) *Logger {
	l.metrics = m
	return l
}

// Append записывает entry на контексте, отвязанном от отмены запроса.
// Возвращает true, если запись сохранена или уже была в журнале.
func (l *Logger) Append(ctx context.Context, entry models.AuditEntry) bool {
	const op = "audit.Append"
	log := l.log.With(
		slog.String("op", op),
		slog.String("event_id", entry.EventID),
		slog.String("outcome", string(entry.Outcome)),
	)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	inserted, err := l.store.AppendAudit(ctx, entry)
	if err != nil {
		log.Error("failed to append audit entry", sl.Err(err))
		if l.metrics != nil {
			l.metrics.RecordSideEffectFailure("audit")
		}
		return false
	}
	if !inserted {
		log.Debug("audit entry already exists")
	}
	return true
}
