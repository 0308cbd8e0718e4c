// Package webhook сводит события провайдера подписок в записи Entitlement.
//
// Processor проверяет конверт, в одной транзакции резервирует событие в журнале
// идемпотентности и применяет переход к записи пользователя, а после фиксации
// выполняет необязательные шаги: инвалидацию кэша, уведомление, аудит, метрики.
package webhook

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/entitlement-webhooks/internal/events"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/models"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/storage"
)

// DefaultTimeout ограничивает работу с хранилищем на одно событие.
const DefaultTimeout = 5 * time.Second

// DefaultSideEffectTimeout ограничивает шаги после фиксации: кэш и уведомление.
const DefaultSideEffectTimeout = time.Second

// AuditLogger добавляет запись в журнал аудита, поглощая ошибки.
type AuditLogger interface {
	Append(ctx context.Context, entry models.AuditEntry) bool
}

// Notifier публикует изменение записи пользователя.
type Notifier interface {
	NotifyEntitlementChanged(ctx context.Context, change models.EntitlementChange) error
}

// CacheRefresher кладёт изменённую запись пользователя в кэш.
type CacheRefresher interface {
	Refresh(ctx context.Context, e models.Entitlement) error
}

// Metrics учитывает результаты обработки.
type Metrics interface {
	RecordWebhookEvent(provider, eventType, outcome string)
	RecordWebhookProcessingDuration(provider, eventType string, duration time.Duration)
	RecordWebhookError(provider, errorType string)
	RecordEntitlementChange(eventType string, isPro bool)
	RecordSideEffectFailure(step string)
}

// Request описывает одну доставку вебхука.
type Request struct {
	Provider   string
	Body       []byte
	ReceivedAt time.Time
}

// Result — итог успешной обработки.
type Result struct {
	Outcome    models.Outcome // processed или already_processed
	EventID    string
	EventType  string
	Recognized bool // false для неизвестного типа события
	Changed    bool // запись пользователя изменилась
}

// Processor обрабатывает доставки вебхука.
type Processor struct {
	store             storage.TxRunner
	audit             AuditLogger
	log               *slog.Logger
	notifier          Notifier
	cache             CacheRefresher
	metrics           Metrics
	timeout           time.Duration
	sideEffectTimeout time.Duration
	now               func() time.Time
}

// Option настраивает Processor.
type Option func(*Processor)

// WithNotifier подключает публикацию изменений.
func WithNotifier(n Notifier) Option { return func(p *Processor) { p.notifier = n } }

// WithCache подключает обновление кэша после изменения записи.
func WithCache(c CacheRefresher) Option { return func(p *Processor) { p.cache = c } }

// WithMetrics подключает метрики.
func WithMetrics(m Metrics) Option { return func(p *Processor) { p.metrics = m } }

// WithTimeout задаёт срок работы с хранилищем. d <= 0 игнорируется.
func WithTimeout(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithSideEffectTimeout задаёт срок шагов после фиксации. d <= 0 игнорируется.
func WithSideEffectTimeout(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.sideEffectTimeout = d
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option { return func(p *Processor) { p.now = now } }

// NewProcessor создаёт Processor поверх транзакционного хранилища.
func NewProcessor(store storage.TxRunner, audit AuditLogger, log *slog.Logger, opts ...Option) *Processor {
	p := &Processor{
		store:   store,
		audit:   audit,
		log:     log,
		timeout:           DefaultTimeout,
		sideEffectTimeout: DefaultSideEffectTimeout,
		now:               func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process обрабатывает одну доставку. Возвращает *events.ValidationError для
// неверного конверта и *storage.RepositoryError для сбоя хранилища; в последнем
// случае резервирование откатывается и повторная доставка будет обработана заново.
func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	const op = "webhook.Process"

	start := p.now()
	receivedAt := req.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = start
	}
	log := p.log.With(slog.String("op", op), slog.String("provider", req.Provider))

	env, err := events.Decode(req.Body)
	if err != nil {
		log.Warn("invalid webhook payload", sl.Err(err))
		p.recordError(req.Provider, "validation")
		return Result{}, err
	}

	ev := events.Parse(env, receivedAt)
	meta := ev.Meta()
	log = log.With(
		slog.String("event_id", meta.Key),
		slog.String("event_type", string(meta.Type)),
		slog.String("user_id", meta.UserID),
	)
	if meta.DerivedKey {
		log.Warn("event has no id, using derived idempotency key; redeliveries will not be deduplicated")
	}
	noop, isNoOp := ev.(events.NoOp)
	if isNoOp && !noop.Recognized {
		log.Info("unrecognized event type, recording without changes")
	}

	var (
		fresh, changed bool
		previous, next models.Entitlement
	)
	txCtx, cancel := context.WithTimeout(ctx, p.timeout)
	err = p.store.InTx(txCtx, func(tx storage.Tx) error {
		var err error
		fresh, err = tx.ReserveEvent(txCtx, models.ProcessedEvent{
			EventID:    meta.Key,
			EventType:  string(meta.Type),
			UserID:     meta.UserID,
			RawPayload: req.Body,
			ReceivedAt: receivedAt,
		})
		if err != nil || !fresh {
			return err
		}

		previous, err = tx.GetOrCreateEntitlement(txCtx, meta.UserID)
		if err != nil {
			return err
		}
		next, changed = events.Apply(previous, ev, p.now())
		if !changed {
			next = previous
			return nil
		}
		next, err = tx.UpdateEntitlement(txCtx, next)
		return err
	})
	cancel()

	entry := models.AuditEntry{
		EventID:    meta.Key,
		Provider:   req.Provider,
		EventType:  string(meta.Type),
		UserID:     meta.UserID,
		Payload:    req.Body,
		ReceivedAt: receivedAt,
	}

	if err != nil {
		log.Error("failed to apply webhook event", sl.Err(err))
		entry.Outcome = models.OutcomeFailed
		p.appendAudit(ctx, entry)
		p.recordError(req.Provider, "storage")
		p.recordEvent(req.Provider, string(meta.Type), models.OutcomeFailed, start)

		var repoErr *storage.RepositoryError
		if !errors.As(err, &repoErr) {
			err = &storage.RepositoryError{Op: op, Err: err}
		}
		return Result{}, err
	}

	res := Result{
		Outcome:    models.OutcomeProcessed,
		EventID:    meta.Key,
		EventType:  string(meta.Type),
		Recognized: !isNoOp || noop.Recognized,
		Changed:    fresh && changed,
	}
	if !fresh {
		res.Outcome = models.OutcomeAlreadyProcessed
		log.Info("event already processed")
	} else {
		log.Info("event processed", slog.Bool("changed", res.Changed), slog.Bool("is_pro", next.IsPro))
	}

	if res.Changed {
		p.afterCommit(ctx, log, models.EntitlementChange{
			EventID:    meta.Key,
			EventType:  string(meta.Type),
			Provider:   req.Provider,
			UserID:     meta.UserID,
			Previous:   previous,
			Current:    next,
			OccurredAt: next.UpdatedAt,
		})
	}

	entry.Outcome = res.Outcome
	p.appendAudit(ctx, entry)
	p.recordEvent(req.Provider, string(meta.Type), res.Outcome, start)

	return res, nil
}

// afterCommit выполняет шаги, которые не влияют на ответ: их ошибки только логируются.
func (p *Processor) afterCommit(ctx context.Context, log *slog.Logger, change models.EntitlementChange) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.sideEffectTimeout)
	defer cancel()

	if p.metrics != nil {
		p.metrics.RecordEntitlementChange(change.EventType, change.Current.IsPro)
	}
	if p.cache != nil {
		if err := p.cache.Refresh(ctx, change.Current); err != nil {
			log.Warn("failed to refresh entitlement cache", sl.Err(err))
			p.recordSideEffectFailure("cache")
		}
	}
	if p.notifier != nil {
		if err := p.notifier.NotifyEntitlementChanged(ctx, change); err != nil {
			log.Warn("failed to publish entitlement change", sl.Err(err))
			p.recordSideEffectFailure("notify")
		}
	}
}

func (p *Processor) appendAudit(ctx context.Context, entry models.AuditEntry) {
	if p.audit != nil {
		p.audit.Append(ctx, entry)
	}
}

func (p *Processor) recordEvent(provider, eventType string, outcome models.Outcome, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordWebhookEvent(provider, eventType, string(outcome))
	p.metrics.RecordWebhookProcessingDuration(provider, eventType, p.now().Sub(start))
}

func (p *Processor) recordError(provider, errorType string) {
	if p.metrics != nil {
		p.metrics.RecordWebhookError(provider, errorType)
	}
}

func (p *Processor) recordSideEffectFailure(step string) {
	if p.metrics != nil {
		p.metrics.RecordSideEffectFailure(step)
	}
}
