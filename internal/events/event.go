package events

import (
	"fmt"
	"time"

	"github.com/magabrotheeeer/entitlement-webhooks/internal/models"
)

// Meta — общие для всех вариантов события поля.
type Meta struct {
	Key        string // Ключ идемпотентности: id события или производный ключ
	DerivedKey bool   // true, если провайдер не прислал id
	Type       Type
	UserID     string
}

// Event — закрытое множество вариантов события: Mutation или NoOp.
// Каждый вариант сам реализует переход, поэтому новый вариант без обработчика не скомпилируется.
type Event interface {
	Meta() Meta
	apply(current models.Entitlement, now time.Time) (models.Entitlement, bool)
}

// Mutation — событие, переводящее запись в новое состояние.
// Содержит уже разрешённые по правилу значения полей.
type Mutation struct {
	meta         Meta
	IsPro        bool
	ProductID    *string
	ExpiresAt    *time.Time
	WillRenew    bool
	BillingIssue bool
}

// Meta возвращает общие поля события.
func (m Mutation) Meta() Meta { return m.meta }

func (m Mutation) apply(current models.Entitlement, now time.Time) (models.Entitlement, bool) {
	next := current
	next.IsPro = m.IsPro
	next.ProductID = m.ProductID
	next.ExpiresAt = m.ExpiresAt
	next.WillRenew = m.WillRenew
	next.BillingIssue = m.BillingIssue
	next.UpdatedAt = now
	return next, true
}

// NoOp — событие, которое читает запись, но не меняет её.
// Recognized == false для типов, о которых сервис ничего не знает.
type NoOp struct {
	meta       Meta
	Recognized bool
}

// Meta возвращает общие поля события.
func (n NoOp) Meta() Meta { return n.meta }

func (n NoOp) apply(current models.Entitlement, _ time.Time) (models.Entitlement, bool) {
	return current, false
}

// FallbackKey строит ключ идемпотентности для события без id.
// Ключ не защищает от повторов: повторная доставка придёт с другим временем получения.
func FallbackKey(eventType, userID string, receivedAt time.Time) string {
	return fmt.Sprintf("%s_%s_%d", eventType, userID, receivedAt.UnixMilli())
}

// Parse сопоставляет проверенный конверт с вариантом события.
func Parse(env Envelope, receivedAt time.Time) Event {
	p := env.Event
	meta := Meta{
		Type:   Type(p.Type),
		UserID: p.AppUserID,
	}
	if id := optString(p.ID); id != nil {
		meta.Key = *id
	} else {
		meta.Key = FallbackKey(p.Type, p.AppUserID, receivedAt)
		meta.DerivedKey = true
	}

	rule, ok := RuleFor(meta.Type)
	if !ok {
		return NoOp{meta: meta, Recognized: Known(meta.Type)}
	}

	m := Mutation{
		meta:         meta,
		IsPro:        rule.IsPro,
		WillRenew:    rule.WillRenew,
		BillingIssue: rule.BillingIssue,
	}

	switch rule.Product {
	case ProductFromEvent:
		m.ProductID = optString(p.ProductID)
	case ProductFromNewProduct:
		m.ProductID = optString(p.NewProductID)
	case ProductCleared:
		m.ProductID = nil
	}

	expiration := optMillis(p.ExpirationAtMs)
	if rule.Expiry == ExpiryFromGracePeriod {
		if grace := optMillis(p.GracePeriodExpiresAtMs); grace != nil {
			expiration = grace
		}
	}
	m.ExpiresAt = msToTime(expiration)

	return m
}

// Apply вычисляет новое состояние записи. changed == false означает, что запись не меняется.
func Apply(current models.Entitlement, ev Event, now time.Time) (next models.Entitlement, changed bool) {
	return ev.apply(current, now)
}

func msToTime(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}
