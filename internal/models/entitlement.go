// Package models содержит доменные структуры сервиса: запись о доступе пользователя
// к премиум-функциям, обработанные события вебхука и записи аудита.
package models

import "time"

// Entitlement описывает текущее состояние подписки одного пользователя.
// Запись создаётся при первом событии для пользователя и никогда не удаляется.
// Если BillingIssue выставлен, IsPro тоже выставлен: льготный период сохраняет доступ.
type Entitlement struct {
	UserID       string     `json:"user_id"`       // Внешний идентификатор пользователя (app_user_id)
	IsPro        bool       `json:"is_pro"`        // Есть ли доступ к премиум-функциям
	ProductID    *string    `json:"product_id"`    // Активный продукт, nil если нет
	ExpiresAt    *time.Time `json:"expires_at"`    // Когда доступ истечёт без продления
	WillRenew    bool       `json:"will_renew"`    // Ожидается ли автопродление
	BillingIssue bool       `json:"billing_issue"` // Идёт ли повтор неудавшегося платежа
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewEntitlement возвращает запись по умолчанию для ещё не встречавшегося пользователя.
func NewEntitlement(userID string, now time.Time) Entitlement {
	return Entitlement{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SameState сообщает, совпадают ли поля подписки двух записей (без учёта временных меток).
func (e Entitlement) SameState(other Entitlement) bool {
	return e.UserID == other.UserID &&
		e.IsPro == other.IsPro &&
		e.WillRenew == other.WillRenew &&
		e.BillingIssue == other.BillingIssue &&
		equalStrings(e.ProductID, other.ProductID) &&
		equalTimes(e.ExpiresAt, other.ExpiresAt)
}

func equalStrings(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTimes(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
