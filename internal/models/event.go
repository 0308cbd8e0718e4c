package models

import (
	"encoding/json"
	"time"
)

// ProcessedEvent — строка журнала идемпотентности. Её наличие единственный
// признак того, что событие с таким EventID уже применено.
type ProcessedEvent struct {
	EventID    string          // Ключ идемпотентности
	EventType  string          // Тип события как его прислал провайдер
	UserID     string          // app_user_id из события
	RawPayload json.RawMessage // Тело запроса без изменений
	ReceivedAt time.Time
}

// Outcome — итог обработки события, сохраняемый в аудит.
type Outcome string

const (
	// Событие применено впервые.
	OutcomeProcessed Outcome = "processed"
	// Повторная доставка, изменений нет.
	OutcomeAlreadyProcessed Outcome = "already_processed"
	// Ошибка хранилища при применении события.
	OutcomeFailed Outcome = "failed"
)

// AuditEntry — запись журнала аудита о каждом полученном событии.
type AuditEntry struct {
	ID         string
	EventID    string
	Provider   string
	EventType  string
	UserID     string
	Payload    json.RawMessage
	Outcome    Outcome
	ReceivedAt time.Time
}

// EntitlementChange публикуется в брокер после успешного изменения записи.
type EntitlementChange struct {
	EventID    string      `json:"event_id"`
	EventType  string      `json:"event_type"`
	Provider   string      `json:"provider"`
	UserID     string      `json:"user_id"`
	Previous   Entitlement `json:"previous"`
	Current    Entitlement `json:"current"`
	OccurredAt time.Time   `json:"occurred_at"`
}
