package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/entitlement-webhooks/internal/models"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/storage"
)

// ReserveEvent вставляет событие в журнал идемпотентности одним запросом
// INSERT ... ON CONFLICT DO NOTHING. Параллельная доставка того же event_id
// ждёт на уникальном индексе, пока первая транзакция не завершится.
func (r *txRepo) ReserveEvent(ctx context.Context, ev models.ProcessedEvent) (bool, error) {
	const op = "storage.ReserveEvent"

	query := `INSERT INTO processed_events (event_id, event_type, user_id, raw_payload, received_at)
			  VALUES ($1, $2, NULLIF($3, ''), $4, $5)
			  ON CONFLICT (event_id) DO NOTHING`
	res, err := r.q.ExecContext(ctx, query,
		ev.EventID, ev.EventType, ev.UserID, string(ev.RawPayload), ev.ReceivedAt)
	if err != nil {
		return false, &storage.RepositoryError{Op: op, Err: err}
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, &storage.RepositoryError{Op: op, Err: err}
	}
	return rows == 1, nil
}

// AppendAudit добавляет запись в журнал аудита. Повторная запись той же пары
// (event_id, outcome) не считается ошибкой: inserted == false.
func (s *Storage) AppendAudit(ctx context.Context, entry models.AuditEntry) (bool, error) {
	const op = "storage.AppendAudit"

	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}

	query := `INSERT INTO webhook_audit_log (id, event_id, provider, event_type, user_id, payload, outcome, received_at)
			  VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)
			  ON CONFLICT (event_id, outcome) DO NOTHING`
	res, err := s.DB.ExecContext(ctx, query,
		id, entry.EventID, entry.Provider, entry.EventType, entry.UserID,
		string(entry.Payload), string(entry.Outcome), entry.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rows == 1, nil
}

// CountProcessedEvents возвращает число строк журнала идемпотентности для event_id.
func (s *Storage) CountProcessedEvents(ctx context.Context, eventID string) (int, error) {
	const op = "storage.CountProcessedEvents"

	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_events WHERE event_id = $1`, eventID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
