// Package memory — хранилище в памяти с той же семантикой транзакций,
// что и PostgreSQL: изменения внутри InTx видны только после успешного завершения fn.
// Используется в тестах и при локальном запуске без базы.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/entitlement-webhooks/internal/models"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/storage"
)

// Op — операция хранилища, для которой можно запланировать сбой.
type Op string

const (
	OpReserve     Op = "reserve"
	OpGetOrCreate Op = "get_or_create"
	OpUpdate      Op = "update"
	OpCommit      Op = "commit"
	OpAudit       Op = "audit"
	OpPing        Op = "ping"
	OpGet         Op = "get"
)

// Storage хранит данные в map под одним мьютексом.
// Транзакции выполняются последовательно.
type Storage struct {
	txMu sync.Mutex

	mu           sync.Mutex
	entitlements map[string]models.Entitlement
	events       map[string]models.ProcessedEvent
	audit        []models.AuditEntry
	faults       map[Op][]error
	now          func() time.Time
}

// New создаёт пустое хранилище.
func New() *Storage {
	return &Storage{
		entitlements: make(map[string]models.Entitlement),
		events:       make(map[string]models.ProcessedEvent),
		faults:       make(map[Op][]error),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// FailNext планирует ошибку err для следующего вызова op.
func (s *Storage) FailNext(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = append(s.faults[op], err)
}

func (s *Storage) fault(op Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.faults[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	s.faults[op] = queue[1:]
	return err
}

// InTx выполняет fn над копией изменений и применяет их, только если fn и фиксация успешны.
func (s *Storage) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	const op = "memory.InTx"

	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return &storage.RepositoryError{Op: op, Err: err}
	}

	tx := &stagedTx{
		s:            s,
		entitlements: make(map[string]models.Entitlement),
		events:       make(map[string]models.ProcessedEvent),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := s.fault(OpCommit); err != nil {
		return &storage.RepositoryError{Op: op, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ev := range tx.events {
		s.events[id] = ev
	}
	for id, e := range tx.entitlements {
		s.entitlements[id] = e
	}
	return nil
}

// Ping проверяет доступность хранилища.
func (s *Storage) Ping(ctx context.Context) error {
	if err := s.fault(OpPing); err != nil {
		return fmt.Errorf("memory.Ping: %w", err)
	}
	return ctx.Err()
}

// GetEntitlement возвращает копию записи или storage.ErrNotFound.
func (s *Storage) GetEntitlement(_ context.Context, userID string) (*models.Entitlement, error) {
	if err := s.fault(OpGet); err != nil {
		return nil, &storage.RepositoryError{Op: "memory.GetEntitlement", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entitlements[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &e, nil
}

// AppendAudit добавляет запись аудита; дубликат пары (event_id, outcome) игнорируется.
func (s *Storage) AppendAudit(_ context.Context, entry models.AuditEntry) (bool, error) {
	if err := s.fault(OpAudit); err != nil {
		return false, fmt.Errorf("memory.AppendAudit: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.audit {
		if existing.EventID == entry.EventID && existing.Outcome == entry.Outcome {
			return false, nil
		}
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	s.audit = append(s.audit, entry)
	return true, nil
}

// CountProcessedEvents возвращает число записей журнала идемпотентности для eventID.
func (s *Storage) CountProcessedEvents(_ context.Context, eventID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[eventID]; ok {
		return 1, nil
	}
	return 0, nil
}

// ProcessedEvents возвращает число зарезервированных событий.
func (s *Storage) ProcessedEvents() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// AuditEntries возвращает копию журнала аудита.
func (s *Storage) AuditEntries() []models.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}

// stagedTx накапливает изменения одной транзакции.
type stagedTx struct {
	s            *Storage
	entitlements map[string]models.Entitlement
	events       map[string]models.ProcessedEvent
}

func (tx *stagedTx) ReserveEvent(_ context.Context, ev models.ProcessedEvent) (bool, error) {
	if err := tx.s.fault(OpReserve); err != nil {
		return false, &storage.RepositoryError{Op: "memory.ReserveEvent", Err: err}
	}
	if _, ok := tx.events[ev.EventID]; ok {
		return false, nil
	}
	tx.s.mu.Lock()
	_, exists := tx.s.events[ev.EventID]
	tx.s.mu.Unlock()
	if exists {
		return false, nil
	}
	tx.events[ev.EventID] = ev
	return true, nil
}

func (tx *stagedTx) GetOrCreateEntitlement(_ context.Context, userID string) (models.Entitlement, error) {
	if err := tx.s.fault(OpGetOrCreate); err != nil {
		return models.Entitlement{}, &storage.RepositoryError{Op: "memory.GetOrCreateEntitlement", Err: err}
	}
	if e, ok := tx.entitlements[userID]; ok {
		return e, nil
	}
	tx.s.mu.Lock()
	e, ok := tx.s.entitlements[userID]
	tx.s.mu.Unlock()
	if !ok {
		e = models.NewEntitlement(userID, tx.s.now())
	}
	tx.entitlements[userID] = e
	return e, nil
}

func (tx *stagedTx) UpdateEntitlement(_ context.Context, e models.Entitlement) (models.Entitlement, error) {
	const op = "memory.UpdateEntitlement"
	if err := tx.s.fault(OpUpdate); err != nil {
		return models.Entitlement{}, &storage.RepositoryError{Op: op, Err: err}
	}
	current, ok := tx.entitlements[e.UserID]
	if !ok {
		return models.Entitlement{}, &storage.RepositoryError{
			Op:  op,
			Err: fmt.Errorf("entitlement %q: %w", e.UserID, storage.ErrNotFound),
		}
	}
	e.CreatedAt = current.CreatedAt
	e.UpdatedAt = tx.s.now()
	if !e.UpdatedAt.After(current.UpdatedAt) {
		e.UpdatedAt = current.UpdatedAt.Add(time.Microsecond)
	}
	tx.entitlements[e.UserID] = e
	return e, nil
}

var _ storage.TxRunner = (*Storage)(nil)
var _ storage.Tx = (*stagedTx)(nil)
