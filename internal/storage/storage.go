// Package storage описывает контракт долговременного хранилища сервиса:
// журнал идемпотентности, репозиторий записей Entitlement и журнал аудита.
// Реализации находятся в подпакетах repository (PostgreSQL) и memory.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/entitlement-webhooks/internal/models"
)

// ErrNotFound возвращается, если запись не найдена.
var ErrNotFound = errors.New("not found")

// RepositoryError — сбой хранилища во время операции. Приводит к ответу 500,
// чтобы провайдер повторил доставку.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// Tx — операции, выполняемые в одной транзакции: резервирование события
// и изменение записи пользователя фиксируются вместе или не фиксируются вовсе.
type Tx interface {
	// ReserveEvent атомарно вставляет событие, если его ещё нет.
	// fresh == false означает, что событие уже обработано.
	ReserveEvent(ctx context.Context, ev models.ProcessedEvent) (fresh bool, err error)
	// GetOrCreateEntitlement возвращает запись пользователя, создавая её со значениями
	// по умолчанию, и блокирует её до конца транзакции.
	GetOrCreateEntitlement(ctx context.Context, userID string) (models.Entitlement, error)
	// UpdateEntitlement сохраняет новое состояние записи и возвращает сохранённую запись.
	UpdateEntitlement(ctx context.Context, e models.Entitlement) (models.Entitlement, error)
}

// TxRunner выполняет fn в транзакции. Ошибка fn откатывает транзакцию.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
