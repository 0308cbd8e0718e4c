// Package repository реализует хранилище сервиса на основе PostgreSQL:
// журнал идемпотентности, записи Entitlement и журнал аудита.
//
// Резервирование события и изменение записи пользователя выполняются в одной
// транзакции (см. InTx), поэтому повторная доставка не может применить
// изменение дважды, а сбой изменения не оставляет зарезервированного события.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/magabrotheeeer/entitlement-webhooks/internal/storage"
)

// Storage инкапсулирует пул соединений с PostgreSQL.
type Storage struct {
	DB *sql.DB
}

// PoolConfig задаёт параметры пула соединений.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// New создаёт подключение к PostgreSQL и проверяет его.
func New(storageConnectionString string, pool PoolConfig) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if err = db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		DB: db,
	}, nil
}

// Ping выполняет тривиальный запрос к базе. Используется проверкой живости.
func (s *Storage) Ping(ctx context.Context) error {
	const op = "storage.Ping"

	var one int
	if err := s.DB.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close закрывает пул соединений.
func (s *Storage) Close() error {
	return s.DB.Close()
}

// CheckDatabaseReady проверяет, что миграции применены.
func CheckDatabaseReady(ctx context.Context, s *Storage) error {
	var exists bool
	err := s.DB.QueryRowContext(ctx, `SELECT EXISTS (
        SELECT FROM information_schema.tables
        WHERE table_name = 'processed_events'
    )`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("required table processed_events query error: %w", err)
	}
	if !exists {
		return fmt.Errorf("required table processed_events missing")
	}
	return nil
}

// InTx выполняет fn в транзакции READ COMMITTED. Любая ошибка fn, как и паника,
// откатывает транзакцию вместе с зарезервированным событием.
func (s *Storage) InTx(ctx context.Context, fn func(tx storage.Tx) error) (err error) {
	const op = "storage.InTx"

	sqlTx, err := s.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return &storage.RepositoryError{Op: op, Err: err}
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(&txRepo{q: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return &storage.RepositoryError{Op: op, Err: err}
	}
	return nil
}

// querier покрывает *sql.DB и *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// txRepo реализует storage.Tx поверх открытой транзакции.
type txRepo struct {
	q querier
}

var _ storage.Tx = (*txRepo)(nil)
var _ storage.TxRunner = (*Storage)(nil)
