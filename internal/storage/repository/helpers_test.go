package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/entitlement-webhooks/internal/migrations"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/models"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/storage"
)

// setupTestDatabase поднимает PostgreSQL в контейнере и применяет миграции.
func setupTestDatabase(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test requires docker")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err, "failed to start container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Пробуем подключиться несколько раз с ретраями
	var s *Storage
	for range 10 {
		s, err = New(connStr, PoolConfig{MaxOpenConns: 10})
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, err, "Failed to create storage after retries")
	t.Cleanup(func() { _ = s.Close() })

	migrationsPath, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	_, err = migrations.Run(s.DB, migrationsPath)
	require.NoError(t, err, "Failed to apply migrations")

	require.NoError(t, CheckDatabaseReady(ctx, s))
	return s
}

func testEvent(id, userID string) models.ProcessedEvent {
	return models.ProcessedEvent{
		EventID:    id,
		EventType:  "RENEWAL",
		UserID:     userID,
		RawPayload: []byte(`{"event":{"id":"` + id + `","type":"RENEWAL","app_user_id":"` + userID + `"}}`),
		ReceivedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// reserve резервирует событие в отдельной транзакции.
func reserve(t *testing.T, s *Storage, ev models.ProcessedEvent) bool {
	t.Helper()
	var fresh bool
	err := s.InTx(context.Background(), func(tx storage.Tx) error {
		var err error
		fresh, err = tx.ReserveEvent(context.Background(), ev)
		return err
	})
	require.NoError(t, err)
	return fresh
}
