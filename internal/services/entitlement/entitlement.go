// Package entitlement отдаёт текущую запись пользователя операторскому API.
// Чтение идёт через кэш; после изменения записи вебхуком в кэш пишется новая версия.
// Запись в кэш сравнивает UpdatedAt, поэтому чтение, начатое до изменения,
// не возвращает в кэш устаревшую запись.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/entitlement-webhooks/internal/cache"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/models"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/storage"
)

// Repository читает запись пользователя.
type Repository interface {
	GetEntitlement(ctx context.Context, userID string) (*models.Entitlement, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	StoreEntitlement(ctx context.Context, e models.Entitlement, expiration time.Duration) (bool, error)
	Invalidate(ctx context.Context, key string) error
}

// NoopCache ничего не хранит. Используется, когда Redis не настроен.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string, any) (bool, error) { return false, nil }
func (NoopCache) StoreEntitlement(context.Context, models.Entitlement, time.Duration) (bool, error) {
	return false, nil
}
func (NoopCache) Invalidate(context.Context, string) error { return nil }

// Service читает записи с кэшированием.
type Service struct {
	repo  Repository
	cache Cache
	ttl   time.Duration
	log   *slog.Logger
}

// NewService создаёт Service. Если c == nil, кэш не используется.
func NewService(repo Repository, c Cache, ttl time.Duration, log *slog.Logger) *Service {
	if c == nil {
		c = NoopCache{}
	}
	return &Service{repo: repo, cache: c, ttl: ttl, log: log}
}

// Get возвращает запись пользователя или storage.ErrNotFound.
// Ошибки кэша не прерывают чтение из хранилища.
func (s *Service) Get(ctx context.Context, userID string) (*models.Entitlement, error) {
	const op = "entitlement.Get"
	log := s.log.With(slog.String("op", op), slog.String("user_id", userID))
	key := cache.EntitlementKey(userID)

	var cached models.Entitlement
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		log.Warn("failed to read entitlement from cache", sl.Err(err))
	}
	if found {
		return &cached, nil
	}

	e, err := s.repo.GetEntitlement(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.cache.StoreEntitlement(ctx, *e, s.ttl); err != nil {
		log.Warn("failed to cache entitlement", sl.Err(err))
	}
	return e, nil
}

// Refresh кладёт в кэш запись после изменения. Если записать не удалось,
// ключ удаляется, чтобы следующее чтение пошло в хранилище.
func (s *Service) Refresh(ctx context.Context, e models.Entitlement) error {
	const op = "entitlement.Refresh"
	if _, err := s.cache.StoreEntitlement(ctx, e, s.ttl); err != nil {
		if invErr := s.cache.Invalidate(ctx, cache.EntitlementKey(e.UserID)); invErr != nil {
			s.log.Warn("failed to invalidate entitlement cache", slog.String("op", op), sl.Err(invErr))
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
