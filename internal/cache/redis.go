// Package cache — кэш записей Entitlement в Redis для операторского API.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/entitlement-webhooks/internal/config"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/models"
)

// storeRetries ограничивает повторы оптимистичной транзакции при конкурентной записи ключа.
const storeRetries = 3

// Cache хранит значения в Redis в виде JSON.
type Cache struct {
	Db *redis.Client
}

// InitServer подключается к Redis и проверяет соединение.
func InitServer(ctx context.Context, cfg config.RedisConnection) (*Cache, error) {
	const op = "cache.InitServer"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Cache{Db: db}, nil
}

// EntitlementKey возвращает ключ кэша записи пользователя.
func EntitlementKey(userID string) string {
	return "entitlement:" + userID
}

// Get читает значение key в result. found == false, если ключа нет.
func (c *Cache) Get(ctx context.Context, key string, result any) (bool, error) {
	const op = "cache.Get"
	val, err := c.Db.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if err = json.Unmarshal(val, result); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// StoreEntitlement сохраняет запись на время expiration, если в кэше нет версии
// с тем же или более поздним UpdatedAt. stored == false, если запись не записана.
// Ключ читается и пишется под WATCH, поэтому устаревшее чтение из базы
// не перезаписывает более свежую запись.
func (c *Cache) StoreEntitlement(ctx context.Context, e models.Entitlement, expiration time.Duration) (bool, error) {
	const op = "cache.StoreEntitlement"
	key := EntitlementKey(e.UserID)
	jsonData, err := json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	var stored bool
	txf := func(tx *redis.Tx) error {
		stored = false
		val, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			var current models.Entitlement
			if json.Unmarshal(val, &current) == nil && !current.UpdatedAt.Before(e.UpdatedAt) {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, jsonData, expiration)
			return nil
		})
		if err == nil {
			stored = true
		}
		return err
	}

	for range storeRetries {
		err = c.Db.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return stored, nil
}

// Invalidate удаляет ключ. Отсутствие ключа не ошибка.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	const op = "cache.Invalidate"
	if err := c.Db.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close закрывает клиент Redis.
func (c *Cache) Close() error {
	return c.Db.Close()
}
