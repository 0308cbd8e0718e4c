package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/entitlement-webhooks/internal/models"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/storage"
)

const entitlementColumns = `user_id, is_pro, product_id, expires_at, will_renew, billing_issue, created_at, updated_at`

// GetOrCreateEntitlement возвращает запись пользователя, создавая её при первом событии.
// SELECT ... FOR UPDATE удерживает блокировку строки до конца транзакции,
// поэтому изменения одного пользователя выполняются последовательно.
func (r *txRepo) GetOrCreateEntitlement(ctx context.Context, userID string) (models.Entitlement, error) {
	const op = "storage.GetOrCreateEntitlement"

	_, err := r.q.ExecContext(ctx, `INSERT INTO entitlements (user_id)
			  VALUES ($1)
			  ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return models.Entitlement{}, &storage.RepositoryError{Op: op, Err: err}
	}

	query := `SELECT ` + entitlementColumns + `
			  FROM entitlements
			  WHERE user_id = $1
			  FOR UPDATE`
	e, err := scanEntitlement(r.q.QueryRowContext(ctx, query, userID))
	if err != nil {
		return models.Entitlement{}, &storage.RepositoryError{Op: op, Err: err}
	}
	return e, nil
}

// UpdateEntitlement перезаписывает поля подписки и возвращает сохранённую запись.
// updated_at берётся из clock_timestamp(), а не NOW(): строка заблокирована FOR UPDATE,
// поэтому версии одного пользователя возрастают в порядке фиксации.
func (r *txRepo) UpdateEntitlement(ctx context.Context, e models.Entitlement) (models.Entitlement, error) {
	const op = "storage.UpdateEntitlement"

	query := `UPDATE entitlements
			  SET is_pro = $2, product_id = $3, expires_at = $4,
			      will_renew = $5, billing_issue = $6, updated_at = clock_timestamp()
			  WHERE user_id = $1
			  RETURNING ` + entitlementColumns
	saved, err := scanEntitlement(r.q.QueryRowContext(ctx, query,
		e.UserID, e.IsPro, e.ProductID, e.ExpiresAt, e.WillRenew, e.BillingIssue))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = fmt.Errorf("entitlement %q: %w", e.UserID, storage.ErrNotFound)
		}
		return models.Entitlement{}, &storage.RepositoryError{Op: op, Err: err}
	}
	return saved, nil
}

// GetEntitlement читает запись пользователя вне транзакции.
func (s *Storage) GetEntitlement(ctx context.Context, userID string) (*models.Entitlement, error) {
	const op = "storage.GetEntitlement"

	query := `SELECT ` + entitlementColumns + `
			  FROM entitlements
			  WHERE user_id = $1`
	e, err := scanEntitlement(s.DB.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, &storage.RepositoryError{Op: op, Err: err}
	}
	return &e, nil
}

func scanEntitlement(row *sql.Row) (models.Entitlement, error) {
	var (
		e         models.Entitlement
		productID sql.NullString
		expiresAt sql.NullTime
	)
	if err := row.Scan(&e.UserID, &e.IsPro, &productID, &expiresAt,
		&e.WillRenew, &e.BillingIssue, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return models.Entitlement{}, err
	}
	if productID.Valid {
		e.ProductID = &productID.String
	}
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		e.ExpiresAt = &t
	}
	return e, nil
}
