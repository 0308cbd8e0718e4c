// Package jwt выпускает и проверяет JWT токены операторов сервиса.
package jwt

import (
	"time"
)

// RoleAdmin — роль, дающая доступ к операторскому API.
const RoleAdmin = "admin"

// Maker описывает интерфейс для генерации и парсинга JWT токенов.
type Maker interface {
	GenerateToken(operator, role string) (string, error)
	ParseToken(tokenStr string) (*OperatorClaims, error)
}

// MakerImpl подписывает токены HS256 секретным ключом.
type MakerImpl struct {
	secretKey string
	tokenTTL  time.Duration
}

// NewJWTMaker создаёт новый экземпляр MakerImpl на основе секретного ключа и TTL.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
	}
}

var _ Maker = (*MakerImpl)(nil)
