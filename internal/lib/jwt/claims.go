package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken возвращается для токена с неверной подписью, сроком или claims.
var ErrInvalidToken = errors.New("invalid token")

// OperatorClaims описывает данные оператора, хранящиеся в JWT.
type OperatorClaims struct {
	Operator             string `json:"operator"`
	Role                 string `json:"role"`
	jwt.RegisteredClaims        // ExpiresAt, IssuedAt и пр.
}

// GenerateToken создаёт токен оператора с заданной ролью.
func (j *MakerImpl) GenerateToken(operator, role string) (string, error) {
	const op = "jwt.GenerateToken"

	if j.secretKey == "" {
		return "", fmt.Errorf("%s: empty secret key", op)
	}
	now := time.Now()
	claims := OperatorClaims{
		Operator: operator,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operator,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(j.secretKey))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return signed, nil
}

// ParseToken проверяет подпись и срок действия токена и возвращает его claims.
// Пустой секрет отвергает любой токен.
func (j *MakerImpl) ParseToken(tokenStr string) (*OperatorClaims, error) {
	const op = "jwt.ParseToken"

	if j.secretKey == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	token, err := jwt.ParseWithClaims(tokenStr, &OperatorClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(j.secretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	return claims, nil
}
