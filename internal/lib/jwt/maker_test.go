package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test_secret_key_1234567890"

func TestJWTMaker_GenerateAndParseToken_ValidCases(t *testing.T) {
	tokenTTL := 15 * time.Minute
	maker := NewJWTMaker(testSecret, tokenTTL)

	tests := []struct {
		name     string
		operator string
		role     string
	}{
		{name: "администратор", operator: "support@example.com", role: RoleAdmin},
		{name: "только чтение", operator: "viewer", role: "viewer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := maker.GenerateToken(tt.operator, tt.role)
			require.NoError(t, err)
			assert.NotEmpty(t, token)

			claims, err := maker.ParseToken(token)
			require.NoError(t, err)

			assert.Equal(t, tt.operator, claims.Operator)
			assert.Equal(t, tt.operator, claims.Subject)
			assert.Equal(t, tt.role, claims.Role)
			assert.WithinDuration(t, time.Now(), claims.IssuedAt.Time, time.Second)
			assert.WithinDuration(t, time.Now().Add(tokenTTL), claims.ExpiresAt.Time, time.Second)
		})
	}
}

func TestJWTMaker_ParseToken_InvalidTokens(t *testing.T) {
	maker := NewJWTMaker(testSecret, 15*time.Minute)

	validToken, err := maker.GenerateToken("op", RoleAdmin)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "пустой токен", token: ""},
		{name: "мусор", token: "invalid.token.here"},
		{name: "истёкший токен", token: tokenFrom(t, NewJWTMaker(testSecret, -time.Hour))},
		{name: "чужой секрет", token: tokenFrom(t, NewJWTMaker("wrong_secret_key", time.Minute))},
		{name: "подделанный токен", token: validToken + "tampered"},
		{name: "другой алгоритм", token: hs512Token(t)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := maker.ParseToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

func TestJWTMaker_EmptySecret(t *testing.T) {
	maker := NewJWTMaker("", time.Minute)

	_, err := maker.GenerateToken("op", RoleAdmin)
	assert.Error(t, err)

	forged := tokenFrom(t, NewJWTMaker("anything", time.Minute))
	_, err = maker.ParseToken(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func tokenFrom(t *testing.T, maker *MakerImpl) string {
	t.Helper()
	token, err := maker.GenerateToken("op", RoleAdmin)
	require.NoError(t, err)
	return token
}

func hs512Token(t *testing.T) string {
	t.Helper()
	claims := OperatorClaims{
		Operator: "op",
		Role:     RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}
