package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims — утверждения сессионного токена, выданного провайдером
// аутентификации. Subject содержит внешний идентификатор пользователя.
type SessionClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// Verifier проверяет сессионные токены по общему секрету.
// Токены выпускает внешний провайдер, сервис их только валидирует.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier инициализирует проверку сессионных токенов.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		issuer: issuer,
	}
}

// ParseSessionToken валидирует токен и возвращает claims.
func (v *Verifier) ParseSessionToken(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}), jwt.WithIssuer(v.issuer))
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("token is invalid")
	}

	if claims.Subject == "" {
		return nil, errors.New("token subject is empty")
	}

	return claims, nil
}
