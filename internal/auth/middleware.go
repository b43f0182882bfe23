package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	ContextUserIDKey = "user_id"
	ContextClaimsKey = "session_claims"
)

// SessionMiddleware проверяет сессионный токен и сохраняет user_id в контексте.
func SessionMiddleware(verifier *Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			claims, err := verifier.ParseSessionToken(tokenString)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(ContextUserIDKey, claims.Subject)
			c.Set(ContextClaimsKey, claims)
			return next(c)
		}
	}
}

// UserIDFromContext извлекает идентификатор пользователя из контекста.
func UserIDFromContext(c echo.Context) (string, bool) {
	value := c.Get(ContextUserIDKey)
	userID, ok := value.(string)
	return userID, ok && userID != ""
}

// ClaimsFromContext извлекает claims сессии из контекста.
func ClaimsFromContext(c echo.Context) (*SessionClaims, bool) {
	value := c.Get(ContextClaimsKey)
	claims, ok := value.(*SessionClaims)
	return claims, ok
}
