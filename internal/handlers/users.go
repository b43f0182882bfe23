package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"example.com/billsage/backend/internal/auth"
	"example.com/billsage/backend/internal/models"
	"example.com/billsage/backend/internal/storage"
)

type UserHandler struct {
	Store storage.Store
}

// NewUserHandler создает обработчик профиля пользователя.
func NewUserHandler(store storage.Store) *UserHandler {
	return &UserHandler{Store: store}
}

type SyncUserRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
	Name  string `json:"name" validate:"omitempty,max=200"`
}

// Sync создает локальную запись пользователя по данным сессии провайдера
// аутентификации или обновляет профиль существующей.
func (h *UserHandler) Sync(c echo.Context) error {
	claims, ok := auth.ClaimsFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req SyncUserRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = claims.Email
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = claims.Name
	}

	if email == "" {
		return badRequest(c, "email is required")
	}

	user, err := h.Store.SyncUser(c.Request().Context(), models.User{
		ID:    claims.Subject,
		Email: email,
		Name:  name,
	})
	if err != nil {
		if errors.Is(err, storage.ErrInvalid) {
			return badRequest(c, "invalid user data")
		}
		return serverError(c)
	}

	return c.JSON(http.StatusOK, user)
}

// Me возвращает профиль текущего пользователя.
func (h *UserHandler) Me(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	user, err := h.Store.GetUser(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return notFound(c, "user not found")
		}
		return serverError(c)
	}

	return c.JSON(http.StatusOK, user)
}
