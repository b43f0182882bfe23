package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"example.com/billsage/backend/internal/auth"
	"example.com/billsage/backend/internal/dashboard"
	"example.com/billsage/backend/internal/storage"
)

type StatsHandler struct {
	Store storage.Store
}

// NewStatsHandler создает обработчик сводной статистики.
func NewStatsHandler(store storage.Store) *StatsHandler {
	return &StatsHandler{Store: store}
}

// Dashboard возвращает сводку по счетам пользователя.
func (h *StatsHandler) Dashboard(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	bills, err := h.Store.GetBills(c.Request().Context(), userID)
	if err != nil {
		return serverError(c)
	}

	stats := dashboard.BuildStats(bills, time.Now().UTC())
	return c.JSON(http.StatusOK, stats)
}
