package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"example.com/billsage/backend/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid input")
)

// Store — контракт хранилища счетов. Реализации: PostgreSQL и SQLite.
type Store interface {
	// SyncUser создает пользователя или обновляет email и имя существующего.
	SyncUser(ctx context.Context, user models.User) (models.User, error)
	// GetUser возвращает пользователя по внешнему идентификатору.
	GetUser(ctx context.Context, id string) (models.User, error)
	// CreateBill сохраняет счет вместе со строками и инкрементирует
	// счетчик загрузок пользователя. Все в одной транзакции: либо
	// счет записан целиком, либо не записан вовсе.
	CreateBill(ctx context.Context, bill models.Bill) (models.Bill, error)
	// GetBills возвращает счета пользователя со строками,
	// отсортированные по времени загрузки по убыванию.
	GetBills(ctx context.Context, userID string) ([]models.Bill, error)
	// GetBill возвращает счет пользователя со строками.
	GetBill(ctx context.Context, userID string, billID uuid.UUID) (models.Bill, error)
	Close()
}
