// Package sqlite реализует хранилище счетов поверх SQLite без CGO.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"example.com/billsage/backend/internal/models"
	"example.com/billsage/backend/internal/storage"
)

// Store — хранилище счетов поверх SQLite. Используется как локальный
// бэкенд без внешней базы данных.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New открывает базу по пути, создает каталог и применяет миграции.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id                TEXT PRIMARY KEY,
	email             TEXT NOT NULL,
	name              TEXT NOT NULL DEFAULT '',
	role              TEXT NOT NULL DEFAULT 'user',
	organization_id   TEXT NOT NULL DEFAULT '',
	plan              TEXT NOT NULL DEFAULT 'free',
	bill_upload_count INTEGER NOT NULL DEFAULT 0,
	created_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bills (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	organization_id   TEXT NOT NULL DEFAULT '',
	file_name         TEXT NOT NULL,
	file_type         TEXT NOT NULL,
	file_path         TEXT,
	uploaded_at       TEXT NOT NULL,
	status            TEXT NOT NULL,
	provider          TEXT NOT NULL DEFAULT '',
	total_billed      REAL NOT NULL DEFAULT 0,
	total_recommended REAL NOT NULL DEFAULT 0,
	total_savings     REAL NOT NULL DEFAULT 0,
	raw_text          TEXT,
	parsed_json       TEXT,
	gemini_response   TEXT,
	ocr_metadata      TEXT,
	error_message     TEXT
);

CREATE INDEX IF NOT EXISTS idx_bills_user_uploaded ON bills (user_id, uploaded_at DESC);

CREATE TABLE IF NOT EXISTS bill_line_items (
	id                     TEXT PRIMARY KEY,
	bill_id                TEXT NOT NULL REFERENCES bills(id) ON DELETE CASCADE,
	service_code           TEXT,
	cpt_code               TEXT,
	description            TEXT NOT NULL,
	service_date           TEXT NOT NULL DEFAULT '',
	billed_amount          REAL NOT NULL,
	quantity               INTEGER NOT NULL DEFAULT 1,
	provider               TEXT NOT NULL DEFAULT '',
	insurer_allowed        REAL,
	patient_responsibility REAL NOT NULL DEFAULT 0,
	is_overpriced          INTEGER NOT NULL DEFAULT 0,
	recommended_price      REAL NOT NULL DEFAULT 0,
	confidence             REAL NOT NULL DEFAULT 0 CHECK (confidence >= 0 AND confidence <= 100),
	reasoning              TEXT NOT NULL DEFAULT '',
	savings                REAL NOT NULL DEFAULT 0,
	sort_order             INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_line_items_bill ON bill_line_items (bill_id, sort_order);
`

// SyncUser создает пользователя или обновляет профиль существующего.
func (s *Store) SyncUser(ctx context.Context, user models.User) (models.User, error) {
	if user.ID == "" || user.Email == "" {
		return models.User{}, storage.ErrInvalid
	}

	if user.Role == "" {
		user.Role = "user"
	}
	if user.Plan == "" {
		user.Plan = models.PlanFree
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, role, organization_id, plan, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET email = excluded.email, name = excluded.name`,
		user.ID, user.Email, user.Name, user.Role, user.OrganizationID, user.Plan,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return models.User{}, translateError(err)
	}

	return s.GetUser(ctx, user.ID)
}

// GetUser возвращает пользователя по внешнему идентификатору.
func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	var user models.User
	var createdAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, role, organization_id, plan, bill_upload_count, created_at
		 FROM users
		 WHERE id = ?`,
		id,
	).Scan(&user.ID, &user.Email, &user.Name, &user.Role, &user.OrganizationID, &user.Plan, &user.BillUploadCount, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user, storage.ErrNotFound
		}
		return user, err
	}

	user.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return user, fmt.Errorf("parse created_at: %w", err)
	}

	return user, nil
}

// CreateBill сохраняет счет, его строки и инкремент счетчика загрузок
// в одной транзакции.
func (s *Store) CreateBill(ctx context.Context, bill models.Bill) (models.Bill, error) {
	if bill.UserID == "" || bill.FileName == "" {
		return models.Bill{}, storage.ErrInvalid
	}
	if !models.IsValidFileType(bill.FileType) {
		return models.Bill{}, storage.ErrInvalid
	}

	if bill.ID == uuid.Nil {
		bill.ID = uuid.New()
	}
	if bill.UploadedAt.IsZero() {
		bill.UploadedAt = time.Now().UTC()
	}

	ocrMetadata, err := marshalOCRMetadata(bill.OCRMetadata)
	if err != nil {
		return models.Bill{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Bill{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO bills (id, user_id, organization_id, file_name, file_type, file_path, uploaded_at, status, provider,
		                    total_billed, total_recommended, total_savings,
		                    raw_text, parsed_json, gemini_response, ocr_metadata, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		bill.ID.String(), bill.UserID, bill.OrganizationID, bill.FileName, bill.FileType, bill.FilePath,
		bill.UploadedAt.Format(time.RFC3339Nano), bill.Status, bill.Provider,
		bill.TotalBilled, bill.TotalRecommended, bill.TotalSavings,
		bill.RawText, bill.ParsedJSON, bill.GeminiResponse, ocrMetadata, bill.ErrorMessage,
	)
	if err != nil {
		return models.Bill{}, translateError(err)
	}

	for idx := range bill.LineItems {
		item := &bill.LineItems[idx]
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.BillID = bill.ID

		_, err = tx.ExecContext(ctx,
			`INSERT INTO bill_line_items (id, bill_id, service_code, cpt_code, description, service_date,
			                              billed_amount, quantity, provider, insurer_allowed, patient_responsibility,
			                              is_overpriced, recommended_price, confidence, reasoning, savings, sort_order)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID.String(), item.BillID.String(), item.ServiceCode, item.CPTCode, item.Description, item.Date,
			item.BilledAmount, item.Quantity, item.Provider, item.InsurerAllowed, item.PatientResponsibility,
			item.IsOverpriced, item.RecommendedPrice, item.Confidence, item.Reasoning, item.Savings, idx,
		)
		if err != nil {
			return models.Bill{}, translateError(err)
		}
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE users SET bill_upload_count = bill_upload_count + 1 WHERE id = ?`,
		bill.UserID,
	)
	if err != nil {
		return models.Bill{}, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return models.Bill{}, err
	}
	if affected == 0 {
		return models.Bill{}, storage.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return models.Bill{}, err
	}

	return bill, nil
}

// GetBills возвращает счета пользователя со строками, новые первыми.
func (s *Store) GetBills(ctx context.Context, userID string) ([]models.Bill, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, organization_id, file_name, file_type, file_path, uploaded_at, status, provider,
		        total_billed, total_recommended, total_savings,
		        raw_text, parsed_json, gemini_response, ocr_metadata, error_message
		 FROM bills
		 WHERE user_id = ?
		 ORDER BY uploaded_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bills := make([]models.Bill, 0)
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, bill)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range bills {
		items, err := s.listLineItems(ctx, bills[i].ID)
		if err != nil {
			return nil, err
		}
		bills[i].LineItems = items
	}

	return bills, nil
}

// GetBill возвращает счет пользователя со строками.
func (s *Store) GetBill(ctx context.Context, userID string, billID uuid.UUID) (models.Bill, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, organization_id, file_name, file_type, file_path, uploaded_at, status, provider,
		        total_billed, total_recommended, total_savings,
		        raw_text, parsed_json, gemini_response, ocr_metadata, error_message
		 FROM bills
		 WHERE id = ? AND user_id = ?`,
		billID.String(), userID,
	)

	bill, err := scanBill(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Bill{}, storage.ErrNotFound
		}
		return models.Bill{}, err
	}

	bill.LineItems, err = s.listLineItems(ctx, bill.ID)
	if err != nil {
		return models.Bill{}, err
	}

	return bill, nil
}

// Close закрывает базу данных.
func (s *Store) Close() {
	_ = s.db.Close()
}

func (s *Store) listLineItems(ctx context.Context, billID uuid.UUID) ([]models.BillLineItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bill_id, service_code, cpt_code, description, service_date,
		        billed_amount, quantity, provider, insurer_allowed, patient_responsibility,
		        is_overpriced, recommended_price, confidence, reasoning, savings
		 FROM bill_line_items
		 WHERE bill_id = ?
		 ORDER BY sort_order`,
		billID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]models.BillLineItem, 0)
	for rows.Next() {
		var item models.BillLineItem
		var id, parentID string

		err := rows.Scan(&id, &parentID, &item.ServiceCode, &item.CPTCode, &item.Description, &item.Date,
			&item.BilledAmount, &item.Quantity, &item.Provider, &item.InsurerAllowed, &item.PatientResponsibility,
			&item.IsOverpriced, &item.RecommendedPrice, &item.Confidence, &item.Reasoning, &item.Savings)
		if err != nil {
			return nil, err
		}

		item.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse line item id: %w", err)
		}
		item.BillID, err = uuid.Parse(parentID)
		if err != nil {
			return nil, fmt.Errorf("parse bill id: %w", err)
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(row rowScanner) (models.Bill, error) {
	var bill models.Bill
	var id, uploadedAt string
	var ocrMetadata *string

	err := row.Scan(&id, &bill.UserID, &bill.OrganizationID, &bill.FileName, &bill.FileType, &bill.FilePath,
		&uploadedAt, &bill.Status, &bill.Provider,
		&bill.TotalBilled, &bill.TotalRecommended, &bill.TotalSavings,
		&bill.RawText, &bill.ParsedJSON, &bill.GeminiResponse, &ocrMetadata, &bill.ErrorMessage)
	if err != nil {
		return bill, err
	}

	bill.ID, err = uuid.Parse(id)
	if err != nil {
		return bill, fmt.Errorf("parse bill id: %w", err)
	}

	bill.UploadedAt, err = time.Parse(time.RFC3339Nano, uploadedAt)
	if err != nil {
		return bill, fmt.Errorf("parse uploaded_at: %w", err)
	}

	if ocrMetadata != nil {
		var meta models.OCRMetadata
		if err := json.Unmarshal([]byte(*ocrMetadata), &meta); err != nil {
			return bill, err
		}
		bill.OCRMetadata = &meta
	}

	return bill, nil
}

func marshalOCRMetadata(meta *models.OCRMetadata) (*string, error) {
	if meta == nil {
		return nil, nil
	}

	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}

	value := string(raw)
	return &value, nil
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return storage.ErrNotFound
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return storage.ErrConflict
	case strings.Contains(msg, "CHECK constraint failed"):
		return storage.ErrInvalid
	}

	return err
}
