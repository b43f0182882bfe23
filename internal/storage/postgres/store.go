package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/billsage/backend/internal/models"
	"example.com/billsage/backend/internal/storage"
)

// Store — хранилище счетов поверх пула PostgreSQL.
type Store struct {
	db *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// New создает хранилище поверх готового пула подключений.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Migrate применяет схему базы данных.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schema)
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
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS bills (
	id                UUID PRIMARY KEY,
	user_id           TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	organization_id   TEXT NOT NULL DEFAULT '',
	file_name         TEXT NOT NULL,
	file_type         TEXT NOT NULL,
	file_path         TEXT,
	uploaded_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	status            TEXT NOT NULL,
	provider          TEXT NOT NULL DEFAULT '',
	total_billed      NUMERIC(12,2) NOT NULL DEFAULT 0,
	total_recommended NUMERIC(12,2) NOT NULL DEFAULT 0,
	total_savings     NUMERIC(12,2) NOT NULL DEFAULT 0,
	raw_text          TEXT,
	parsed_json       TEXT,
	gemini_response   TEXT,
	ocr_metadata      TEXT,
	error_message     TEXT
);

CREATE INDEX IF NOT EXISTS idx_bills_user_uploaded ON bills (user_id, uploaded_at DESC);

CREATE TABLE IF NOT EXISTS bill_line_items (
	id                     UUID PRIMARY KEY,
	bill_id                UUID NOT NULL REFERENCES bills(id) ON DELETE CASCADE,
	service_code           TEXT,
	cpt_code               TEXT,
	description            TEXT NOT NULL,
	service_date           TEXT NOT NULL DEFAULT '',
	billed_amount          NUMERIC(12,2) NOT NULL,
	quantity               INTEGER NOT NULL DEFAULT 1,
	provider               TEXT NOT NULL DEFAULT '',
	insurer_allowed        NUMERIC(12,2),
	patient_responsibility NUMERIC(12,2) NOT NULL DEFAULT 0,
	is_overpriced          BOOLEAN NOT NULL DEFAULT FALSE,
	recommended_price      NUMERIC(12,2) NOT NULL DEFAULT 0,
	confidence             NUMERIC(5,2) NOT NULL DEFAULT 0 CHECK (confidence >= 0 AND confidence <= 100),
	reasoning              TEXT NOT NULL DEFAULT '',
	savings                NUMERIC(12,2) NOT NULL DEFAULT 0,
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

	var out models.User
	err := s.db.QueryRow(ctx,
		`INSERT INTO users (id, email, name, role, organization_id, plan)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name
		 RETURNING id, email, name, role, organization_id, plan, bill_upload_count, created_at`,
		user.ID, user.Email, user.Name, user.Role, user.OrganizationID, user.Plan,
	).Scan(&out.ID, &out.Email, &out.Name, &out.Role, &out.OrganizationID, &out.Plan, &out.BillUploadCount, &out.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.User{}, storage.ErrConflict
		}
		return models.User{}, err
	}

	return out, nil
}

// GetUser возвращает пользователя по внешнему идентификатору.
func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	var user models.User

	err := s.db.QueryRow(ctx,
		`SELECT id, email, name, role, organization_id, plan, bill_upload_count, created_at
		 FROM users
		 WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Email, &user.Name, &user.Role, &user.OrganizationID, &user.Plan, &user.BillUploadCount, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user, storage.ErrNotFound
		}
		return user, err
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

	ocrMetadata, err := marshalOCRMetadata(bill.OCRMetadata)
	if err != nil {
		return models.Bill{}, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return models.Bill{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = tx.QueryRow(ctx,
		`INSERT INTO bills (id, user_id, organization_id, file_name, file_type, file_path, status, provider,
		                    total_billed, total_recommended, total_savings,
		                    raw_text, parsed_json, gemini_response, ocr_metadata, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 RETURNING uploaded_at`,
		bill.ID, bill.UserID, bill.OrganizationID, bill.FileName, bill.FileType, bill.FilePath,
		bill.Status, bill.Provider, bill.TotalBilled, bill.TotalRecommended, bill.TotalSavings,
		bill.RawText, bill.ParsedJSON, bill.GeminiResponse, ocrMetadata, bill.ErrorMessage,
	).Scan(&bill.UploadedAt)
	if err != nil {
		return models.Bill{}, translateError(err)
	}

	for idx := range bill.LineItems {
		item := &bill.LineItems[idx]
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.BillID = bill.ID

		_, err = tx.Exec(ctx,
			`INSERT INTO bill_line_items (id, bill_id, service_code, cpt_code, description, service_date,
			                              billed_amount, quantity, provider, insurer_allowed, patient_responsibility,
			                              is_overpriced, recommended_price, confidence, reasoning, savings, sort_order)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			item.ID, item.BillID, item.ServiceCode, item.CPTCode, item.Description, item.Date,
			item.BilledAmount, item.Quantity, item.Provider, item.InsurerAllowed, item.PatientResponsibility,
			item.IsOverpriced, item.RecommendedPrice, item.Confidence, item.Reasoning, item.Savings, idx,
		)
		if err != nil {
			return models.Bill{}, translateError(err)
		}
	}

	cmd, err := tx.Exec(ctx,
		`UPDATE users SET bill_upload_count = bill_upload_count + 1 WHERE id = $1`,
		bill.UserID,
	)
	if err != nil {
		return models.Bill{}, err
	}
	if cmd.RowsAffected() == 0 {
		return models.Bill{}, storage.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Bill{}, err
	}

	return bill, nil
}

// GetBills возвращает счета пользователя со строками, новые первыми.
func (s *Store) GetBills(ctx context.Context, userID string) ([]models.Bill, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, organization_id, file_name, file_type, file_path, uploaded_at, status, provider,
		        total_billed::float8, total_recommended::float8, total_savings::float8,
		        raw_text, parsed_json, gemini_response, ocr_metadata, error_message
		 FROM bills
		 WHERE user_id = $1
		 ORDER BY uploaded_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bills := make([]models.Bill, 0)
	billIDs := make([]uuid.UUID, 0)

	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, bill)
		billIDs = append(billIDs, bill.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(billIDs) == 0 {
		return bills, nil
	}

	items, err := s.listLineItems(ctx, billIDs)
	if err != nil {
		return nil, err
	}

	for i := range bills {
		bills[i].LineItems = items[bills[i].ID]
		if bills[i].LineItems == nil {
			bills[i].LineItems = []models.BillLineItem{}
		}
	}

	return bills, nil
}

// GetBill возвращает счет пользователя со строками.
func (s *Store) GetBill(ctx context.Context, userID string, billID uuid.UUID) (models.Bill, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, user_id, organization_id, file_name, file_type, file_path, uploaded_at, status, provider,
		        total_billed::float8, total_recommended::float8, total_savings::float8,
		        raw_text, parsed_json, gemini_response, ocr_metadata, error_message
		 FROM bills
		 WHERE id = $1 AND user_id = $2`,
		billID, userID,
	)

	bill, err := scanBill(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Bill{}, storage.ErrNotFound
		}
		return models.Bill{}, err
	}

	items, err := s.listLineItems(ctx, []uuid.UUID{bill.ID})
	if err != nil {
		return models.Bill{}, err
	}

	bill.LineItems = items[bill.ID]
	if bill.LineItems == nil {
		bill.LineItems = []models.BillLineItem{}
	}

	return bill, nil
}

// Close закрывает пул подключений.
func (s *Store) Close() {
	s.db.Close()
}

func (s *Store) listLineItems(ctx context.Context, billIDs []uuid.UUID) (map[uuid.UUID][]models.BillLineItem, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, bill_id, service_code, cpt_code, description, service_date,
		        billed_amount::float8, quantity, provider, insurer_allowed::float8, patient_responsibility::float8,
		        is_overpriced, recommended_price::float8, confidence::float8, reasoning, savings::float8
		 FROM bill_line_items
		 WHERE bill_id = ANY($1)
		 ORDER BY bill_id, sort_order`,
		billIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make(map[uuid.UUID][]models.BillLineItem)
	for rows.Next() {
		var item models.BillLineItem

		err := rows.Scan(&item.ID, &item.BillID, &item.ServiceCode, &item.CPTCode, &item.Description, &item.Date,
			&item.BilledAmount, &item.Quantity, &item.Provider, &item.InsurerAllowed, &item.PatientResponsibility,
			&item.IsOverpriced, &item.RecommendedPrice, &item.Confidence, &item.Reasoning, &item.Savings)
		if err != nil {
			return nil, err
		}

		items[item.BillID] = append(items[item.BillID], item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func scanBill(row pgx.Row) (models.Bill, error) {
	var bill models.Bill
	var ocrMetadata *string

	err := row.Scan(&bill.ID, &bill.UserID, &bill.OrganizationID, &bill.FileName, &bill.FileType, &bill.FilePath,
		&bill.UploadedAt, &bill.Status, &bill.Provider,
		&bill.TotalBilled, &bill.TotalRecommended, &bill.TotalSavings,
		&bill.RawText, &bill.ParsedJSON, &bill.GeminiResponse, &ocrMetadata, &bill.ErrorMessage)
	if err != nil {
		return bill, err
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
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return storage.ErrConflict
		case "23503":
			return storage.ErrNotFound
		case "23514":
			return storage.ErrInvalid
		}
	}

	return err
}
