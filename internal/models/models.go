package models

import (
	"time"

	"github.com/google/uuid"
)

type BillStatus string

type FileType string

type Plan string

const (
	BillStatusPending    BillStatus = "pending"
	BillStatusProcessing BillStatus = "processing"
	BillStatusOCR        BillStatus = "ocr"
	BillStatusAnalyzing  BillStatus = "analyzing"
	BillStatusAnalyzed   BillStatus = "analyzed"
	BillStatusError      BillStatus = "error"

	FileTypePDF   FileType = "pdf"
	FileTypeCSV   FileType = "csv"
	FileTypeImage FileType = "image"

	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// User — пользователь с внешним идентификатором (выдается провайдером аутентификации).
type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	Role            string    `json:"role"`
	OrganizationID  string    `json:"organization_id"`
	CreatedAt       time.Time `json:"created_at"`
	BillUploadCount int       `json:"bill_upload_count"`
	Plan            Plan      `json:"plan"`
}

// Bill — загруженный счет с агрегатами по строкам.
type Bill struct {
	ID               uuid.UUID      `json:"id"`
	UserID           string         `json:"user_id"`
	OrganizationID   string         `json:"organization_id"`
	FileName         string         `json:"file_name"`
	FileType         FileType       `json:"file_type"`
	FilePath         *string        `json:"file_path,omitempty"`
	UploadedAt       time.Time      `json:"uploaded_at"`
	Status           BillStatus     `json:"status"`
	Provider         string         `json:"provider"`
	TotalBilled      float64        `json:"total_billed"`
	TotalRecommended float64        `json:"total_recommended"`
	TotalSavings     float64        `json:"total_savings"`
	LineItems        []BillLineItem `json:"line_items"`
	RawText          *string        `json:"raw_text,omitempty"`
	ParsedJSON       *string        `json:"parsed_json,omitempty"`
	GeminiResponse   *string        `json:"gemini_response,omitempty"`
	OCRMetadata      *OCRMetadata   `json:"ocr_metadata,omitempty"`
	ErrorMessage     *string        `json:"error_message,omitempty"`
}

// BillLineItem — одна строка счета с вердиктом по цене.
type BillLineItem struct {
	ID                    uuid.UUID `json:"id"`
	BillID                uuid.UUID `json:"bill_id"`
	ServiceCode           *string   `json:"service_code"`
	CPTCode               *string   `json:"cpt_code"`
	Description           string    `json:"description"`
	Date                  string    `json:"date"`
	BilledAmount          float64   `json:"billed_amount"`
	Quantity              int       `json:"quantity"`
	Provider              string    `json:"provider"`
	InsurerAllowed        *float64  `json:"insurer_allowed"`
	PatientResponsibility float64   `json:"patient_responsibility"`
	IsOverpriced          bool      `json:"is_overpriced"`
	RecommendedPrice      float64   `json:"recommended_price"`
	Confidence            float64   `json:"confidence"`
	Reasoning             string    `json:"reasoning"`
	Savings               float64   `json:"savings"`
}

// OCRMetadata — служебные данные извлечения документа.
type OCRMetadata struct {
	Confidence     float64 `json:"confidence"`
	ExtractedText  string  `json:"extracted_text,omitempty"`
	ProcessingTime int64   `json:"processing_time_ms"`
	PageCount      int     `json:"page_count"`
}

// IsValidFileType проверяет поддерживаемый тип файла.
func IsValidFileType(value FileType) bool {
	switch value {
	case FileTypePDF, FileTypeCSV, FileTypeImage:
		return true
	default:
		return false
	}
}
