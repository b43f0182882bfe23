package handlers

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/billsage/backend/internal/ai"
	"example.com/billsage/backend/internal/analysis"
	"example.com/billsage/backend/internal/auth"
	"example.com/billsage/backend/internal/files"
	"example.com/billsage/backend/internal/ingest"
	"example.com/billsage/backend/internal/metrics"
	"example.com/billsage/backend/internal/models"
	"example.com/billsage/backend/internal/notifications"
	"example.com/billsage/backend/internal/storage"
)

const uploadFieldName = "file"

type BillHandler struct {
	Store         storage.Store
	Files         *files.Store
	AI            *ai.Service
	Analyzer      *analysis.Analyzer
	Notifier      *notifications.Hub
	Metrics       *metrics.Metrics
	MaxFileSize   int64
	FreePlanLimit int
}

// NewBillHandler создает обработчик загрузки и анализа счетов.
func NewBillHandler(store storage.Store, fileStore *files.Store, aiService *ai.Service, analyzer *analysis.Analyzer, notifier *notifications.Hub, m *metrics.Metrics, maxFileSize int64, freePlanLimit int) *BillHandler {
	return &BillHandler{
		Store:         store,
		Files:         fileStore,
		AI:            aiService,
		Analyzer:      analyzer,
		Notifier:      notifier,
		Metrics:       m,
		MaxFileSize:   maxFileSize,
		FreePlanLimit: freePlanLimit,
	}
}

type InspectCSVResponse struct {
	Headers          []string       `json:"headers"`
	SuggestedMapping ingest.Mapping `json:"suggestedMapping"`
	RowCount         int            `json:"rowCount"`
}

// InspectCSV возвращает заголовки CSV и предложенное отображение колонок.
// Счет на этом шаге не создается: пользователь сначала подтверждает отображение.
func (h *BillHandler) InspectCSV(c echo.Context) error {
	if _, ok := auth.UserIDFromContext(c); !ok {
		return unauthorized(c)
	}

	data, _, err := h.readUpload(c)
	if err != nil {
		return err
	}

	headers, rows := ingest.Parse(string(data))
	if len(headers) == 0 {
		return badRequest(c, "csv has no header row")
	}

	return c.JSON(http.StatusOK, InspectCSVResponse{
		Headers:          headers,
		SuggestedMapping: ingest.AutoMap(headers),
		RowCount:         len(rows),
	})
}

// AnalyzeCSV разбирает CSV по подтвержденному отображению, выносит
// вердикты по строкам и сохраняет готовый счет.
func (h *BillHandler) AnalyzeCSV(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	if err := h.checkPlanLimit(c, userID); err != nil {
		return err
	}

	data, fileName, err := h.readUpload(c)
	if err != nil {
		return err
	}

	headers, rows := ingest.Parse(string(data))
	if len(headers) == 0 {
		return badRequest(c, "csv has no header row")
	}
	if len(rows) == 0 {
		return badRequest(c, "csv contains no data rows")
	}

	mapping := ingest.AutoMap(headers)
	if raw := strings.TrimSpace(c.FormValue("mapping")); raw != "" {
		mapping = ingest.Mapping{}
		if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
			return badRequest(c, "invalid column mapping")
		}
	}
	if err := mapping.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	items := ingest.MapRows(rows, mapping, time.Now().UTC())
	outcome := h.Analyzer.AnalyzeItems(c.Request().Context(), items)
	totals := analysis.BuildTotals(outcome.Items)

	rawText := string(data)
	parsedJSON, err := marshalMapping(mapping)
	if err != nil {
		return serverError(c)
	}

	bill := models.Bill{
		UserID:           userID,
		FileName:         fileName,
		FileType:         models.FileTypeCSV,
		Status:           models.BillStatusAnalyzed,
		Provider:         firstProvider(outcome.Items),
		TotalBilled:      totals.Billed,
		TotalRecommended: totals.Recommended,
		TotalSavings:     totals.Savings,
		LineItems:        outcome.Items,
		RawText:          &rawText,
		ParsedJSON:       parsedJSON,
		GeminiResponse:   outcome.RawResponse,
	}

	return h.persistBill(c, userID, bill, data, metrics.SourceCSV)
}

// Extract извлекает строки из PDF или изображения счета через AI,
// анализирует их и сохраняет готовый счет.
func (h *BillHandler) Extract(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	if err := h.checkPlanLimit(c, userID); err != nil {
		return err
	}

	data, fileName, err := h.readUpload(c)
	if err != nil {
		return err
	}

	mimeType, fileType, ok := documentType(fileName)
	if !ok {
		return badRequest(c, "unsupported file type, expected pdf or image")
	}

	started := time.Now()
	extraction, rawResponse, err := h.AI.ExtractBill(c.Request().Context(), mimeType, data)
	if err != nil {
		h.Metrics.AIRequests.WithLabelValues("extract", metrics.OutcomeError).Inc()
		if errors.Is(err, ai.ErrNoLineItems) {
			return unprocessable(c, "no line items found in document")
		}
		return unprocessable(c, "failed to extract line items from document")
	}
	h.Metrics.AIRequests.WithLabelValues("extract", metrics.OutcomeOK).Inc()

	items := make([]models.BillLineItem, 0, len(extraction.LineItems))
	for _, extracted := range extraction.LineItems {
		items = append(items, models.BillLineItem{
			ID:                    uuid.New(),
			ServiceCode:           extracted.ServiceCode,
			CPTCode:               extracted.ServiceCode,
			Description:           extracted.Description,
			Date:                  extracted.Date,
			BilledAmount:          extracted.BilledAmount,
			Quantity:              extracted.Quantity,
			Provider:              extracted.Provider,
			InsurerAllowed:        extracted.InsurerAllowed,
			PatientResponsibility: extracted.PatientResponsibility,
		})
	}

	outcome := h.Analyzer.AnalyzeItems(c.Request().Context(), items)
	totals := analysis.BuildTotals(outcome.Items)

	geminiResponse := rawResponse
	bill := models.Bill{
		UserID:           userID,
		FileName:         fileName,
		FileType:         fileType,
		Status:           models.BillStatusAnalyzed,
		Provider:         extraction.Provider,
		TotalBilled:      totals.Billed,
		TotalRecommended: totals.Recommended,
		TotalSavings:     totals.Savings,
		LineItems:        outcome.Items,
		GeminiResponse:   &geminiResponse,
		OCRMetadata: &models.OCRMetadata{
			Confidence:     averageConfidence(outcome.Items),
			ExtractedText:  extraction.RawText,
			ProcessingTime: time.Since(started).Milliseconds(),
			PageCount:      1,
		},
	}

	if extraction.RawText != "" {
		rawText := extraction.RawText
		bill.RawText = &rawText
	}

	return h.persistBill(c, userID, bill, data, metrics.SourceDocument)
}

// List возвращает счета пользователя, новые первыми.
func (h *BillHandler) List(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	bills, err := h.Store.GetBills(c.Request().Context(), userID)
	if err != nil {
		return serverError(c)
	}

	return c.JSON(http.StatusOK, map[string][]models.Bill{"bills": bills})
}

// Get возвращает счет по идентификатору.
func (h *BillHandler) Get(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	billID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid bill id")
	}

	bill, err := h.Store.GetBill(c.Request().Context(), userID, billID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return notFound(c, "bill not found")
		}
		return serverError(c)
	}

	return c.JSON(http.StatusOK, bill)
}

// ExportCSV выгружает строки счета с вердиктами в CSV-файл.
func (h *BillHandler) ExportCSV(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	billID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid bill id")
	}

	bill, err := h.Store.GetBill(c.Request().Context(), userID, billID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return notFound(c, "bill not found")
		}
		return serverError(c)
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writeLineItemsCSV(writer, bill); err != nil {
		return serverError(c)
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return serverError(c)
	}

	filename := "bill-" + bill.ID.String() + ".csv"
	c.Response().Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename=\""+filename+"\"")
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *BillHandler) persistBill(c echo.Context, userID string, bill models.Bill, data []byte, source string) error {
	if path, err := h.Files.Save(userID, bill.FileName, data); err == nil {
		bill.FilePath = &path
	}

	created, err := h.Store.CreateBill(c.Request().Context(), bill)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return notFound(c, "user not found")
		}
		if errors.Is(err, storage.ErrInvalid) {
			return badRequest(c, "invalid bill data")
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "analysis complete but failed to save"})
	}

	h.Metrics.BillsCreated.WithLabelValues(source).Inc()
	publishBillAnalyzed(h.Notifier, userID, created)

	return c.JSON(http.StatusCreated, created)
}

func (h *BillHandler) checkPlanLimit(c echo.Context, userID string) error {
	user, err := h.Store.GetUser(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return notFound(c, "user not found")
		}
		return serverError(c)
	}

	if user.Plan == models.PlanFree && user.BillUploadCount >= h.FreePlanLimit {
		return upgradeRequired(c)
	}

	return nil
}

func (h *BillHandler) readUpload(c echo.Context) ([]byte, string, error) {
	fileHeader, err := c.FormFile(uploadFieldName)
	if err != nil {
		return nil, "", badRequest(c, "file is required")
	}

	if fileHeader.Size > h.MaxFileSize {
		return nil, "", payloadTooLarge(c)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, "", serverError(c)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.MaxFileSize+1))
	if err != nil {
		return nil, "", serverError(c)
	}
	if int64(len(data)) > h.MaxFileSize {
		return nil, "", payloadTooLarge(c)
	}

	return data, filepath.Base(fileHeader.Filename), nil
}

func documentType(fileName string) (string, models.FileType, bool) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return "application/pdf", models.FileTypePDF, true
	case ".png":
		return "image/png", models.FileTypeImage, true
	case ".jpg", ".jpeg":
		return "image/jpeg", models.FileTypeImage, true
	case ".webp":
		return "image/webp", models.FileTypeImage, true
	default:
		return "", "", false
	}
}

func firstProvider(items []models.BillLineItem) string {
	for _, item := range items {
		if item.Provider != "" && item.Provider != "Unknown Provider" {
			return item.Provider
		}
	}
	return "Unknown Provider"
}

func averageConfidence(items []models.BillLineItem) float64 {
	if len(items) == 0 {
		return 0
	}

	var total float64
	for _, item := range items {
		total += item.Confidence
	}
	return total / float64(len(items))
}

func marshalMapping(mapping ingest.Mapping) (*string, error) {
	raw, err := json.Marshal(mapping)
	if err != nil {
		return nil, err
	}

	value := string(raw)
	return &value, nil
}

func writeLineItemsCSV(writer *csv.Writer, bill models.Bill) error {
	header := []string{
		"bill_id",
		"file_name",
		"service_code",
		"description",
		"date",
		"billed_amount",
		"quantity",
		"provider",
		"is_overpriced",
		"recommended_price",
		"confidence",
		"savings",
		"reasoning",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, item := range bill.LineItems {
		code := ""
		if item.ServiceCode != nil {
			code = *item.ServiceCode
		}

		record := []string{
			bill.ID.String(),
			bill.FileName,
			code,
			item.Description,
			item.Date,
			formatAmount(item.BilledAmount),
			strconv.Itoa(item.Quantity),
			item.Provider,
			formatBool(item.IsOverpriced),
			formatAmount(item.RecommendedPrice),
			formatAmount(item.Confidence),
			formatAmount(item.Savings),
			item.Reasoning,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return nil
}

func formatAmount(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}

func formatBool(value bool) string {
	if value {
		return "true"
	}
	return "false"
}

func publishBillAnalyzed(hub *notifications.Hub, userID string, bill models.Bill) {
	if hub == nil {
		return
	}

	hub.Publish(userID, notifications.Event{
		Type: notifications.EventBillAnalyzed,
		Data: map[string]interface{}{
			"bill_id":       bill.ID.String(),
			"file_name":     bill.FileName,
			"total_savings": bill.TotalSavings,
		},
	})
}
