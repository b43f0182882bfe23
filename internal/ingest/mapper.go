package ingest

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/billsage/backend/internal/models"
)

// Канонические поля строки счета, на которые пользователь
// отображает колонки своего CSV.
const (
	FieldDescription           = "description"
	FieldBilledAmount          = "billedAmount"
	FieldDate                  = "date"
	FieldServiceCode           = "serviceCode"
	FieldQuantity              = "quantity"
	FieldProvider              = "provider"
	FieldInsurerAllowed        = "insurerAllowed"
	FieldPatientResponsibility = "patientResponsibility"
)

var (
	ErrDescriptionNotMapped  = errors.New("description column is not mapped")
	ErrBilledAmountNotMapped = errors.New("billed amount column is not mapped")
)

// Mapping — подтвержденное пользователем отображение
// "каноническое поле -> заголовок CSV".
type Mapping map[string]string

// autoMapKeywords задает эвристику авто-отображения: подстрока в
// имени заголовка (без регистра) выбирает каноническое поле.
// Первый совпавший заголовок закрепляется, последующие не перезаписывают.
var autoMapKeywords = []struct {
	field    string
	keywords []string
}{
	{FieldDescription, []string{"description", "service"}},
	{FieldBilledAmount, []string{"amount", "charge", "billed"}},
	{FieldDate, []string{"date"}},
	{FieldServiceCode, []string{"code", "cpt"}},
	{FieldQuantity, []string{"quantity", "qty"}},
	{FieldProvider, []string{"provider"}},
}

// AutoMap строит стартовое отображение по известным именам колонок.
func AutoMap(headers []string) Mapping {
	mapping := make(Mapping)

	for _, header := range headers {
		lower := strings.ToLower(header)
		for _, rule := range autoMapKeywords {
			if _, taken := mapping[rule.field]; taken {
				continue
			}
			for _, keyword := range rule.keywords {
				if strings.Contains(lower, keyword) {
					mapping[rule.field] = header
					break
				}
			}
		}
	}

	return mapping
}

// Validate проверяет, что обязательные поля отображены.
func (m Mapping) Validate() error {
	if strings.TrimSpace(m[FieldDescription]) == "" {
		return ErrDescriptionNotMapped
	}
	if strings.TrimSpace(m[FieldBilledAmount]) == "" {
		return ErrBilledAmountNotMapped
	}
	return nil
}

// MapRows превращает строки CSV в строки счета по отображению колонок.
// Вердикты по цене заполняются позже на этапе анализа.
func MapRows(rows []Row, mapping Mapping, now time.Time) []models.BillLineItem {
	items := make([]models.BillLineItem, 0, len(rows))

	for _, row := range rows {
		billed := ParseAmount(row[mapping[FieldBilledAmount]])

		item := models.BillLineItem{
			ID:           uuid.New(),
			Description:  valueOrDefault(row[mapping[FieldDescription]], "Unknown service"),
			Date:         valueOrDefault(row[mapping[FieldDate]], now.Format("2006-01-02")),
			BilledAmount: billed,
			Quantity:     ParseQuantity(row[mapping[FieldQuantity]]),
			Provider:     valueOrDefault(row[mapping[FieldProvider]], "Unknown Provider"),
		}

		if code := strings.TrimSpace(row[mapping[FieldServiceCode]]); code != "" {
			item.ServiceCode = &code
			item.CPTCode = &code
		}

		item.InsurerAllowed = ParseOptionalAmount(row[mapping[FieldInsurerAllowed]])

		if patient := ParseOptionalAmount(row[mapping[FieldPatientResponsibility]]); patient != nil {
			item.PatientResponsibility = *patient
		} else {
			item.PatientResponsibility = billed
		}

		items = append(items, item)
	}

	return items
}

func valueOrDefault(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
