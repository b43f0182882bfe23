package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Этапы, на которых запрос к AI может завершиться ошибкой.
const (
	StageRequest  = "request"
	StageParse    = "parse"
	StageValidate = "validate"
)

// ErrNoLineItems возвращается, когда модель не нашла ни одной строки в документе.
var ErrNoLineItems = errors.New("no line items extracted from document")

// Error — ошибка AI-шлюза с указанием этапа сбоя. Вызывающий код
// использует этап, чтобы решить, переходить ли на эвристику.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ai %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ExtractedLineItem — строка счета, извлеченная моделью из документа.
type ExtractedLineItem struct {
	ServiceCode           *string  `json:"serviceCode"`
	Description           string   `json:"description"`
	Date                  string   `json:"date"`
	BilledAmount          float64  `json:"billedAmount"`
	Quantity              int      `json:"quantity"`
	Provider              string   `json:"provider"`
	InsurerAllowed        *float64 `json:"insurerAllowed"`
	PatientResponsibility float64  `json:"patientResponsibility"`
}

// Extraction — результат извлечения данных из PDF или изображения счета.
type Extraction struct {
	Provider  string              `json:"provider"`
	BillDate  string              `json:"billDate"`
	LineItems []ExtractedLineItem `json:"lineItems"`
	RawText   string              `json:"rawText"`
}

// AnalysisInput — строка счета, отправляемая на ценовой анализ.
type AnalysisInput struct {
	ServiceCode    *string  `json:"serviceCode"`
	Description    string   `json:"description"`
	BilledAmount   float64  `json:"billedAmount"`
	Quantity       int      `json:"quantity"`
	InsurerAllowed *float64 `json:"insurerAllowed,omitempty"`
}

// Analysis — вердикт модели по одной строке счета.
type Analysis struct {
	IsOverpriced     bool    `json:"isOverpriced"`
	RecommendedPrice float64 `json:"recommendedPrice"`
	Confidence       float64 `json:"confidence"`
	Reasoning        string  `json:"reasoning"`
	Savings          float64 `json:"savings"`
}

type analysisResponse struct {
	Analyses []Analysis `json:"analyses"`
}

// Service инкапсулирует промпты, разбор и валидацию ответов модели.
type Service struct {
	client           Client
	extractionSchema *jsonschema.Schema
	analysisSchema   *jsonschema.Schema
}

// NewService создает сервис работы с AI-клиентом.
func NewService(client Client) (*Service, error) {
	extractionSchema, err := compileSchema(extractionSchemaMap)
	if err != nil {
		return nil, fmt.Errorf("compile extraction schema: %w", err)
	}

	analysisSchema, err := compileSchema(analysisSchemaMap)
	if err != nil {
		return nil, fmt.Errorf("compile analysis schema: %w", err)
	}

	return &Service{
		client:           client,
		extractionSchema: extractionSchema,
		analysisSchema:   analysisSchema,
	}, nil
}

// ExtractBill извлекает строки счета из приложенного документа.
func (s *Service) ExtractBill(ctx context.Context, mimeType string, data []byte) (Extraction, string, error) {
	content, err := s.client.GenerateWithDocument(ctx, mimeType, data, extractionPrompt)
	if err != nil {
		return Extraction{}, "", &Error{Stage: StageRequest, Err: err}
	}

	payload, err := parsePayload(content)
	if err != nil {
		return Extraction{}, content, &Error{Stage: StageParse, Err: err}
	}

	if err := validateAgainst(s.extractionSchema, payload); err != nil {
		return Extraction{}, content, &Error{Stage: StageValidate, Err: err}
	}

	var extraction Extraction
	if err := json.Unmarshal(payload, &extraction); err != nil {
		return Extraction{}, content, &Error{Stage: StageParse, Err: err}
	}

	if len(extraction.LineItems) == 0 {
		return Extraction{}, content, &Error{Stage: StageValidate, Err: ErrNoLineItems}
	}

	normalizeExtraction(&extraction)
	return extraction, content, nil
}

// AnalyzeLineItems запрашивает у модели ценовые вердикты по всем строкам
// одним запросом. Вердикты возвращаются в порядке входных строк.
func (s *Service) AnalyzeLineItems(ctx context.Context, items []AnalysisInput) ([]Analysis, string, error) {
	prompt, err := buildAnalysisPrompt(items)
	if err != nil {
		return nil, "", &Error{Stage: StageRequest, Err: err}
	}

	content, err := s.client.Generate(ctx, prompt)
	if err != nil {
		return nil, "", &Error{Stage: StageRequest, Err: err}
	}

	payload, err := parsePayload(content)
	if err != nil {
		return nil, content, &Error{Stage: StageParse, Err: err}
	}

	if err := validateAgainst(s.analysisSchema, payload); err != nil {
		return nil, content, &Error{Stage: StageValidate, Err: err}
	}

	var response analysisResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		return nil, content, &Error{Stage: StageParse, Err: err}
	}

	if len(response.Analyses) != len(items) {
		return nil, content, &Error{
			Stage: StageValidate,
			Err:   fmt.Errorf("expected %d analyses, got %d", len(items), len(response.Analyses)),
		}
	}

	for i := range response.Analyses {
		normalizeAnalysis(&response.Analyses[i], items[i].BilledAmount)
	}

	return response.Analyses, content, nil
}

const extractionPrompt = `You are a medical billing expert. Extract every line item from the attached medical bill.

Requirements:
- Output JSON only, no code fences, no extra text.
- Schema:
{
  "provider": string,
  "billDate": string (YYYY-MM-DD, empty if unknown),
  "lineItems": [
    {
      "serviceCode": string or null (CPT/HCPCS code if present),
      "description": string,
      "date": string (YYYY-MM-DD, empty if unknown),
      "billedAmount": number,
      "quantity": integer (default 1),
      "provider": string,
      "insurerAllowed": number or null,
      "patientResponsibility": number
    }
  ],
  "rawText": string (plain text of the bill as you read it)
}
- Use null for serviceCode when no procedure code is printed.
- Amounts are dollars as plain numbers, no currency symbols.
- Do not invent line items that are not on the bill.`

func buildAnalysisPrompt(items []AnalysisInput) (string, error) {
	payload, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", err
	}

	prompt := fmt.Sprintf(`You are a medical billing expert. For each line item below, judge whether the billed amount is overpriced relative to typical fair market rates and Medicare reimbursement for the service.

Requirements:
- Output JSON only, no code fences, no extra text.
- Schema:
{
  "analyses": [
    {
      "isOverpriced": boolean,
      "recommendedPrice": number (fair price in dollars, never above the billed amount),
      "confidence": number (0-100),
      "reasoning": string (2-3 sentences citing typical rates),
      "savings": number (billedAmount minus recommendedPrice, 0 if not overpriced)
    }
  ]
}
- Return exactly one analysis per input item, in the same order.
- Base verdicts on the CPT code when present, otherwise on the description.

Line items:
%s`, string(payload))

	return prompt, nil
}

// parsePayload срезает кодовые ограждения, вырезает JSON-объект и при
// неудачном разборе пробует восстановить его через json-repair.
func parsePayload(content string) ([]byte, error) {
	payload := extractJSON(content)
	if payload == "" {
		return nil, errors.New("ai response does not contain json")
	}

	var probe any
	if err := json.Unmarshal([]byte(payload), &probe); err == nil {
		return []byte(payload), nil
	}

	repaired, err := jsonrepair.RepairJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("repair json: %w", err)
	}

	return []byte(repaired), nil
}

func extractJSON(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimPrefix(strings.TrimSpace(trimmed), "json")
		trimmed = strings.TrimSpace(trimmed)
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}

	return trimmed[start : end+1]
}

func normalizeExtraction(extraction *Extraction) {
	for i := range extraction.LineItems {
		item := &extraction.LineItems[i]
		if strings.TrimSpace(item.Description) == "" {
			item.Description = "Unknown service"
		}
		if item.Quantity <= 0 {
			item.Quantity = 1
		}
		if strings.TrimSpace(item.Provider) == "" {
			item.Provider = extraction.Provider
		}
		if item.ServiceCode != nil && strings.TrimSpace(*item.ServiceCode) == "" {
			item.ServiceCode = nil
		}
		if item.PatientResponsibility == 0 {
			item.PatientResponsibility = item.BilledAmount
		}
	}
}

// normalizeAnalysis приводит вердикт к инвариантам счета: рекомендация
// в пределах [0, billed], уверенность в [0, 100], экономия пересчитана.
func normalizeAnalysis(analysis *Analysis, billed float64) {
	if analysis.RecommendedPrice < 0 {
		analysis.RecommendedPrice = 0
	}
	if analysis.RecommendedPrice > billed {
		analysis.RecommendedPrice = billed
	}
	if analysis.Confidence < 0 {
		analysis.Confidence = 0
	}
	if analysis.Confidence > 100 {
		analysis.Confidence = 100
	}
	analysis.Savings = round2(billed - analysis.RecommendedPrice)
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}

	return compiler.Compile("schema.json")
}

func validateAgainst(schema *jsonschema.Schema, payload []byte) error {
	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}

	return nil
}

var extractionSchemaMap = map[string]any{
	"type":     "object",
	"required": []any{"lineItems"},
	"properties": map[string]any{
		"provider": map[string]any{"type": "string"},
		"billDate": map[string]any{"type": "string"},
		"rawText":  map[string]any{"type": "string"},
		"lineItems": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"description", "billedAmount"},
				"properties": map[string]any{
					"serviceCode":           map[string]any{"type": []any{"string", "null"}},
					"description":           map[string]any{"type": "string"},
					"date":                  map[string]any{"type": "string"},
					"billedAmount":          map[string]any{"type": "number"},
					"quantity":              map[string]any{"type": "integer"},
					"provider":              map[string]any{"type": "string"},
					"insurerAllowed":        map[string]any{"type": []any{"number", "null"}},
					"patientResponsibility": map[string]any{"type": "number"},
				},
			},
		},
	},
}

var analysisSchemaMap = map[string]any{
	"type":     "object",
	"required": []any{"analyses"},
	"properties": map[string]any{
		"analyses": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"isOverpriced", "recommendedPrice", "confidence", "reasoning"},
				"properties": map[string]any{
					"isOverpriced":     map[string]any{"type": "boolean"},
					"recommendedPrice": map[string]any{"type": "number"},
					"confidence":       map[string]any{"type": "number"},
					"reasoning":        map[string]any{"type": "string"},
					"savings":          map[string]any{"type": "number"},
				},
			},
		},
	},
}
