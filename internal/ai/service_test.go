package ai

import (
	"context"
	"errors"
	"testing"
)

type fakeClient struct {
	response string
	err      error
	prompt   string
}

func (f *fakeClient) Generate(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.response, f.err
}

func (f *fakeClient) GenerateWithDocument(_ context.Context, _ string, _ []byte, prompt string) (string, error) {
	f.prompt = prompt
	return f.response, f.err
}

func newTestService(t *testing.T, client Client) *Service {
	t.Helper()
	service, err := NewService(client)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return service
}

// TestAnalyzeLineItems проверяет разбор корректного ответа модели.
func TestAnalyzeLineItems(t *testing.T) {
	client := &fakeClient{response: `{"analyses":[{"isOverpriced":true,"recommendedPrice":180,"confidence":90,"reasoning":"above typical rates","savings":120}]}`}
	service := newTestService(t, client)

	items := []AnalysisInput{{Description: "Office visit", BilledAmount: 300, Quantity: 1}}
	analyses, raw, err := service.AnalyzeLineItems(context.Background(), items)
	if err != nil {
		t.Fatalf("AnalyzeLineItems: %v", err)
	}
	if raw == "" {
		t.Fatal("expected raw response to be returned")
	}
	if len(analyses) != 1 {
		t.Fatalf("expected 1 analysis, got %d", len(analyses))
	}
	if !analyses[0].IsOverpriced || analyses[0].RecommendedPrice != 180 {
		t.Fatalf("unexpected analysis: %+v", analyses[0])
	}
	if analyses[0].Savings != 120 {
		t.Fatalf("unexpected savings: %v", analyses[0].Savings)
	}
}

// TestAnalyzeLineItemsClampsRecommendation проверяет ограничение рекомендации суммой счета.
func TestAnalyzeLineItemsClampsRecommendation(t *testing.T) {
	client := &fakeClient{response: `{"analyses":[{"isOverpriced":false,"recommendedPrice":500,"confidence":120,"reasoning":"ok","savings":-10}]}`}
	service := newTestService(t, client)

	analyses, _, err := service.AnalyzeLineItems(context.Background(), []AnalysisInput{{Description: "x", BilledAmount: 300, Quantity: 1}})
	if err != nil {
		t.Fatalf("AnalyzeLineItems: %v", err)
	}
	if analyses[0].RecommendedPrice != 300 {
		t.Fatalf("expected recommendation clamped to 300, got %v", analyses[0].RecommendedPrice)
	}
	if analyses[0].Confidence != 100 {
		t.Fatalf("expected confidence clamped to 100, got %v", analyses[0].Confidence)
	}
	if analyses[0].Savings != 0 {
		t.Fatalf("expected savings recomputed to 0, got %v", analyses[0].Savings)
	}
}

// TestAnalyzeLineItemsCountMismatch проверяет отказ при несовпадении числа вердиктов.
func TestAnalyzeLineItemsCountMismatch(t *testing.T) {
	client := &fakeClient{response: `{"analyses":[]}`}
	service := newTestService(t, client)

	_, _, err := service.AnalyzeLineItems(context.Background(), []AnalysisInput{{Description: "x", BilledAmount: 10, Quantity: 1}})

	var aiErr *Error
	if !errors.As(err, &aiErr) || aiErr.Stage != StageValidate {
		t.Fatalf("expected validate-stage error, got %v", err)
	}
}

// TestAnalyzeLineItemsStripsCodeFences проверяет снятие ограждений ```json.
func TestAnalyzeLineItemsStripsCodeFences(t *testing.T) {
	client := &fakeClient{response: "```json\n{\"analyses\":[{\"isOverpriced\":false,\"recommendedPrice\":50,\"confidence\":80,\"reasoning\":\"ok\",\"savings\":0}]}\n```"}
	service := newTestService(t, client)

	analyses, _, err := service.AnalyzeLineItems(context.Background(), []AnalysisInput{{Description: "x", BilledAmount: 50, Quantity: 1}})
	if err != nil {
		t.Fatalf("AnalyzeLineItems: %v", err)
	}
	if analyses[0].RecommendedPrice != 50 {
		t.Fatalf("unexpected recommendation: %v", analyses[0].RecommendedPrice)
	}
}

// TestAnalyzeLineItemsRepairsJSON проверяет восстановление обрезанного JSON.
func TestAnalyzeLineItemsRepairsJSON(t *testing.T) {
	client := &fakeClient{response: `{"analyses":[{"isOverpriced":true,"recommendedPrice":40,"confidence":70,"reasoning":"high","savings":60}]`}
	service := newTestService(t, client)

	analyses, _, err := service.AnalyzeLineItems(context.Background(), []AnalysisInput{{Description: "x", BilledAmount: 100, Quantity: 1}})
	if err != nil {
		t.Fatalf("expected repaired json to parse, got %v", err)
	}
	if analyses[0].RecommendedPrice != 40 {
		t.Fatalf("unexpected recommendation: %v", analyses[0].RecommendedPrice)
	}
}

// TestAnalyzeLineItemsRequestError проверяет проброс ошибки клиента.
func TestAnalyzeLineItemsRequestError(t *testing.T) {
	client := &fakeClient{err: errors.New("quota exceeded")}
	service := newTestService(t, client)

	_, _, err := service.AnalyzeLineItems(context.Background(), []AnalysisInput{{Description: "x", BilledAmount: 10, Quantity: 1}})

	var aiErr *Error
	if !errors.As(err, &aiErr) || aiErr.Stage != StageRequest {
		t.Fatalf("expected request-stage error, got %v", err)
	}
}

// TestExtractBill проверяет извлечение строк из документа.
func TestExtractBill(t *testing.T) {
	client := &fakeClient{response: `{
		"provider": "City Hospital",
		"billDate": "2026-07-01",
		"lineItems": [
			{"serviceCode": "99213", "description": "Office visit", "date": "2026-07-01", "billedAmount": 300, "quantity": 1, "provider": "", "insurerAllowed": null, "patientResponsibility": 0}
		],
		"rawText": "OFFICE VISIT 300.00"
	}`}
	service := newTestService(t, client)

	extraction, raw, err := service.ExtractBill(context.Background(), "application/pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("ExtractBill: %v", err)
	}
	if raw == "" {
		t.Fatal("expected raw response to be returned")
	}
	if extraction.Provider != "City Hospital" {
		t.Fatalf("unexpected provider: %q", extraction.Provider)
	}

	item := extraction.LineItems[0]
	if item.Provider != "City Hospital" {
		t.Fatalf("expected provider inherited from bill, got %q", item.Provider)
	}
	if item.PatientResponsibility != 300 {
		t.Fatalf("expected patient responsibility defaulted to billed, got %v", item.PatientResponsibility)
	}
}

// TestExtractBillNoLineItems проверяет отказ при пустом списке строк.
func TestExtractBillNoLineItems(t *testing.T) {
	client := &fakeClient{response: `{"provider":"X","billDate":"","lineItems":[],"rawText":""}`}
	service := newTestService(t, client)

	_, _, err := service.ExtractBill(context.Background(), "application/pdf", []byte("%PDF"))
	if !errors.Is(err, ErrNoLineItems) {
		t.Fatalf("expected ErrNoLineItems, got %v", err)
	}
}

// TestExtractBillSchemaViolation проверяет отклонение ответа без обязательных полей.
func TestExtractBillSchemaViolation(t *testing.T) {
	client := &fakeClient{response: `{"provider":"X","lineItems":[{"description":"visit"}]}`}
	service := newTestService(t, client)

	_, _, err := service.ExtractBill(context.Background(), "application/pdf", []byte("%PDF"))

	var aiErr *Error
	if !errors.As(err, &aiErr) || aiErr.Stage != StageValidate {
		t.Fatalf("expected validate-stage error, got %v", err)
	}
}
