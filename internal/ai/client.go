package ai

import "context"

// Client — минимальный контракт генеративной модели: текстовый запрос
// или запрос с приложенным документом (PDF/изображение).
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateWithDocument(ctx context.Context, mimeType string, data []byte, prompt string) (string, error)
}
