package ai

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// GeminiClient — клиент Gemini API поверх официального GenAI SDK.
// Клиент создается один раз при старте сервера и переиспользуется.
type GeminiClient struct {
	client          *genai.Client
	model           string
	timeout         time.Duration
	maxOutputTokens int32
}

var _ Client = (*GeminiClient)(nil)

// NewGeminiClient создает клиент Gemini с заданной моделью и лимитами.
func NewGeminiClient(ctx context.Context, apiKey, model string, timeout time.Duration, maxOutputTokens int) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{
		client:          client,
		model:           model,
		timeout:         timeout,
		maxOutputTokens: int32(maxOutputTokens),
	}, nil
}

// Generate отправляет текстовый запрос и возвращает текст ответа.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), c.generateConfig())
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}

	return result.Text(), nil
}

// GenerateWithDocument отправляет запрос с приложенным документом
// (PDF или изображение счета) и возвращает текст ответа.
func (c *GeminiClient) GenerateWithDocument(ctx context.Context, mimeType string, data []byte, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contents := []*genai.Content{
		{
			Role: genai.RoleUser,
			Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}},
				{Text: prompt},
			},
		},
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, c.generateConfig())
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}

	return result.Text(), nil
}

func (c *GeminiClient) generateConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0.2)),
		MaxOutputTokens:  c.maxOutputTokens,
		ResponseMIMEType: "application/json",
	}
}
