package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultModelName = "gemini-1.5-flash-latest"

const tutorInstruction = "You are a helpful medical tutor for students learning anatomy and physiology. " +
	"Explain concepts clearly and accurately, using correct medical terminology with plain-language definitions. " +
	"Keep answers concise and focused on the student's question. If a question is outside medicine, say so briefly."

// Model answers tutor questions with a Gemini generative model. It satisfies app.TutorModel.
type Model struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewModel(ctx context.Context, apiKey, modelName string) (*Model, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if modelName == "" {
		modelName = DefaultModelName
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(tutorInstruction)},
	}
	temp := float32(0.4)
	maxTokens := int32(1024)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}
	return &Model{client: client, model: model}, nil
}

func (m *Model) Answer(ctx context.Context, question string) (string, error) {
	resp, err := m.model.GenerateContent(ctx, genai.Text(question))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return responseText(resp)
}

func (m *Model) Close() error {
	return m.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini: empty response")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	if b.Len() == 0 {
		return "", errors.New("gemini: no text in response")
	}
	return b.String(), nil
}
