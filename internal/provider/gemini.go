package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/compass-ai-chat/compass-sub000/internal/chat"
	"github.com/compass-ai-chat/compass-sub000/internal/logging"
)

// GeminiProvider adapts the Google Gemini API to the ChatProvider
// interface through the official genai SDK.
type GeminiProvider struct {
	info       chat.Provider
	client     *genai.Client
	embedModel string
}

// NewGeminiProvider creates a Gemini adapter. The provider's APIKey is
// required; Endpoint is ignored (the SDK owns transport).
func NewGeminiProvider(ctx context.Context, info chat.Provider) (*GeminiProvider, error) {
	if info.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: info.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiProvider{
		info:       info,
		client:     client,
		embedModel: "gemini-embedding-001",
	}, nil
}

// geminiContents maps chat messages onto genai contents. System-injected
// context keeps the user role with a note prefix; Gemini has no separate
// per-message system role outside SystemInstruction.
func geminiContents(messages []chat.Message) (contents []*genai.Content, system string) {
	var sys []string
	for i, m := range messages {
		if m.IsSystem {
			sys = append(sys, m.Content)
			continue
		}
		if i == len(messages)-1 && !m.IsUser && strings.TrimSpace(m.Content) == "" {
			continue
		}
		var role genai.Role = genai.RoleModel
		if m.IsUser {
			role = genai.RoleUser
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents, strings.Join(sys, "\n\n")
}

// classify converts SDK errors for unknown models into ModelNotFoundError.
func (p *GeminiProvider) classify(err error, modelID string) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "not found") || strings.Contains(msg, "not_found") {
		return &ModelNotFoundError{ModelID: modelID, ProviderID: p.info.ID}
	}
	return err
}

// StreamMessage streams a Gemini completion as text fragments.
func (p *GeminiProvider) StreamMessage(ctx context.Context, messages []chat.Message, model *chat.Model, _ *chat.Character) (<-chan string, <-chan error) {
	contentChan := make(chan string, 100)
	errorChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errorChan)

		if model == nil {
			errorChan <- fmt.Errorf("no model selected")
			return
		}

		contents, system := geminiContents(messages)
		cfg := &genai.GenerateContentConfig{}
		if system != "" {
			cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
		}

		for resp, err := range p.client.Models.GenerateContentStream(ctx, model.ID, contents, cfg) {
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				errorChan <- p.classify(err, model.ID)
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			select {
			case contentChan <- text:
			case <-ctx.Done():
				return
			}
		}
	}()

	return contentChan, errorChan
}

// SendSimpleMessage runs a non-streaming completion.
func (p *GeminiProvider) SendSimpleMessage(ctx context.Context, message string, model *chat.Model, systemPrompt string) (string, error) {
	if model == nil {
		return "", fmt.Errorf("no model selected")
	}
	cfg := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	resp, err := p.client.Models.GenerateContent(ctx, model.ID,
		[]*genai.Content{genai.NewContentFromText(message, genai.RoleUser)}, cfg)
	if err != nil {
		return "", p.classify(err, model.ID)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// SendJSONMessage requests a JSON completion; parse failures return an
// empty map rather than an error.
func (p *GeminiProvider) SendJSONMessage(ctx context.Context, message string, model *chat.Model, systemPrompt string) (map[string]any, error) {
	if model == nil {
		return nil, fmt.Errorf("no model selected")
	}
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	resp, err := p.client.Models.GenerateContent(ctx, model.ID,
		[]*genai.Content{genai.NewContentFromText(message, genai.RoleUser)}, cfg)
	if err != nil {
		return nil, p.classify(err, model.ID)
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(resp.Text()), &parsed); err != nil {
		logging.Error(err, logging.ComponentProvider, "SendJSONMessage")
		return map[string]any{}, nil
	}
	return parsed, nil
}

// EmbedText returns one vector per input text, in input order.
func (p *GeminiProvider) EmbedText(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	result, err := p.client.Models.EmbedContent(ctx, p.embedModel, contents,
		&genai.EmbedContentConfig{TaskType: "SEMANTIC_SIMILARITY"})
	if err != nil {
		return nil, fmt.Errorf("gemini embed failed: %w", err)
	}
	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

// ListModels enumerates the models the Gemini API serves.
func (p *GeminiProvider) ListModels(ctx context.Context) ([]chat.Model, error) {
	var models []chat.Model
	for m, err := range p.client.Models.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("failed to list models: %w", err)
		}
		id := strings.TrimPrefix(m.Name, "models/")
		models = append(models, chat.Model{ID: id, Name: m.DisplayName, Provider: p.info})
	}
	return models, nil
}
