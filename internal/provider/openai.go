package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/compass-ai-chat/compass-sub000/internal/chat"
	"github.com/compass-ai-chat/compass-sub000/internal/logging"
)

// OpenAIProvider adapts any OpenAI-compatible backend (OpenAI, Mistral,
// Ollama's /v1 surface, LM Studio) to the ChatProvider interface.
type OpenAIProvider struct {
	info       chat.Provider
	httpClient *http.Client

	// streamClient carries no whole-request timeout: that would cut off
	// completions still streaming after the deadline. Only the response
	// headers are bounded; the request context bounds the body.
	streamClient *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// OpenAIConfig holds adapter configuration.
type OpenAIConfig struct {
	Provider chat.Provider
	Timeout  time.Duration
}

// NewOpenAIProvider creates an adapter for the given backend endpoint.
func NewOpenAIProvider(info chat.Provider) *OpenAIProvider {
	return NewOpenAIProviderWithConfig(OpenAIConfig{Provider: info, Timeout: 120 * time.Second})
}

// NewOpenAIProviderWithConfig creates an adapter with custom config.
func NewOpenAIProviderWithConfig(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &OpenAIProvider{
		info:       cfg.Provider,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		streamClient: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: cfg.Timeout},
		},
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Stream         bool            `json:"stream,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		Delta *struct {
			Content string `json:"content"`
		} `json:"delta,omitempty"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type openAIModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// wireMessages maps chat messages onto OpenAI roles and drops an empty
// trailing message (the not-yet-filled assistant placeholder).
func wireMessages(messages []chat.Message) []openAIMessage {
	out := make([]openAIMessage, 0, len(messages))
	for _, m := range messages {
		role := "assistant"
		if m.IsUser {
			role = "user"
		} else if m.IsSystem {
			role = "system"
		}
		out = append(out, openAIMessage{Role: role, Content: m.Content})
	}
	if n := len(out); n > 0 && strings.TrimSpace(out[n-1].Content) == "" {
		out = out[:n-1]
	}
	return out
}

// throttle enforces a minimum gap between requests to one backend.
func (p *OpenAIProvider) throttle() {
	p.mu.Lock()
	elapsed := time.Since(p.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	p.lastRequest = time.Now()
	p.mu.Unlock()
}

// classifyError turns a non-200 completion response into the right error
// type. Unknown-model responses become ModelNotFoundError.
func (p *OpenAIProvider) classifyError(status int, body []byte, modelID string) error {
	lower := strings.ToLower(string(body))
	if status == http.StatusNotFound ||
		(strings.Contains(lower, "model") &&
			(strings.Contains(lower, "not found") ||
				strings.Contains(lower, "does not exist") ||
				strings.Contains(lower, "not_found"))) {
		return &ModelNotFoundError{ModelID: modelID, ProviderID: p.info.ID}
	}
	return fmt.Errorf("API request failed with status %d: %s", status, string(body))
}

// StreamMessage streams a chat completion as incremental content deltas.
func (p *OpenAIProvider) StreamMessage(ctx context.Context, messages []chat.Message, model *chat.Model, _ *chat.Character) (<-chan string, <-chan error) {
	contentChan := make(chan string, 100)
	errorChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errorChan)

		if model == nil {
			errorChan <- fmt.Errorf("no model selected")
			return
		}

		start := time.Now()
		p.throttle()

		reqBody := openAIRequest{
			Model:    model.ID,
			Messages: wireMessages(messages),
			Stream:   true,
		}
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			errorChan <- fmt.Errorf("failed to marshal request: %w", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST", p.info.Endpoint+"/v1/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			errorChan <- fmt.Errorf("failed to create request: %w", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		if p.info.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.info.APIKey)
		}

		resp, err := p.streamClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				// Cancellation ends the stream quietly.
				return
			}
			errorChan <- fmt.Errorf("request failed: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			errorChan <- p.classifyError(resp.StatusCode, body, model.ID)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		scanDone := make(chan struct{})
		scanErrChan := make(chan error, 1)

		go func() {
			defer close(scanDone)
			for scanner.Scan() {
				line := scanner.Text()
				if !strings.HasPrefix(line, "data:") {
					continue
				}
				data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				if data == "" {
					continue
				}
				if data == "[DONE]" {
					return
				}

				var chunk openAIResponse
				if err := json.Unmarshal([]byte(data), &chunk); err != nil {
					continue
				}
				if chunk.Error != nil {
					scanErrChan <- fmt.Errorf("API error: %s", chunk.Error.Message)
					return
				}
				if len(chunk.Choices) > 0 && chunk.Choices[0].Delta != nil {
					delta := chunk.Choices[0].Delta.Content
					if delta != "" {
						select {
						case contentChan <- delta:
						case <-ctx.Done():
							return
						}
					}
				}
			}
			if err := scanner.Err(); err != nil {
				scanErrChan <- err
			}
		}()

		select {
		case <-scanDone:
			select {
			case err := <-scanErrChan:
				errorChan <- fmt.Errorf("stream error: %w", err)
			default:
				logging.L(logging.ComponentProvider).Debug("stream completed",
					zap.Duration("elapsed", time.Since(start)))
			}
		case <-ctx.Done():
			resp.Body.Close()
			<-scanDone
			// Cancelled streams end without surfacing an error.
		}
	}()

	return contentChan, errorChan
}

// SendSimpleMessage runs a plain non-streaming completion.
func (p *OpenAIProvider) SendSimpleMessage(ctx context.Context, message string, model *chat.Model, systemPrompt string) (string, error) {
	resp, err := p.complete(ctx, message, model, systemPrompt, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp), nil
}

// SendJSONMessage requests a JSON-object completion. Parse failures
// return an empty map, never an error.
func (p *OpenAIProvider) SendJSONMessage(ctx context.Context, message string, model *chat.Model, systemPrompt string) (map[string]any, error) {
	resp, err := p.complete(ctx, message, model, systemPrompt, &responseFormat{Type: "json_object"})
	if err != nil {
		return nil, err
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(resp), &parsed); err != nil {
		logging.Error(err, logging.ComponentProvider, "SendJSONMessage")
		return map[string]any{}, nil
	}
	return parsed, nil
}

func (p *OpenAIProvider) complete(ctx context.Context, message string, model *chat.Model, systemPrompt string, format *responseFormat) (string, error) {
	if model == nil {
		return "", fmt.Errorf("no model selected")
	}

	p.throttle()

	messages := make([]openAIMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: message})

	reqBody := openAIRequest{
		Model:          model.ID,
		Messages:       messages,
		ResponseFormat: format,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.info.Endpoint+"/v1/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.info.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.info.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", p.classifyError(resp.StatusCode, body, model.ID)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}
	return parsed.Choices[0].Message.Content, nil
}

// EmbedText returns one vector per input text through the backend's
// embeddings endpoint.
func (p *OpenAIProvider) EmbedText(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := openAIEmbedRequest{Model: "text-embedding-3-small", Input: texts}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.info.Endpoint+"/v1/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.info.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.info.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed openAIEmbedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}

// ListModels enumerates the backend's served models.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]chat.Model, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.info.Endpoint+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if p.info.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.info.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("models request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed openAIModelsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	models := make([]chat.Model, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		models = append(models, chat.Model{ID: m.ID, Name: m.ID, Provider: p.info})
	}
	return models, nil
}
