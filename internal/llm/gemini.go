package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/illegalcall/brainyx/internal/config"
)

var ErrNoAPIKey = errors.New("LLM API key is not configured")

// GeminiRequest is the body of a generateContent call.
type GeminiRequest struct {
	SystemInstruction *GeminiContent  `json:"systemInstruction,omitempty"`
	Contents          []GeminiContent `json:"contents"`
}

type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

type GeminiPart struct {
	Text string `json:"text"`
}

type GeminiResponse struct {
	Candidates []GeminiCandidate `json:"candidates"`
}

type GeminiCandidate struct {
	Content GeminiContent `json:"content"`
}

// GeminiProvider talks to the Gemini generateContent REST endpoint.
type GeminiProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewGeminiProvider(cfg config.LLMConfig) *GeminiProvider {
	return &GeminiProvider{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *GeminiProvider) NewSession(key, systemPrompt string) Session {
	return &geminiSession{provider: p, key: key, systemPrompt: systemPrompt}
}

type geminiSession struct {
	provider     *GeminiProvider
	key          string
	systemPrompt string
	contents     []GeminiContent
}

// Replay adds a turn. Consecutive turns from the same role share one content
// so that roles keep alternating.
func (s *geminiSession) Replay(role, text string) {
	role = geminiRole(role)
	part := GeminiPart{Text: text}
	if n := len(s.contents); n > 0 && s.contents[n-1].Role == role {
		s.contents[n-1].Parts = append(s.contents[n-1].Parts, part)
		return
	}
	s.contents = append(s.contents, GeminiContent{Role: role, Parts: []GeminiPart{part}})
}

func (s *geminiSession) dropLastTurn() {
	n := len(s.contents)
	if n == 0 {
		return
	}
	if parts := s.contents[n-1].Parts; len(parts) > 1 {
		s.contents[n-1].Parts = parts[:len(parts)-1]
		return
	}
	s.contents = s.contents[:n-1]
}

func (s *geminiSession) Send(ctx context.Context, text string) (string, error) {
	s.Replay(roleUser, text)

	reply, err := s.provider.generate(ctx, s.systemPrompt, s.contents)
	if err != nil {
		// Drop the unanswered turn so the session stays consistent.
		s.dropLastTurn()
		return "", fmt.Errorf("session %s: %w", s.key, err)
	}

	s.Replay(roleAssistant, reply)
	return reply, nil
}

func (p *GeminiProvider) generate(ctx context.Context, systemPrompt string, contents []GeminiContent) (string, error) {
	if p.apiKey == "" {
		return "", ErrNoAPIKey
	}

	reqBody := GeminiRequest{Contents: contents}
	if systemPrompt != "" {
		reqBody.SystemInstruction = &GeminiContent{Parts: []GeminiPart{{Text: systemPrompt}}}
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, p.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var geminiResp GeminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no response generated")
	}

	var sb strings.Builder
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	reply := strings.TrimSpace(sb.String())
	if reply == "" {
		return "", errors.New("empty response generated")
	}
	return reply, nil
}

func geminiRole(role string) string {
	if role == roleAssistant {
		return "model"
	}
	return "user"
}
