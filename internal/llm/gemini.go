package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// GeminiProvider implements the Provider interface for Google's
// generateContent REST API.
type GeminiProvider struct {
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	client      *http.Client
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(cfg Config) *GeminiProvider {
	return &GeminiProvider{
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// GenerateContent sends every prompt part as a text part of one user turn.
func (p *GeminiProvider) GenerateContent(ctx context.Context, parts []string) (Reply, error) {
	payload := geminiRequest{
		Contents: []geminiContent{{Role: "user"}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature: p.temperature,
		},
	}
	for _, part := range parts {
		payload.Contents[0].Parts = append(payload.Contents[0].Parts, geminiPart{Text: part})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Reply{}, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, url.PathEscape(p.model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Reply{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Reply{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp geminiErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return Reply{}, fmt.Errorf("API error: %s", errResp.Error.Message)
		}
		return Reply{}, fmt.Errorf("API error: status %d", resp.StatusCode)
	}

	var result geminiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return Reply{}, fmt.Errorf("parse response: %w", err)
	}

	reply := Reply{Candidates: make([]Candidate, 0, len(result.Candidates))}
	for _, c := range result.Candidates {
		var cand Candidate
		for _, part := range c.Content.Parts {
			cand.Parts = append(cand.Parts, Part{Text: part.Text})
		}
		reply.Candidates = append(reply.Candidates, cand)
	}
	return reply, nil
}

// Gemini API request/response types

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature float64 `json:"temperature"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
