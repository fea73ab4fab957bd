// Package gemini implements the generative capability behind the dialogue
// core: a Gemini REST client for prose generation (text and image input)
// and the single-token sufficiency judgment. The client owns no routing
// logic; everything deterministic lives in the resolver.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/studymate-ai/studymate/pkg/studymate/resolver"
)

// DefaultBaseURL is the Gemini REST endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// DefaultModel is the model used when none is configured.
const DefaultModel = "gemini-2.0-flash"

// ErrEmptyResponse is returned when the API responds without any candidate text.
var ErrEmptyResponse = errors.New("gemini: empty response")

// Config holds the Gemini client configuration.
type Config struct {
	// APIKey authenticates against the Gemini API. Resolved via
	// keyring/env before this struct is populated.
	APIKey string `yaml:"api_key"`

	// Model is the model identifier (e.g. "gemini-2.0-flash").
	Model string `yaml:"model"`

	// BaseURL overrides the API endpoint (tests, proxies).
	BaseURL string `yaml:"base_url"`

	// MaxOutputTokens bounds the response length. 0 uses the API default.
	MaxOutputTokens int `yaml:"max_output_tokens"`
}

// Client talks to the Gemini REST API. It implements resolver.Generator.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Gemini client from config.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		baseURL:   baseURL,
		apiKey:    cfg.APIKey,
		model:     model,
		maxTokens: cfg.MaxOutputTokens,
		httpClient: &http.Client{
			// No global timeout; each call carries its own context
			// deadline set by the resolver.
			Transport: &http.Transport{
				MaxIdleConns:          10,
				MaxIdleConnsPerHost:   5,
				IdleConnTimeout:       120 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 60 * time.Second,
			},
		},
		logger: logger.With("component", "gemini", "model", model),
	}
}

// ---------- Wire types ----------

type request struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type response struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// ---------- resolver.Generator ----------

// Generate produces the prose content for one delegated turn. The recent
// window rides along as alternating user/model contents so follow-ups
// resolve against prior turns.
func (c *Client) Generate(ctx context.Context, req resolver.GenerateRequest) (string, error) {
	contents := historyContents(req.Context)

	parts := []part{{Text: req.Task}}
	if len(req.Image) > 0 {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, part{InlineData: &inlineData{
			MimeType: mime,
			Data:     base64.StdEncoding.EncodeToString(req.Image),
		}})
	}
	contents = append(contents, content{Role: "user", Parts: parts})

	body := request{
		Contents:          contents,
		SystemInstruction: &content{Parts: []part{{Text: personaPrompt(req.StudentName)}}},
	}
	if c.maxTokens > 0 {
		body.GenerationConfig = &generationConfig{MaxOutputTokens: c.maxTokens}
	}

	return c.call(ctx, body)
}

// JudgeSufficiency asks the model for a single-token verdict on whether a
// study-shaped message carries enough detail to act on.
func (c *Client) JudgeSufficiency(ctx context.Context, text string) (bool, error) {
	body := request{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: fmt.Sprintf(sufficiencyPrompt, text)}},
		}},
		GenerationConfig: &generationConfig{MaxOutputTokens: 8},
	}

	out, err := c.call(ctx, body)
	if err != nil {
		return false, err
	}
	verdict := strings.ToUpper(strings.TrimSpace(out))
	return strings.HasPrefix(verdict, "SUFFICIENT"), nil
}

// ---------- HTTP ----------

func (c *Client) call(ctx context.Context, body request) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed response
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return "", fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, msg)
	}

	text := collectText(parsed)
	if text == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("generation complete",
		"elapsed_ms", time.Since(start).Milliseconds(),
		"chars", len(text))
	return text, nil
}

func collectText(parsed response) string {
	var sb strings.Builder
	for _, cand := range parsed.Candidates {
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
		break // only the first candidate
	}
	return strings.TrimSpace(sb.String())
}

// historyContents renders the context window as alternating user/model
// turns, oldest first.
func historyContents(window []resolver.Turn) []content {
	var contents []content
	for _, t := range window {
		userText := t.Message.Text
		if userText == "" {
			userText = "[" + string(t.Message.Kind) + "]"
		}
		contents = append(contents,
			content{Role: "user", Parts: []part{{Text: userText}}},
			content{Role: "model", Parts: []part{{Text: t.Output.Content}}},
		)
	}
	return contents
}
