package copygen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/foxzi/outreach/internal/leads"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 1024
	apiVersion       = "2023-06-01"
)

// Config configures the LLM-backed generator.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// Client generates copy through the messages API. It implements Generator.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a generator client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
	Error   *apiErrorBody  `json:"error,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// complete sends one prompt and returns the concatenated text blocks.
func (c *Client) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if maxTokens == 0 {
		maxTokens = c.cfg.MaxTokens
	}

	body, err := json.Marshal(messagesRequest{
		Model:     c.cfg.Model,
		MaxTokens: maxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("copy generation request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var decoded messagesResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return "", fmt.Errorf("failed to decode model response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if decoded.Error != nil {
			return "", fmt.Errorf("model API error (status=%d): %s", resp.StatusCode, decoded.Error.Message)
		}
		return "", fmt.Errorf("model API error (status=%d)", resp.StatusCode)
	}

	var text string
	for _, block := range decoded.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("model returned no text content")
	}
	return text, nil
}

// SubjectLines generates n subject-line variants.
func (c *Client) SubjectLines(ctx context.Context, p leads.Prospect, valueProp string, n int, style Style) ([]string, error) {
	if style == "" {
		style = StyleCasual
	}
	text, err := c.complete(ctx, subjectLinesPrompt(p, valueProp, n, style), 200)
	if err != nil {
		return nil, err
	}
	lines := parseLines(text, n)
	if len(lines) == 0 {
		return nil, fmt.Errorf("model returned no subject lines")
	}
	return lines, nil
}

// OpeningLines generates n personalized opening lines. The opener is the
// most important part of a cold email: it has to show research, not a mail
// merge.
func (c *Client) OpeningLines(ctx context.Context, p leads.Prospect, n int) ([]string, error) {
	text, err := c.complete(ctx, openingLinesPrompt(p, n), 300)
	if err != nil {
		return nil, err
	}
	lines := parseLines(text, n)
	if len(lines) == 0 {
		return nil, fmt.Errorf("model returned no opening lines")
	}
	return lines, nil
}

// FullEmail generates a complete email body from pre-selected subject and
// opening variants.
func (c *Client) FullEmail(ctx context.Context, p leads.Prospect, valueProp, subject, opening string, cta CTAStyle) (string, error) {
	return c.complete(ctx, fullEmailPrompt(p, valueProp, subject, opening, cta), 400)
}
