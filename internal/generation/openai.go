package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ayush/medical-report-worker/internal/models"
)

const chatPath = "/chat/completions"

// Config configures an OpenAIClient.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	// RequestsPerMinute caps outgoing calls. Zero means unlimited.
	RequestsPerMinute int
	Timeout           time.Duration
}

// OpenAIClient calls an OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewOpenAIClient(cfg Config) *OpenAIClient {
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &OpenAIClient{
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
	}
}

func (c *OpenAIClient) Model() string { return c.cfg.Model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// GenerateCategoryReport asks the model for a JSON summary of content and
// parses it into a report item. The category is filled in when the model
// leaves it out.
func (c *OpenAIClient) GenerateCategoryReport(ctx context.Context, category, content string) (models.CategoryReportItem, Usage, error) {
	var item models.CategoryReportItem

	if err := c.limiter.Wait(ctx); err != nil {
		return item, Usage{}, fmt.Errorf("openai rate limit: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(category, content)},
		},
		Temperature:    c.cfg.Temperature,
		MaxTokens:      c.cfg.MaxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return item, Usage{}, fmt.Errorf("openai %s: encode: %w", chatPath, err)
	}

	resp, err := c.post(ctx, chatPath, body)
	if err != nil {
		return item, Usage{}, err
	}
	defer resp.Body.Close()

	if err := checkResp(resp, "openai", chatPath); err != nil {
		return item, Usage{}, err
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return item, Usage{}, fmt.Errorf("openai %s: decode: %w", chatPath, err)
	}
	if len(out.Choices) == 0 {
		return item, out.Usage, fmt.Errorf("openai %s: no choices returned", chatPath)
	}

	item, err = parseItem(out.Choices[0].Message.Content, category)
	if err != nil {
		return item, out.Usage, fmt.Errorf("openai %s: %w", chatPath, err)
	}
	return item, out.Usage, nil
}

// parseItem decodes the model's JSON answer, tolerating a markdown code fence.
func parseItem(raw, category string) (models.CategoryReportItem, error) {
	var item models.CategoryReportItem
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	}
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return item, fmt.Errorf("parse model output: %w", err)
	}
	if strings.TrimSpace(item.Text) == "" {
		return item, errors.New("model output has no text")
	}
	if item.Category == "" {
		item.Category = category
	}
	if item.Sources == nil {
		item.Sources = []string{}
	}
	return item, nil
}

// checkResp returns an error carrying the upstream body when the status is
// not 2xx.
func checkResp(resp *http.Response, service, path string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%s %s returned %d: %s", service, path, resp.StatusCode, string(body))
}

func (c *OpenAIClient) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai %s: %w", path, err)
	}
	return resp, nil
}
