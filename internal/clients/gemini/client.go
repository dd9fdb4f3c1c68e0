package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/solvegraph/solvegraph-backend/internal/platform/apierr"
	"github.com/solvegraph/solvegraph-backend/internal/platform/logger"
)

// Turn is one prior conversation entry sent as chat history.
// Role is "user" or "model" on the wire.
type Turn struct {
	Role string
	Text string
}

// Client is the generative-model client used by the analysis and chat flows.
type Client interface {
	// GenerateJSON requests a schema-constrained JSON object and decodes it
	// into out.
	GenerateJSON(ctx context.Context, prompt string, schema map[string]any, out any) error

	// GenerateText returns a plain-text completion for a single prompt.
	GenerateText(ctx context.Context, prompt string) (string, error)

	// GenerateChat returns a completion for prompt given prior history.
	GenerateChat(ctx context.Context, history []Turn, prompt string) (string, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	chatModel  string
	httpClient *http.Client
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY")
	}

	baseURL := strings.TrimSpace(os.Getenv("GEMINI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(os.Getenv("GEMINI_MODEL"))
	if model == "" {
		model = "gemini-2.5-pro"
	}
	chatModel := strings.TrimSpace(os.Getenv("GEMINI_CHAT_MODEL"))
	if chatModel == "" {
		chatModel = "gemini-2.5-flash"
	}

	timeoutSec := 120
	if v := strings.TrimSpace(os.Getenv("GEMINI_TIMEOUT_SECONDS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	return &client{
		log:        log.With("client", "Gemini"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		chatModel:  chatModel,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *client) generate(ctx context.Context, model string, req generateRequest) (string, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", apierr.Transient(fmt.Errorf("gemini: %s: %w", model, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", apierr.Transient(fmt.Errorf("gemini: read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return "", classify(resp.StatusCode, body, model)
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", apierr.Permanent(fmt.Errorf("gemini: decode response: %w", err))
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", apierr.Permanent(fmt.Errorf("gemini: empty candidate set"))
	}
	return strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text), nil
}

// classify maps upstream failures onto the retryable/terminal split: only
// the unavailable/overloaded class is worth retrying. Quota exhaustion in
// particular (429 RESOURCE_EXHAUSTED) is terminal; three quick retries
// cannot outwait a billing window.
func classify(status int, body []byte, model string) error {
	msg := string(body)
	if len(msg) > 512 {
		msg = msg[:512]
	}
	err := fmt.Errorf("gemini: %s returned %d: %s", model, status, msg)
	switch {
	case status == http.StatusServiceUnavailable,
		strings.Contains(msg, "UNAVAILABLE"),
		strings.Contains(msg, "overloaded"):
		return apierr.Transient(err)
	default:
		return apierr.Permanent(err)
	}
}

func (c *client) GenerateJSON(ctx context.Context, prompt string, schema map[string]any, out any) error {
	text, err := c.generate(ctx, c.model, generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   schema,
		},
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return apierr.Permanent(fmt.Errorf("gemini: decode structured output: %w", err))
	}
	return nil
}

func (c *client) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, c.chatModel, generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	})
}

func (c *client) GenerateChat(ctx context.Context, history []Turn, prompt string) (string, error) {
	contents := make([]content, 0, len(history)+1)
	for _, t := range history {
		role := t.Role
		if role != "user" {
			role = "model"
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: t.Text}}})
	}
	contents = append(contents, content{Role: "user", Parts: []part{{Text: prompt}}})
	return c.generate(ctx, c.chatModel, generateRequest{Contents: contents})
}
