package hf

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

// Embedder turns short text fields into fixed-length vectors via the
// HuggingFace inference API. Calls have no side effects; failures propagate
// to the caller, which must not write partial embeddings anywhere.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type embedder struct {
	log        *logger.Logger
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewEmbedder(log *logger.Logger) (Embedder, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(os.Getenv("HUGGINGFACE_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing HUGGINGFACE_API_KEY")
	}

	model := strings.TrimSpace(os.Getenv("HUGGINGFACE_EMBED_MODEL"))
	if model == "" {
		model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	baseURL := strings.TrimSpace(os.Getenv("HUGGINGFACE_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://router.huggingface.co/hf-inference"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeoutSec := 60
	if v := strings.TrimSpace(os.Getenv("HUGGINGFACE_TIMEOUT_SECONDS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	return &embedder{
		log:        log.With("client", "HFEmbeddings"),
		endpoint:   fmt.Sprintf("%s/models/%s/pipeline/feature-extraction", baseURL, model),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

type embedRequest struct {
	Inputs []string `json:"inputs"`
}

func (e *embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	raw, err := json.Marshal(embedRequest{Inputs: texts})
	if err != nil {
		return nil, fmt.Errorf("hf: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("hf: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, apierr.Transient(fmt.Errorf("hf: feature extraction: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, apierr.Transient(fmt.Errorf("hf: read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		if len(msg) > 512 {
			msg = msg[:512]
		}
		err := fmt.Errorf("hf: feature extraction returned %d: %s", resp.StatusCode, msg)
		// 503 is the model-loading case and clears on its own.
		if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests {
			return nil, apierr.Transient(err)
		}
		return nil, apierr.Permanent(err)
	}

	var vectors [][]float32
	if err := json.Unmarshal(body, &vectors); err != nil {
		return nil, apierr.Permanent(fmt.Errorf("hf: decode vectors: %w", err))
	}
	if len(vectors) != len(texts) {
		return nil, apierr.Permanent(fmt.Errorf("hf: got %d vectors for %d inputs", len(vectors), len(texts)))
	}
	return vectors, nil
}

func (e *embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
