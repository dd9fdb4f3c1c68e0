package queue

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

	"github.com/solvegraph/solvegraph-backend/internal/platform/logger"
)

// Publisher hands fan-out jobs to the external queue service, which delivers
// them to the named consumer path with at-least-once semantics and its own
// redelivery/backoff policy.
type Publisher interface {
	Publish(ctx context.Context, consumerPath string, body any) error
}

type publisher struct {
	log          *logger.Logger
	queueURL     string
	consumerBase string
	token        string
	httpClient   *http.Client
}

func NewPublisherFromEnv(log *logger.Logger) (Publisher, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	queueURL := strings.TrimSpace(os.Getenv("QUEUE_URL"))
	if queueURL == "" {
		return nil, fmt.Errorf("missing QUEUE_URL")
	}
	consumerBase := strings.TrimSpace(os.Getenv("QUEUE_CONSUMER_BASE_URL"))
	if consumerBase == "" {
		return nil, fmt.Errorf("missing QUEUE_CONSUMER_BASE_URL")
	}
	token := strings.TrimSpace(os.Getenv("QUEUE_TOKEN"))
	if token == "" {
		return nil, fmt.Errorf("missing QUEUE_TOKEN")
	}

	timeoutSec := 15
	if v := strings.TrimSpace(os.Getenv("QUEUE_TIMEOUT_SECONDS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	return &publisher{
		log:          log.With("client", "QueuePublisher"),
		queueURL:     strings.TrimRight(queueURL, "/"),
		consumerBase: strings.TrimRight(consumerBase, "/"),
		token:        token,
		httpClient:   &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

func (p *publisher) Publish(ctx context.Context, consumerPath string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("queue: marshal payload: %w", err)
	}

	destination := p.consumerBase + "/" + strings.TrimLeft(consumerPath, "/")
	url := fmt.Sprintf("%s/v2/publish/%s", p.queueURL, destination)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("queue: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("queue: publish to %s: %w", consumerPath, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("queue: publish to %s returned %d: %s", consumerPath, resp.StatusCode, string(msg))
	}

	p.log.Debug("Published fan-out job", "consumer_path", consumerPath, "bytes", len(raw))
	return nil
}
