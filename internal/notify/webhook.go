package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"github.com/fileloader-io/fileloader/internal/config"
)

// ErrUnsupportedWebhookScheme is returned when WEBHOOK_URL names a scheme neither
// transport understands.
var ErrUnsupportedWebhookScheme = errors.New("unsupported webhook URL scheme")

// webhookPayload is the JSON body posted (or published) for internal failures —
// ArchiveFailed, StageCreateFailed, BulkInsertFailed, PublishFailed, DBUnavailable,
// StoreUnavailable, WorkerPanic — the kinds that page on-call rather than a business
// stakeholder.
type webhookPayload struct {
	SourceName    string    `json:"source_name"`
	Filename      string    `json:"filename"`
	FailureKind   string    `json:"failure_kind"`
	Detail        string    `json:"detail"`
	RowsRead      int64     `json:"rows_read"`
	RowsValid     int64     `json:"rows_valid"`
	RowsInvalid   int64     `json:"rows_invalid"`
	RowsPublished int64     `json:"rows_published"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func payloadFor(n Notification) webhookPayload {
	return webhookPayload{
		SourceName:    n.SourceName,
		Filename:      n.Filename,
		FailureKind:   string(n.FailureKind),
		Detail:        n.Detail,
		RowsRead:      n.RowsRead,
		RowsValid:     n.RowsValid,
		RowsInvalid:   n.RowsInvalid,
		RowsPublished: n.RowsPublished,
		OccurredAt:    n.OccurredAt,
	}
}

// WebhookNotifier delivers a Notification over HTTPS POST or a Kafka topic, selected by
// the configured WEBHOOK_URL's scheme at construction time.
type WebhookNotifier struct {
	httpURL     string
	httpClient  *http.Client
	kafkaWriter *kafka.Writer
	limiter     RateLimiter
}

// LoadWebhookURLFromEnv reads WEBHOOK_URL per spec.md §6.
func LoadWebhookURLFromEnv() string {
	return config.GetEnvStr("WEBHOOK_URL", "")
}

const webhookHTTPTimeout = 10 * time.Second

// NewWebhookNotifier dispatches to an HTTPS POST notifier for an https:// URL, or a Kafka
// producer for a kafka://broker/topic URL, matching spec.md's webhook transport matrix.
func NewWebhookNotifier(webhookURL string, limiter RateLimiter) (*WebhookNotifier, error) {
	parsed, err := url.Parse(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("parsing WEBHOOK_URL: %w", err)
	}

	switch parsed.Scheme {
	case "https", "http":
		return &WebhookNotifier{
			httpURL:    webhookURL,
			httpClient: &http.Client{Timeout: webhookHTTPTimeout},
			limiter:    limiter,
		}, nil
	case "kafka":
		topic := strings.TrimPrefix(parsed.Path, "/")

		writer := &kafka.Writer{
			Addr:         kafka.TCP(parsed.Host),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		}

		return &WebhookNotifier{kafkaWriter: writer, limiter: limiter}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedWebhookScheme, parsed.Scheme)
	}
}

// Notify implements Notifier.
func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) error {
	if w.limiter != nil && !w.limiter.Allow(n.SourceName) {
		return fmt.Errorf("notification suppressed by rate limiter for source %s", n.SourceName)
	}

	body, err := json.Marshal(payloadFor(n))
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	if w.kafkaWriter != nil {
		return w.notifyKafka(ctx, n.SourceName, body)
	}

	return w.notifyHTTP(ctx, body)
}

func (w *WebhookNotifier) notifyHTTP(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.httpURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // response body not read

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}

	return nil
}

func (w *WebhookNotifier) notifyKafka(ctx context.Context, key string, body []byte) error {
	err := w.kafkaWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: body,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("publishing webhook to kafka: %w", err)
	}

	return nil
}

// Close releases the Kafka writer, if one was constructed. Safe to call on an
// HTTP-backed notifier.
func (w *WebhookNotifier) Close() error {
	if w.kafkaWriter != nil {
		return w.kafkaWriter.Close()
	}

	return nil
}
