package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/modlink/registry-engine/internal/safego"
)

// WebhookConfig holds webhook sink configuration
type WebhookConfig struct {
	// URL is the webhook endpoint
	URL string `mapstructure:"url"`
	// Headers are additional HTTP headers to send
	Headers map[string]string `mapstructure:"headers"`
	// Timeout is the HTTP request timeout
	Timeout time.Duration `mapstructure:"timeout"`
	// BatchSize is how many envelopes to batch before sending (0 = no batching)
	BatchSize int `mapstructure:"batch_size"`
	// FlushInterval is how often to flush batched envelopes
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// WebhookPublisher POSTs envelopes as JSON. With batching enabled the body is a JSON array.
type WebhookPublisher struct {
	cfg       *WebhookConfig
	client    *http.Client
	batchCh   chan Envelope
	batch     []Envelope
	batchMu   sync.Mutex
	closeCh   chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewWebhookPublisher creates a webhook sink and starts its batch loop if batching is enabled.
func NewWebhookPublisher(cfg *WebhookConfig) (*WebhookPublisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	cfg.Timeout = defaultTimeout(cfg.Timeout)

	wp := &WebhookPublisher{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		batchCh: make(chan Envelope, 1000),
		closeCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	if cfg.BatchSize > 0 {
		safego.Go("event-webhook-batcher", wp.processBatches)
	} else {
		close(wp.doneCh)
	}
	return wp, nil
}

func (wp *WebhookPublisher) processBatches() {
	defer close(wp.doneCh)

	flushInterval := wp.cfg.FlushInterval
	if flushInterval == 0 {
		flushInterval = 5 * time.Second
	}
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case env := <-wp.batchCh:
			wp.batchMu.Lock()
			wp.batch = append(wp.batch, env)
			if len(wp.batch) >= wp.cfg.BatchSize {
				wp.flushBatch()
			}
			wp.batchMu.Unlock()
		case <-ticker.C:
			wp.batchMu.Lock()
			wp.flushBatch()
			wp.batchMu.Unlock()
		case <-wp.closeCh:
			wp.batchMu.Lock()
		drain:
			for {
				select {
				case env := <-wp.batchCh:
					wp.batch = append(wp.batch, env)
				default:
					break drain
				}
			}
			wp.flushBatch()
			wp.batchMu.Unlock()
			return
		}
	}
}

// flushBatch must be called with batchMu held.
func (wp *WebhookPublisher) flushBatch() {
	if len(wp.batch) == 0 {
		return
	}
	defer func() { wp.batch = wp.batch[:0] }()

	data, err := json.Marshal(wp.batch)
	if err != nil {
		slog.Error("failed to marshal event batch", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wp.cfg.Timeout)
	defer cancel()

	if err := wp.send(ctx, data); err != nil {
		slog.Error("failed to send event batch", "url", wp.cfg.URL, "size", len(wp.batch), "error", err)
	}
}

// Publish queues env when batching, otherwise sends it immediately.
func (wp *WebhookPublisher) Publish(ctx context.Context, env Envelope) error {
	if wp.cfg.BatchSize > 0 {
		select {
		case wp.batchCh <- env:
			return nil
		default:
			// queue full, send directly
		}
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return wp.send(ctx, data)
}

func (wp *WebhookPublisher) send(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wp.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range wp.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := wp.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close flushes any queued envelopes and waits for the batch loop to exit.
func (wp *WebhookPublisher) Close() error {
	wp.closeOnce.Do(func() {
		close(wp.closeCh)
	})
	<-wp.doneCh
	return nil
}
