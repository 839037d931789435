package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Publisher delivers committed events to an external consumer.
type Publisher interface {
	// Publish sends one envelope. Failures are reported but never undo the state change.
	Publish(ctx context.Context, env Envelope) error
	// Close flushes buffered envelopes and releases resources.
	Close() error
}

// SinkConfig describes one configured destination.
type SinkConfig struct {
	// Enabled determines if this sink is active
	Enabled bool `mapstructure:"enabled"`
	// Type is the sink type (log, webhook, file, redis)
	Type string `mapstructure:"type"`

	Webhook *WebhookConfig `mapstructure:"webhook"`
	File    *FileConfig    `mapstructure:"file"`
	Redis   *RedisConfig   `mapstructure:"redis"`
}

// MultiPublisher fans an envelope out to every configured sink.
type MultiPublisher struct {
	publishers []Publisher
	mu         sync.RWMutex
}

// NewMulti wraps already constructed publishers.
func NewMulti(publishers ...Publisher) *MultiPublisher {
	return &MultiPublisher{publishers: publishers}
}

// NewMultiPublisher builds sinks from configuration. rdb may be nil when no
// redis sink is enabled.
func NewMultiPublisher(configs []SinkConfig, rdb RedisClient, logger *slog.Logger) (*MultiPublisher, error) {
	mp := NewMulti()
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		var p Publisher
		var err error

		switch cfg.Type {
		case "log":
			p = NewLogPublisher(logger)
		case "webhook":
			if cfg.Webhook == nil {
				return nil, fmt.Errorf("webhook config is required for webhook sink")
			}
			p, err = NewWebhookPublisher(cfg.Webhook)
		case "file":
			if cfg.File == nil {
				return nil, fmt.Errorf("file config is required for file sink")
			}
			p, err = NewFilePublisher(cfg.File)
		case "redis":
			if cfg.Redis == nil {
				return nil, fmt.Errorf("redis config is required for redis sink")
			}
			if rdb == nil {
				return nil, fmt.Errorf("redis sink enabled but no redis client is configured")
			}
			p, err = NewRedisPublisher(rdb, cfg.Redis)
		default:
			return nil, fmt.Errorf("unknown event sink type: %s", cfg.Type)
		}

		if err != nil {
			_ = mp.Close()
			return nil, fmt.Errorf("failed to create %s sink: %w", cfg.Type, err)
		}
		mp.Add(p)
	}
	return mp, nil
}

// Add appends a publisher.
func (mp *MultiPublisher) Add(p Publisher) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.publishers = append(mp.publishers, p)
}

// Len reports the number of sinks.
func (mp *MultiPublisher) Len() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return len(mp.publishers)
}

// Publish delivers to every sink and returns the combined failures.
func (mp *MultiPublisher) Publish(ctx context.Context, env Envelope) error {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	var result *multierror.Error
	for _, p := range mp.publishers {
		if err := p.Publish(ctx, env); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (mp *MultiPublisher) Close() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var result *multierror.Error
	for _, p := range mp.publishers {
		if err := p.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// LogPublisher writes one structured log line per event.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (lp *LogPublisher) Publish(ctx context.Context, env Envelope) error {
	lp.logger.InfoContext(ctx, "registry event",
		"event", env.Name,
		"request_id", env.RequestID,
		"payload", env.Payload,
	)
	return nil
}

func (lp *LogPublisher) Close() error { return nil }

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(context.Context, Envelope) error { return nil }
func (Nop) Close() error                            { return nil }

// Recorder keeps envelopes in memory. Tests use it to assert on emitted events.
type Recorder struct {
	mu        sync.Mutex
	envelopes []Envelope
	err       error
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(_ context.Context, env Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envelopes = append(r.envelopes, env)
	return r.err
}

func (r *Recorder) Close() error { return nil }

// FailWith makes subsequent Publish calls return err after recording.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Envelopes returns a copy of everything recorded so far.
func (r *Recorder) Envelopes() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Envelope(nil), r.envelopes...)
}

// Names returns the recorded event names in publish order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.envelopes))
	for i, env := range r.envelopes {
		names[i] = env.Name
	}
	return names
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envelopes = nil
}

func defaultTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}
