package events_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/modlink/registry-engine/internal/address"
	"github.com/modlink/registry-engine/internal/events"
)

func sampleEnvelope() events.Envelope {
	ev := events.RepoRegistered{
		Repo:    address.Repo(address.FromName("infra")),
		RepoKey: address.FromName("infra"),
		Owner:   address.FromName("alice"),
		Name:    "infra",
		URL:     "https://example.com/infra",
	}
	return events.Wrap(events.WithRequestID(context.Background(), "req-1"), ev, time.Unix(1700000000, 0))
}

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

func TestWrap_CopiesNameAndRequestID(t *testing.T) {
	env := sampleEnvelope()
	if env.Name != "repo.registered" {
		t.Errorf("Name = %q, want repo.registered", env.Name)
	}
	if env.RequestID != "req-1" {
		t.Errorf("RequestID = %q, want req-1", env.RequestID)
	}

	env = events.Wrap(context.Background(), events.ForkCreated{}, time.Now())
	if env.RequestID != "" {
		t.Errorf("RequestID = %q, want empty", env.RequestID)
	}
}

func TestEnvelope_JSONShape(t *testing.T) {
	data, err := json.Marshal(sampleEnvelope())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	payload, ok := decoded["payload"].(map[string]interface{})
	if !ok {
		t.Fatalf("payload missing in %s", data)
	}
	if payload["url"] != "https://example.com/infra" {
		t.Errorf("payload.url = %v", payload["url"])
	}
	if payload["owner"] != address.FromName("alice").String() {
		t.Errorf("payload.owner = %v, want hex key", payload["owner"])
	}
}

// ---------------------------------------------------------------------------
// MultiPublisher
// ---------------------------------------------------------------------------

func TestNewMultiPublisher_Empty(t *testing.T) {
	mp, err := events.NewMultiPublisher(nil, nil, nil)
	if err != nil {
		t.Fatalf("NewMultiPublisher(nil) error: %v", err)
	}
	if err := mp.Publish(context.Background(), sampleEnvelope()); err != nil {
		t.Errorf("Publish() on empty publisher = %v, want nil", err)
	}
	if err := mp.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestNewMultiPublisher_DisabledSkipped(t *testing.T) {
	cfgs := []events.SinkConfig{
		{Enabled: false, Type: "webhook", Webhook: &events.WebhookConfig{URL: "http://example.com"}},
	}
	mp, err := events.NewMultiPublisher(cfgs, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mp.Len() != 0 {
		t.Errorf("Len() = %d, want 0", mp.Len())
	}
}

func TestNewMultiPublisher_ConfigErrors(t *testing.T) {
	cases := map[string]events.SinkConfig{
		"unknown type":      {Enabled: true, Type: "foobar"},
		"webhook nil cfg":   {Enabled: true, Type: "webhook"},
		"file nil cfg":      {Enabled: true, Type: "file"},
		"redis nil cfg":     {Enabled: true, Type: "redis"},
		"redis no client":   {Enabled: true, Type: "redis", Redis: &events.RedisConfig{Channel: "c"}},
		"webhook empty url": {Enabled: true, Type: "webhook", Webhook: &events.WebhookConfig{}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := events.NewMultiPublisher([]events.SinkConfig{cfg}, nil, nil); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestMultiPublisher_FansOutAndAggregatesErrors(t *testing.T) {
	ok := events.NewRecorder()
	failing := events.NewRecorder()
	failing.FailWith(errors.New("sink down"))
	mp := events.NewMulti(ok, failing)

	err := mp.Publish(context.Background(), sampleEnvelope())
	if err == nil || !strings.Contains(err.Error(), "sink down") {
		t.Errorf("Publish() error = %v, want aggregated sink error", err)
	}
	if len(ok.Envelopes()) != 1 || len(failing.Envelopes()) != 1 {
		t.Error("every sink should receive the envelope even when one fails")
	}
}

// ---------------------------------------------------------------------------
// LogPublisher
// ---------------------------------------------------------------------------

func TestLogPublisher_WritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	lp := events.NewLogPublisher(logger)

	if err := lp.Publish(context.Background(), sampleEnvelope()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if line["event"] != "repo.registered" {
		t.Errorf("event = %v", line["event"])
	}
}

// ---------------------------------------------------------------------------
// WebhookPublisher
// ---------------------------------------------------------------------------

func TestWebhookPublisher_Direct(t *testing.T) {
	var got events.Envelope
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Token")
		body, _ := io.ReadAll(r.Body)
		var raw struct {
			Name string `json:"name"`
		}
		_ = json.Unmarshal(body, &raw)
		got.Name = raw.Name
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wp, err := events.NewWebhookPublisher(&events.WebhookConfig{
		URL:     srv.URL,
		Headers: map[string]string{"X-Token": "secret"},
	})
	if err != nil {
		t.Fatalf("NewWebhookPublisher: %v", err)
	}
	defer wp.Close()

	if err := wp.Publish(context.Background(), sampleEnvelope()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got.Name != "repo.registered" {
		t.Errorf("received name = %q", got.Name)
	}
	if header != "secret" {
		t.Errorf("X-Token = %q, want secret", header)
	}
}

func TestWebhookPublisher_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	wp, _ := events.NewWebhookPublisher(&events.WebhookConfig{URL: srv.URL})
	defer wp.Close()
	if err := wp.Publish(context.Background(), sampleEnvelope()); err == nil {
		t.Error("expected error for 502 response")
	}
}

func TestWebhookPublisher_BatchFlushedOnClose(t *testing.T) {
	var mu sync.Mutex
	var batches [][]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&batch)
		mu.Lock()
		batches = append(batches, batch)
		mu.Unlock()
	}))
	defer srv.Close()

	wp, err := events.NewWebhookPublisher(&events.WebhookConfig{
		URL:           srv.URL,
		BatchSize:     10,
		FlushInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewWebhookPublisher: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := wp.Publish(context.Background(), sampleEnvelope()); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if err := wp.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	total := 0
	for _, b := range batches {
		total += len(b)
	}
	if total != 3 {
		t.Errorf("delivered %d envelopes across %d batches, want 3", total, len(batches))
	}
}

// ---------------------------------------------------------------------------
// FilePublisher
// ---------------------------------------------------------------------------

func TestFilePublisher_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	fp, err := events.NewFilePublisher(&events.FileConfig{Path: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("NewFilePublisher: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := fp.Publish(context.Background(), sampleEnvelope()); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if err := fp.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var env map[string]interface{}
		if err := json.Unmarshal(sc.Bytes(), &env); err != nil {
			t.Fatalf("line %d is not JSON: %v", lines, err)
		}
		lines++
	}
	if lines != 2 {
		t.Errorf("lines = %d, want 2", lines)
	}
}

func TestFilePublisher_RequiresPath(t *testing.T) {
	if _, err := events.NewFilePublisher(&events.FileConfig{}); err == nil {
		t.Error("expected error for empty path")
	}
}

// ---------------------------------------------------------------------------
// RedisPublisher
// ---------------------------------------------------------------------------

type fakeRedis struct {
	channel string
	message []byte
	err     error
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.message, _ = message.([]byte)
	return redis.NewIntResult(1, f.err)
}

func TestRedisPublisher_Publishes(t *testing.T) {
	fake := &fakeRedis{}
	mp, err := events.NewMultiPublisher([]events.SinkConfig{
		{Enabled: true, Type: "redis", Redis: &events.RedisConfig{Channel: "registry.events"}},
	}, fake, nil)
	if err != nil {
		t.Fatalf("NewMultiPublisher: %v", err)
	}

	if err := mp.Publish(context.Background(), sampleEnvelope()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if fake.channel != "registry.events" {
		t.Errorf("channel = %q", fake.channel)
	}
	if !bytes.Contains(fake.message, []byte(`"repo.registered"`)) {
		t.Errorf("message = %s", fake.message)
	}
}

func TestRedisPublisher_Error(t *testing.T) {
	fake := &fakeRedis{err: errors.New("connection refused")}
	rp, err := events.NewRedisPublisher(fake, &events.RedisConfig{Channel: "c"})
	if err != nil {
		t.Fatalf("NewRedisPublisher: %v", err)
	}
	if err := rp.Publish(context.Background(), sampleEnvelope()); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestNewRedisPublisher_RequiresChannel(t *testing.T) {
	if _, err := events.NewRedisPublisher(&fakeRedis{}, &events.RedisConfig{}); err == nil {
		t.Error("expected error for empty channel")
	}
}
