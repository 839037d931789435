package safego

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLogs(t *testing.T) *syncBuffer {
	t.Helper()
	buf := &syncBuffer{}
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return buf
}

func TestGo_RunsFunction(t *testing.T) {
	done := make(chan struct{})
	Go("reconcile", func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("background task did not run")
	}
}

func TestGo_RecoversPanicAndLogsTask(t *testing.T) {
	logs := captureLogs(t)

	Go("event-batcher", func() { panic("sink closed") })

	require.Eventually(t, func() bool { return logs.String() != "" }, 2*time.Second, 10*time.Millisecond)

	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(logs.String()), &line))
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, "event-batcher", line["task"])
	assert.Equal(t, "sink closed", line["panic"])
	assert.Contains(t, line["stack"], "goroutine")
}

func TestRecover_NoPanicLogsNothing(t *testing.T) {
	logs := captureLogs(t)
	func() {
		defer Recover("noop")
	}()
	assert.Empty(t, logs.String())
}
