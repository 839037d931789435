package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig holds file sink configuration
type FileConfig struct {
	// Path is the event log file path
	Path string `mapstructure:"path"`
	// MaxSizeMB is the maximum file size before rotation
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep
	MaxBackups int `mapstructure:"max_backups"`
	// MaxAgeDays is how long rotated files are kept (0 = forever)
	MaxAgeDays int `mapstructure:"max_age_days"`
	// Compress gzips rotated files
	Compress bool `mapstructure:"compress"`
}

// FilePublisher appends one JSON line per envelope and rotates by size.
type FilePublisher struct {
	out *lumberjack.Logger
	mu  sync.Mutex
}

func NewFilePublisher(cfg *FileConfig) (*FilePublisher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file path is required")
	}
	return &FilePublisher{
		out: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
	}, nil
}

func (fp *FilePublisher) Publish(_ context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()
	if _, err := fp.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// Rotate closes the current file and starts a new one.
func (fp *FilePublisher) Rotate() error {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.out.Rotate()
}

func (fp *FilePublisher) Close() error {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.out.Close()
}
