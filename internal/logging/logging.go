// Package logging builds the process logger: human friendly output on the
// console plus an append-only log file with one "[time] LEVEL: message" line
// per entry.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"feed-engine/internal/clock"
)

type Config struct {
	// File is the append-only log file. Empty disables file output.
	File  string
	Level string
	// Console receives the console output; nil means stderr.
	Console io.Writer
}

// New returns a logger and the closer for its log file.
func New(cfg Config) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.Console != nil {
		logger.SetOutput(cfg.Console)
	} else {
		logger.SetOutput(os.Stderr)
	}

	if cfg.Level != "" {
		level, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("parse log level: %w", err)
		}
		logger.SetLevel(level)
	}

	if cfg.File == "" {
		return logger, io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger.AddHook(NewWriterHook(file, &LineFormatter{}))
	return logger, file, nil
}

// LineFormatter renders "[2006-01-02 15:04:05] LEVEL: message". Fields, if
// any, follow the message as sorted key=value pairs.
type LineFormatter struct{}

func (f *LineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "[%s] %s: %s", entry.Time.Format(clock.Layout), strings.ToUpper(entry.Level.String()), entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// WriterHook copies every entry at or above the logger's level to w.
type WriterHook struct {
	mu        sync.Mutex
	w         io.Writer
	formatter logrus.Formatter
}

func NewWriterHook(w io.Writer, formatter logrus.Formatter) *WriterHook {
	return &WriterHook{w: w, formatter: formatter}
}

func (h *WriterHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *WriterHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(line)
	return err
}
