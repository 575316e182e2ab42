// Package logging builds the console's zerolog logger. Output goes to a
// file because the terminal belongs to the UI.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/grafana/loki-client-go/loki"
	"github.com/prometheus/common/model"
	"github.com/rs/zerolog"

	"github.com/five82/beacon/internal/config"
)

// Setup creates a logger according to cfg. The returned cleanup closes the
// log file and stops the Loki client.
func Setup(cfg config.LoggingConfig) (zerolog.Logger, func(), error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	file, err := openLogFile(cfg.File)
	if err != nil {
		return zerolog.Logger{}, nil, err
	}

	var out io.Writer = file
	if strings.EqualFold(cfg.Format, "console") || strings.EqualFold(cfg.Format, "text") {
		out = zerolog.ConsoleWriter{Out: file, TimeFormat: time.RFC3339, NoColor: true}
	}
	writers := []io.Writer{out}
	closers := []func(){func() { _ = file.Close() }}

	if strings.TrimSpace(cfg.LokiURL) != "" {
		lokiWriter, stop, err := newLokiWriter(cfg.LokiURL, cfg.LokiLabels)
		if err != nil {
			_ = file.Close()
			return zerolog.Logger{}, nil, err
		}
		writers = append(writers, lokiWriter)
		closers = append([]func(){stop}, closers...)
	}

	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}
	multi := zerolog.MultiLevelWriter(writers...)
	logger := zerolog.New(multi).With().Timestamp().Str("app", "beacon").Logger().Level(level)
	return logger, cleanup, nil
}

func openLogFile(path string) (*os.File, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("log file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

func newLokiWriter(url string, extra map[string]string) (io.Writer, func(), error) {
	lokiCfg, err := loki.NewDefaultConfig(url)
	if err != nil {
		return nil, nil, fmt.Errorf("prepare loki config: %w", err)
	}
	client, err := loki.New(lokiCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create loki client: %w", err)
	}
	writer := &lokiWriter{client: client, labels: Labels(extra)}
	return writer, client.Stop, nil
}

// Labels builds the Loki stream labels, always including app="beacon".
// Keys that are not valid label names are dropped.
func Labels(extra map[string]string) model.LabelSet {
	labels := model.LabelSet{"app": "beacon"}
	for k, v := range extra {
		name := model.LabelName(k)
		if !name.IsValid() {
			continue
		}
		labels[name] = model.LabelValue(v)
	}
	return labels
}

type lokiWriter struct {
	client *loki.Client
	labels model.LabelSet
}

func (l *lokiWriter) Write(p []byte) (int, error) {
	entry := strings.TrimSpace(string(p))
	if entry == "" {
		return len(p), nil
	}
	err := l.client.Handle(l.labels, time.Now(), entry)
	return len(p), err
}
