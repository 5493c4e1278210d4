package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel, AddSource: level == "debug"}

	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler).With("service", "reqgateway", "version", Version, "pid", os.Getpid())
}

// slogLogger adapts *slog.Logger to the natsclient.Logger and demux.Logger
// interfaces, both of which want Printf/Errorf/Debugf.
type slogLogger struct {
	logger *slog.Logger
}

func (l slogLogger) Printf(format string, v ...any) {
	l.logger.Info(formatf(format, v...))
}

func (l slogLogger) Errorf(format string, v ...any) {
	l.logger.Error(formatf(format, v...))
}

func (l slogLogger) Debugf(format string, v ...any) {
	l.logger.Debug(formatf(format, v...))
}

func formatf(format string, v ...any) string {
	if len(v) == 0 {
		return format
	}
	return fmt.Sprintf(format, v...)
}
