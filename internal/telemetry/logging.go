package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel переводит значение LOG_LEVEL в slog.Level.
// Неизвестное или пустое значение даёт INFO.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	}
	return level
}

// LogLevel — уровень из LOG_LEVEL.
func LogLevel() slog.Level {
	return ParseLevel(os.Getenv("LOG_LEVEL"))
}

// SetupLogger настраивает глобальный логгер сервисов: stdout, JSON
// (LOG_FORMAT=text для разработки), уровень из LOG_LEVEL.
func SetupLogger() *slog.Logger {
	return install(NewLogger(os.Stdout, os.Getenv("LOG_FORMAT"), LogLevel()))
}

// SetupCLILogger пишет текстом в stderr: stdout занят выводом команд.
func SetupCLILogger() *slog.Logger {
	return install(NewLogger(os.Stderr, "text", LogLevel()))
}

// NewLogger собирает логгер без установки его глобальным.
// На DEBUG к записям добавляется источник.
func NewLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level, AddSource: level <= slog.LevelDebug}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func install(l *slog.Logger) *slog.Logger {
	slog.SetDefault(l)
	return l
}

type loggerKey struct{}

// WithLogger кладёт логгер в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom возвращает логгер из контекста, если он там есть.
func LoggerFrom(ctx context.Context) (*slog.Logger, bool) {
	l, ok := ctx.Value(loggerKey{}).(*slog.Logger)
	return l, ok && l != nil
}

// FromContext — логгер из контекста или slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := LoggerFrom(ctx); ok {
		return l
	}
	return slog.Default()
}

func WithExecutionID(logger *slog.Logger, executionID string) *slog.Logger {
	return logger.With("execution_id", executionID)
}

// WithAgentID не добавляет атрибут для пустого agentID.
func WithAgentID(logger *slog.Logger, agentID string) *slog.Logger {
	if agentID == "" {
		return logger
	}
	return logger.With("agent_id", agentID)
}

func WithStepID(logger *slog.Logger, stepID string) *slog.Logger {
	return logger.With("step_id", stepID)
}
