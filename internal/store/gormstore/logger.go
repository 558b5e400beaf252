package gormstore

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/JonMunkholm/shopflow/internal/logging"
)

// LoggerConfig configures the gorm slog logger.
type LoggerConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
}

// DefaultLoggerConfig logs errors and slow statements.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:         gormlogger.Warn,
		SlowThreshold: 200 * time.Millisecond,
	}
}

// Logger implements gormlogger.Interface on top of slog. Entries carry the
// batch id of the context.
type Logger struct {
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// NewLogger builds a Logger.
func NewLogger(cfg LoggerConfig) *Logger {
	return &Logger{level: cfg.Level, slowThreshold: cfg.SlowThreshold}
}

// LogMode returns a logger with the updated level.
func (l *Logger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *l
	c.level = level
	return &c
}

func (l *Logger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		l.log(ctx, slog.LevelInfo, msg, data)
	}
}

func (l *Logger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		l.log(ctx, slog.LevelWarn, msg, data)
	}
}

func (l *Logger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		l.log(ctx, slog.LevelError, msg, data)
	}
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, data []any) {
	args := []any{"component", "gorm"}
	if len(data) > 0 {
		args = append(args, "data", data)
	}
	logging.FromContext(ctx).Log(ctx, level, msg, args...)
}

// Trace logs a statement. Record-not-found is expected while resolving keys
// and is never logged as an error.
func (l *Logger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gormlogger.ErrRecordNotFound):
		l.logQuery(ctx, fc, elapsed, err, slog.LevelError)
	case l.slowThreshold != 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		l.logQuery(ctx, fc, elapsed, nil, slog.LevelWarn)
	case l.level >= gormlogger.Info:
		l.logQuery(ctx, fc, elapsed, nil, slog.LevelDebug)
	}
}

// ParamsFilter strips bound values so customer data stays out of the log.
func (l *Logger) ParamsFilter(_ context.Context, sql string, _ ...any) (string, []any) {
	return sql, nil
}

func (l *Logger) logQuery(ctx context.Context, fc func() (string, int64), elapsed time.Duration, err error, level slog.Level) {
	sql, rows := fc()
	args := []any{
		"component", "gorm",
		"sql", strings.TrimSpace(sql),
		"operation", operationFromSQL(sql),
		"duration_ms", elapsed.Milliseconds(),
	}
	if rows >= 0 {
		args = append(args, "rows_affected", rows)
	}
	if err != nil {
		args = append(args, "error", err)
	}
	logging.FromContext(ctx).Log(ctx, level, "gorm query", args...)
}

func operationFromSQL(sql string) string {
	normalized := strings.ToUpper(strings.TrimSpace(sql))
	for _, token := range strings.Fields(normalized) {
		token = strings.Trim(token, "();")
		switch token {
		case "SELECT", "INSERT", "UPDATE", "DELETE", "CREATE", "ALTER":
			return token
		case "WITH":
			continue
		}
	}
	return "UNKNOWN"
}

var _ gormlogger.Interface = (*Logger)(nil)
