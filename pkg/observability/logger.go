package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogLevel is the minimum severity a Logger emits
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l LogLevel) String() string {
	if l < DebugLevel || l > ErrorLevel {
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLogLevel accepts the level names case-insensitively, plus "warning"
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DebugLevel, nil
	case "INFO":
		return InfoLevel, nil
	case "WARN", "WARNING":
		return WarnLevel, nil
	case "ERROR":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", s)
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Logrus maps the level onto logrus, which the relation plugin registry logs with
func (l LogLevel) Logrus() logrus.Level {
	switch l {
	case DebugLevel:
		return logrus.DebugLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	}
	return logrus.InfoLevel
}

// Logger writes JSON lines through slog
type Logger struct {
	logger *slog.Logger
	level  LogLevel
}

// NewLogger creates a logger writing to output, stdout when nil
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level.slogLevel()})
	return &Logger{logger: slog.New(handler), level: level}
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...), level: l.level}
}

// WithField returns a logger adding key to every entry
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.with(key, value)
}

// WithFields returns a logger adding every field, in key order
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return l.with(args...)
}

// WithError records err under "error"; a nil error returns l unchanged
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}

func (l *Logger) emit(level slog.Level, message string) {
	l.logger.Log(context.Background(), level, message)
}

func (l *Logger) emitf(level slog.Level, format string, args []interface{}) {
	if !l.logger.Enabled(context.Background(), level) {
		return
	}
	l.emit(level, fmt.Sprintf(format, args...))
}

// Debug, Info, Warn and Error log message at their level
func (l *Logger) Debug(message string) { l.emit(slog.LevelDebug, message) }
func (l *Logger) Info(message string) { l.emit(slog.LevelInfo, message) }
func (l *Logger) Warn(message string) { l.emit(slog.LevelWarn, message) }
func (l *Logger) Error(message string) { l.emit(slog.LevelError, message) }

// Debugf, Infof, Warnf and Errorf format the message first
func (l *Logger) Debugf(format string, args ...interface{}) { l.emitf(slog.LevelDebug, format, args) }
func (l *Logger) Infof(format string, args ...interface{}) { l.emitf(slog.LevelInfo, format, args) }
func (l *Logger) Warnf(format string, args ...interface{}) { l.emitf(slog.LevelWarn, format, args) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.emitf(slog.LevelError, format, args) }

// Level returns the minimum level the logger emits
func (l *Logger) Level() LogLevel {
	return l.level
}

// Slog exposes the underlying slog logger for libraries that accept one
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

type contextKey int

const (
	requestKey contextKey = iota
	loggerKey
)

// requestInfo identifies the API request a context belongs to
type requestInfo struct {
	requestID  string
	accountID  int64
	hasAccount bool
}

func requestFrom(ctx context.Context) requestInfo {
	info, _ := ctx.Value(requestKey).(requestInfo)
	return info
}

// WithRequestID tags the context with the request ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	info := requestFrom(ctx)
	info.requestID = requestID
	return context.WithValue(ctx, requestKey, info)
}

// GetRequestID returns the request ID of the context, or ""
func GetRequestID(ctx context.Context) string {
	return requestFrom(ctx).requestID
}

// WithAccountID records the account a request asks permissions for
func WithAccountID(ctx context.Context, accountID int64) context.Context {
	info := requestFrom(ctx)
	info.accountID, info.hasAccount = accountID, true
	return context.WithValue(ctx, requestKey, info)
}

// GetAccountID returns the account ID stored in the context
func GetAccountID(ctx context.Context) (int64, bool) {
	info := requestFrom(ctx)
	return info.accountID, info.hasAccount
}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

var defaultLogger = sync.OnceValue(func() *Logger {
	return NewLogger(InfoLevel, os.Stdout)
})

// GetLogger returns the context's logger, or an info level stdout logger
func GetLogger(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey).(*Logger); ok {
		return logger
	}
	return defaultLogger()
}

// FromContext returns the context's logger with the request ID, account ID and
// trace identifiers attached
func FromContext(ctx context.Context) *Logger {
	logger := GetLogger(ctx)

	info := requestFrom(ctx)
	if info.requestID != "" {
		logger = logger.WithField("request_id", info.requestID)
	}
	if info.hasAccount {
		logger = logger.WithField("account_id", info.accountID)
	}

	return WithTraceContext(ctx, logger)
}
