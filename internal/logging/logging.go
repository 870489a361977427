// Package logging writes structured JSON lines through log/slog.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Fields набор полей одной записи журнала
type Fields struct {
	Component   string
	OrderID     string
	OrderNumber string
	UserID      string
	ProductID   int64
	Step        string
	Status      string
	DurationMS  int64
	Message     string
	Err         error
}

var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// Setup replaces the process logger; level is one of debug, info, warn, error.
func Setup(w io.Writer, level string) *slog.Logger {
	logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
	slog.SetDefault(logger)
	return logger
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Log(f Fields)   { write(slog.LevelInfo, f) }
func Debug(f Fields) { write(slog.LevelDebug, f) }
func Warn(f Fields)  { write(slog.LevelWarn, f) }
func Error(f Fields) { write(slog.LevelError, f) }

func write(level slog.Level, f Fields) {
	ctx := context.Background()
	if !logger.Enabled(ctx, level) {
		return
	}
	attrs := make([]slog.Attr, 0, 9)
	add := func(key, val string) {
		if val != "" {
			attrs = append(attrs, slog.String(key, val))
		}
	}
	add("component", f.Component)
	add("order_id", f.OrderID)
	add("order_number", f.OrderNumber)
	add("user_id", f.UserID)
	add("step", f.Step)
	add("status", f.Status)
	if f.ProductID != 0 {
		attrs = append(attrs, slog.Int64("product_id", f.ProductID))
	}
	if f.DurationMS != 0 {
		attrs = append(attrs, slog.Int64("duration_ms", f.DurationMS))
	}
	if f.Err != nil {
		attrs = append(attrs, slog.String("error", f.Err.Error()))
	}
	msg := f.Message
	if msg == "" {
		msg = f.Step
	}
	logger.LogAttrs(ctx, level, msg, attrs...)
}
