// Package logging sets up the process-wide JSON logger and the fixed field set
// used by checkout, reconciliation and the sweeper.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

type Fields struct {
	Service    string
	OrderCode  string
	OrderID    int64
	Step       string
	Status     string
	DurationMS int64
	Err        error
}

func (f Fields) attrs() []slog.Attr {
	out := make([]slog.Attr, 0, 7)
	if f.Service != "" {
		out = append(out, slog.String("service", f.Service))
	}
	if f.OrderCode != "" {
		out = append(out, slog.String("order_code", f.OrderCode))
	}
	if f.OrderID != 0 {
		out = append(out, slog.Int64("order_id", f.OrderID))
	}
	if f.Step != "" {
		out = append(out, slog.String("step", f.Step))
	}
	if f.Status != "" {
		out = append(out, slog.String("status", f.Status))
	}
	if f.DurationMS != 0 {
		out = append(out, slog.Int64("duration_ms", f.DurationMS))
	}
	if f.Err != nil {
		out = append(out, slog.String("error", f.Err.Error()))
	}
	return out
}

// New は JSON ロガーを作る。level は debug/info/warn/error。
func New(w io.Writer, service, level string) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return slog.New(h).With(slog.String("service", service))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Log は Fields を1行で出す。Err があれば error レベル。
func Log(ctx context.Context, l *slog.Logger, msg string, f Fields) {
	if l == nil {
		l = slog.Default()
	}
	level := slog.LevelInfo
	if f.Err != nil {
		level = slog.LevelError
	}
	l.LogAttrs(ctx, level, msg, f.attrs()...)
}

// Since は開始時刻からのミリ秒
func Since(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

// Discard はテスト用
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
