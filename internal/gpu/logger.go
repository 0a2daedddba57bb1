//go:build !nogpu

// Package-level logging for internal/gpu: every stage-dispatch, buffer-
// allocation, frame-guard and backend-lifecycle log line in this package
// (backend.go, splat_stages.go, splat_renderer.go) goes through slogger() rather than a struct field, since
// Backend and SplatDispatcher are constructed independently and neither
// owns the other — a shared package logger avoids threading a *slog.Logger
// through every constructor just to reach the handful of Debug/Info calls
// that fire once per pipeline init or per frame.
package gpu

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards every record; it's the default before any host
// application opts in via Renderer.SetLogger.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// slogger returns the logger currently installed for this package.
func slogger() *slog.Logger { return loggerPtr.Load() }

// setLogger installs l as the package logger, or restores the no-op
// default if l is nil. Called from Renderer.SetLogger.
func setLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}
