// Package logx provides leveled, component-prefixed logging with env-driven debug domains.
package logx

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

const timestampLayout = "2006-01-02T15:04:05.000Z"

// Logger writes lines of the form "[ts] [component] LEVEL: message".
type Logger struct {
	component string
	logger    *log.Logger
}

// Entry is a captured log line kept in the in-memory ring.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Component string `json:"component"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Domain    string `json:"domain,omitempty"`
}

type debugSettings struct {
	enabled bool
	domains map[string]bool // nil = all domains
}

type ring struct {
	mu      sync.RWMutex
	entries []Entry
	max     int
}

var (
	settings   = &debugSettings{}
	settingsMu sync.RWMutex

	outputMu sync.RWMutex
	output   io.Writer = os.Stderr

	recent = &ring{max: 500}
)

func init() { //nolint:gochecknoinits // env-driven debug switch
	loadDebugFromEnv()
}

// loadDebugFromEnv reads DEBUG=1|true and DEBUG_DOMAINS=a,b.
func loadDebugFromEnv() {
	settingsMu.Lock()
	defer settingsMu.Unlock()

	if v := os.Getenv("DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		settings.enabled = true
	}
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		settings.domains = make(map[string]bool)
		for _, d := range strings.Split(domains, ",") {
			settings.domains[strings.TrimSpace(d)] = true
		}
	}
}

// NewLogger returns a logger whose lines are prefixed with component.
func NewLogger(component string) *Logger {
	return &Logger{component: component, logger: log.New(writer{}, "", 0)}
}

// writer forwards to the current package output so SetOutput affects existing loggers.
type writer struct{}

func (writer) Write(p []byte) (int, error) {
	outputMu.RLock()
	defer outputMu.RUnlock()
	return output.Write(p) //nolint:wrapcheck
}

// SetOutput redirects every logger. It returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	outputMu.Lock()
	defer outputMu.Unlock()
	prev := output
	output = w
	return prev
}

// SetDebug toggles debug output. An empty domain list enables every domain.
func SetDebug(enabled bool, domains ...string) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	settings.enabled = enabled
	if len(domains) == 0 {
		settings.domains = nil
		return
	}
	settings.domains = make(map[string]bool, len(domains))
	for _, d := range domains {
		settings.domains[strings.TrimSpace(d)] = true
	}
}

// IsDebugEnabled reports whether debug output is on for domain ("" = any).
func IsDebugEnabled(domain string) bool {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	if !settings.enabled {
		return false
	}
	if settings.domains == nil || domain == "" {
		return true
	}
	return settings.domains[domain]
}

func (r *ring) add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	if len(r.entries) > r.max {
		r.entries = r.entries[len(r.entries)-r.max:]
	}
}

// Recent returns captured entries, optionally filtered by component.
func Recent(component string) []Entry {
	recent.mu.RLock()
	defer recent.mu.RUnlock()
	out := make([]Entry, 0, len(recent.entries))
	for i := range recent.entries {
		if component != "" && recent.entries[i].Component != component {
			continue
		}
		out = append(out, recent.entries[i])
	}
	return out
}

func (l *Logger) emit(level Level, domain, format string, args ...any) {
	ts := time.Now().UTC().Format(timestampLayout)
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] [%s] %s: %s", ts, l.component, level, msg)
	recent.add(Entry{Timestamp: ts, Component: l.component, Level: string(level), Message: msg, Domain: domain})
}

func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabled(l.component) {
		return
	}
	l.emit(LevelDebug, l.component, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.emit(LevelInfo, "", format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.emit(LevelWarn, "", format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.emit(LevelError, "", format, args...)
}

// Component returns the logger's prefix.
func (l *Logger) Component() string {
	return l.component
}

// With returns a logger sharing output under a new component name.
func (l *Logger) With(component string) *Logger {
	return &Logger{component: component, logger: l.logger}
}

type ctxKey struct{}

// WithTask tags ctx with a task id picked up by Debug.
func WithTask(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, taskID)
}

// TaskFrom returns the task id stored by WithTask.
func TaskFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}

// Debug logs under a domain, honoring DEBUG_DOMAINS.
//
//	logx.Debug(ctx, "patch", "applying %d hunks to %s", n, path)
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !IsDebugEnabled(domain) {
		return
	}
	component := TaskFrom(ctx)
	if component == "" {
		component = "devloop"
	}
	NewLogger(component).emit(LevelDebug, domain, "[%s] %s", domain, fmt.Sprintf(format, args...))
}

var defaultLogger = NewLogger("devloop")

func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error.
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err and returns fmt.Errorf("%s: %w", msg, err).
//
//	if err != nil { return logx.Wrap(err, "open journal") }
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrapped.Error())
	return wrapped
}
