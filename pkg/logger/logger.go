package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr or a file path
	TimeFormat string
	Service    string
}

// Logger is a thin zerolog wrapper. Children made with With share the
// error collector of their root, including one attached later.
type Logger struct {
	zl   zerolog.Logger
	sink *atomic.Pointer[Collector]
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	out, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = timeFormat
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}
	service := cfg.Service
	if service == "" {
		service = "triggerdesk"
	}
	zl := zerolog.New(out).Level(level).With().
		Timestamp().
		Str("service", service).
		CallerWithSkipFrameCount(4).
		Logger()
	return &Logger{zl: zl, sink: new(atomic.Pointer[Collector])}, nil
}

func openOutput(target string) (io.Writer, error) {
	switch target {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("log output %s: %w", target, err)
	}
	return f, nil
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop(), sink: new(atomic.Pointer[Collector])}
}

// With returns a child tagged with component.
func (l *Logger) With(component string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", component).Logger(), sink: l.sink}
}

// AddCollector starts aggregating error logs into cfg's topic, replacing
// any collector already attached.
func (l *Logger) AddCollector(cfg *CollectionConfig) {
	if old := l.sink.Swap(NewCollector(cfg)); old != nil {
		old.Close()
	}
}

// RemoveCollector detaches the collector and flushes what it holds.
func (l *Logger) RemoveCollector() {
	if old := l.sink.Swap(nil); old != nil {
		old.Close()
	}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.write(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.write(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.write(l.zl.Warn(), msg, fields) }

// Error also feeds the collector when one is attached.
func (l *Logger) Error(msg string, fields ...Field) {
	l.write(l.zl.Error(), msg, fields)
	if c := l.sink.Load(); c != nil {
		c.Add("error", msg, fieldMap(fields), caller(1))
	}
}

func (l *Logger) write(ev *zerolog.Event, msg string, fields []Field) {
	if ev == nil {
		return
	}
	for _, f := range fields {
		f.apply(ev)
	}
	ev.Msg(msg)
}

func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown"
	}
	if i := strings.LastIndex(file, "TriggerDesk/"); i >= 0 {
		file = file[i+len("TriggerDesk/"):]
	}
	return fmt.Sprintf("%s:%d", file, line)
}

func fieldMap(fields []Field) map[string]any {
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	return m
}

// Field is one structured key/value pair.
type Field struct {
	Key   string
	Value any
	apply func(*zerolog.Event)
}

func String(key, v string) Field {
	return Field{Key: key, Value: v, apply: func(e *zerolog.Event) { e.Str(key, v) }}
}

func Strings(key string, v []string) Field {
	return Field{Key: key, Value: v, apply: func(e *zerolog.Event) { e.Strs(key, v) }}
}

func Int(key string, v int) Field {
	return Field{Key: key, Value: v, apply: func(e *zerolog.Event) { e.Int(key, v) }}
}

func Int64(key string, v int64) Field {
	return Field{Key: key, Value: v, apply: func(e *zerolog.Event) { e.Int64(key, v) }}
}

func Float64(key string, v float64) Field {
	return Field{Key: key, Value: v, apply: func(e *zerolog.Event) { e.Float64(key, v) }}
}

func Bool(key string, v bool) Field {
	return Field{Key: key, Value: v, apply: func(e *zerolog.Event) { e.Bool(key, v) }}
}

// Duration is logged in milliseconds.
func Duration(key string, v time.Duration) Field {
	ms := v.Milliseconds()
	return Field{Key: key, Value: ms, apply: func(e *zerolog.Event) { e.Int64(key, ms) }}
}

func Any(key string, v any) Field {
	return Field{Key: key, Value: v, apply: func(e *zerolog.Event) { e.Interface(key, v) }}
}

func Error(err error) Field {
	var msg string
	if err != nil {
		msg = err.Error()
	}
	return Field{Key: "error", Value: msg, apply: func(e *zerolog.Event) { e.Err(err) }}
}
