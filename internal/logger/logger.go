// Package logger provides the process-wide structured logger: slog with a
// JSON handler, or an OpenTelemetry log bridge when OTEL_ENABLED=true.
// Warnings and errors are sampled; their counters are not.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Level = slog.Level

const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug
	LevelInfo    = slog.LevelInfo
	LevelWarning = slog.LevelWarn
	LevelError   = slog.LevelError
	LevelFatal   = slog.Level(12)
)

// Options configures the logger.
type Options struct {
	// Level is a level name understood by ParseLevel. Empty keeps the current level.
	Level string
	// SampleRate logs 1 of every SampleRate warnings and errors. Values <= 1 log all.
	SampleRate int
	// OTel enables OpenTelemetry export under ServiceName.
	OTel        bool
	ServiceName string
	// Output receives JSON logs when OTel is off. Defaults to stdout.
	Output io.Writer
}

var (
	Logger       *slog.Logger
	sampleRate   atomic.Int32
	programLevel = new(slog.LevelVar)
	shutdownFunc func(context.Context) error
)

// Counters, incremented regardless of sampling.
var (
	TotalErrors      atomic.Int64
	TotalWarnings    atomic.Int64
	Total5xxErrors   atomic.Int64
	Total4xxErrors   atomic.Int64
	CompileFailures  atomic.Int64
	CompileSuccesses atomic.Int64
)

func init() {
	opts := Options{
		Level:       os.Getenv("LOG_LEVEL"),
		SampleRate:  1,
		OTel:        strings.EqualFold(os.Getenv("OTEL_ENABLED"), "true"),
		ServiceName: os.Getenv("OTEL_SERVICE_NAME"),
	}
	if s := os.Getenv("ERROR_SAMPLE_RATE"); s != "" {
		if rate, err := strconv.Atoi(s); err == nil && rate > 0 {
			opts.SampleRate = rate
		}
	}
	if err := Configure(context.Background(), opts); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup OTEL logging, falling back to JSON: %v\n", err)
	}
}

// Configure replaces the process logger. When OpenTelemetry setup fails the
// JSON handler is installed and the error returned.
func Configure(ctx context.Context, opts Options) error {
	if opts.Level != "" {
		level, err := ParseLevel(opts.Level)
		if err != nil {
			level = LevelInfo
		}
		programLevel.Set(level)
	}
	if opts.SampleRate < 1 {
		opts.SampleRate = 1
	}
	sampleRate.Store(int32(opts.SampleRate))

	if opts.OTel {
		name := opts.ServiceName
		if name == "" {
			name = "vouchermacro"
		}
		shutdown, err := setupOTELLogging(ctx, name)
		if err == nil {
			shutdownFunc = shutdown
			return nil
		}
		setupJSONLogging(opts.Output)
		return err
	}

	setupJSONLogging(opts.Output)
	return nil
}

func setupJSONLogging(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	Logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: programLevel}))
	slog.SetDefault(Logger)
}

func setupOTELLogging(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlploggrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	Logger = slog.New(&levelHandler{
		level:   programLevel,
		handler: otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(provider)),
	})
	slog.SetDefault(Logger)

	return provider.Shutdown, nil
}

// levelHandler filters records below level before the wrapped handler.
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}

// Shutdown flushes the OpenTelemetry exporter, if any.
func Shutdown(ctx context.Context) error {
	if shutdownFunc != nil {
		return shutdownFunc(ctx)
	}
	return nil
}

// SetLevel sets the minimum log level.
func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

// GetLevel returns the current minimum log level.
func GetLevel() slog.Level {
	return programLevel.Level()
}

// ParseLevel converts a level name to slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO", "":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s (defaulting to INFO)", s)
	}
}

func shouldSample() bool {
	rate := sampleRate.Load()
	if rate <= 1 {
		return true
	}
	return rand.Intn(int(rate)) == 0
}

// Trace logs below debug. Never sampled.
func Trace(msg string, args ...any) {
	Logger.Log(context.Background(), LevelTrace, msg, args...)
}

func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn counts every call and logs a sample.
func Warn(msg string, args ...any) {
	TotalWarnings.Add(1)
	if shouldSample() {
		Logger.Warn(msg, args...)
	}
}

// Error counts every call and logs a sample.
func Error(msg string, args ...any) {
	TotalErrors.Add(1)
	if shouldSample() {
		Logger.Error(msg, args...)
	}
}

// Fatal logs, flushes OpenTelemetry and exits.
func Fatal(msg string, args ...any) {
	Logger.Log(context.Background(), LevelFatal, msg, args...)
	if shutdownFunc != nil {
		_ = shutdownFunc(context.Background())
	}
	os.Exit(1)
}

// RecordHTTPStatus counts 4xx and 5xx responses.
func RecordHTTPStatus(status int) {
	switch {
	case status >= 500:
		Total5xxErrors.Add(1)
		TotalErrors.Add(1)
	case status >= 400:
		Total4xxErrors.Add(1)
		TotalWarnings.Add(1)
	}
}

// RecordCompile counts compilation outcomes.
func RecordCompile(success bool) {
	if success {
		CompileSuccesses.Add(1)
	} else {
		CompileFailures.Add(1)
	}
}

// Stats is a snapshot of the counters.
type Stats struct {
	Errors           int64 `json:"errors"`
	Warnings         int64 `json:"warnings"`
	HTTP5xx          int64 `json:"http5xx"`
	HTTP4xx          int64 `json:"http4xx"`
	CompileSuccesses int64 `json:"compileSuccesses"`
	CompileFailures  int64 `json:"compileFailures"`
}

// Snapshot returns the current counter values.
func Snapshot() Stats {
	return Stats{
		Errors:           TotalErrors.Load(),
		Warnings:         TotalWarnings.Load(),
		HTTP5xx:          Total5xxErrors.Load(),
		HTTP4xx:          Total4xxErrors.Load(),
		CompileSuccesses: CompileSuccesses.Load(),
		CompileFailures:  CompileFailures.Load(),
	}
}
