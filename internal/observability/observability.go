// Package observability configures process-wide logging and trace propagation.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const instrumentationName = "github.com/florianilch/vidclient"

// Log output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Log exporters. ExporterNone keeps logs on the local slog handler.
const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
)

// Config selects how logs are produced.
type Config struct {
	Level    slog.Level
	Format   string
	Exporter string

	// Writer receives local and stdout-exported logs. Defaults to os.Stderr.
	Writer io.Writer
}

// Instrument installs the default slog logger and the global text map
// propagator. The returned function flushes and stops any log exporter.
func Instrument(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.Exporter == "" || cfg.Exporter == ExporterNone {
		handler, err := localHandler(w, cfg.Format, cfg.Level)
		if err != nil {
			return nil, err
		}
		slog.SetDefault(slog.New(handler))
		return func(context.Context) error { return nil }, nil
	}

	processor, err := newProcessor(ctx, w, cfg.Exporter)
	if err != nil {
		return nil, err
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(minsev.NewLogProcessor(processor, severity(cfg.Level))),
	)
	global.SetLoggerProvider(provider)
	slog.SetDefault(slog.New(otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))))

	return provider.Shutdown, nil
}

func localHandler(w io.Writer, format string, level slog.Level) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case "", FormatText:
		return slog.NewTextHandler(w, opts), nil
	case FormatJSON:
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
}

func newProcessor(ctx context.Context, w io.Writer, exporter string) (sdklog.Processor, error) {
	switch exporter {
	case ExporterStdout:
		exp, err := stdoutlog.New(stdoutlog.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("creating stdout log exporter: %w", err)
		}
		return sdklog.NewSimpleProcessor(exp), nil
	case ExporterOTLPHTTP:
		// Endpoint and headers come from the standard OTEL_EXPORTER_OTLP_* variables.
		exp, err := otlploghttp.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating otlp http log exporter: %w", err)
		}
		return sdklog.NewBatchProcessor(exp), nil
	case ExporterOTLPGRPC:
		exp, err := otlploggrpc.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating otlp grpc log exporter: %w", err)
		}
		return sdklog.NewBatchProcessor(exp), nil
	default:
		return nil, fmt.Errorf("unsupported log exporter: %s", exporter)
	}
}

// severity maps a slog level onto the OpenTelemetry severity scale.
func severity(level slog.Level) minsev.Severity {
	switch {
	case level < slog.LevelInfo:
		return minsev.SeverityDebug
	case level < slog.LevelWarn:
		return minsev.SeverityInfo
	case level < slog.LevelError:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
