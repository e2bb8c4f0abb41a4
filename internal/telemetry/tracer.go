// Package telemetry sets up OpenTelemetry tracing.
package telemetry

import (
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Options configures the tracer provider.
type Options struct {
	ServiceName string
	// Writer receives exported spans. Defaults to stdout.
	Writer io.Writer
	Pretty bool
	// Global installs the provider as the otel global.
	Global bool
	Logger *slog.Logger
}

// NewTracerProvider builds a batching tracer provider exporting to a
// writer. Callers own Shutdown, which flushes pending spans.
func NewTracerProvider(opts Options) (*sdktrace.TracerProvider, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	exportOpts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
	if opts.Pretty {
		exportOpts = append(exportOpts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(exportOpts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(opts.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	if opts.Global {
		otel.SetTracerProvider(tp)
	}
	if opts.Logger != nil {
		opts.Logger.Info("tracing initialized", slog.String("service", opts.ServiceName))
	}
	return tp, nil
}
