package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/restman-dev/restman/internal/reqdef"
)

var (
	tracerName  = "github.com/restman-dev/restman/internal/telemetry"
	httpHostKey = attribute.Key("http.host")
)

type Instrumenter interface {
	Start(ctx context.Context, info RequestStart) (context.Context, RequestSpan)
	Shutdown(ctx context.Context) error
}

type RequestStart struct {
	Request     *reqdef.RequestContext
	HTTPRequest *http.Request
}

type RequestResult struct {
	Err        error
	StatusCode int
}

type RequestSpan interface {
	RecordResponse(resp *reqdef.ResponseContext)
	End(result RequestResult)
}

type providerOptions struct {
	exporter       sdktrace.SpanExporter
	spanProcessors []sdktrace.SpanProcessor
}

type Option func(*providerOptions)

func WithSpanProcessor(proc sdktrace.SpanProcessor) Option {
	return func(opts *providerOptions) {
		if proc != nil {
			opts.spanProcessors = append(opts.spanProcessors, proc)
		}
	}
}

func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(opts *providerOptions) {
		if exp != nil {
			opts.exporter = exp
		}
	}
}

type manager struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	shutdown sync.Once
}

func New(cfg Config, opts ...Option) (Instrumenter, error) {
	builder := providerOptions{}
	for _, opt := range opts {
		opt(&builder)
	}

	if !cfg.Enabled() && builder.exporter == nil && len(builder.spanProcessors) == 0 {
		return Noop(), nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(buildResourceAttributes(cfg)...),
	)
	if err != nil {
		return nil, err
	}

	exporter := builder.exporter
	if exporter == nil && cfg.Enabled() {
		exporter, err = newExporter(cfg)
		if err != nil {
			return nil, err
		}
	}

	var tpOpts []sdktrace.TracerProviderOption
	tpOpts = append(tpOpts, sdktrace.WithResource(res))
	if exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}
	for _, proc := range builder.spanProcessors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(proc))
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	return &manager{tracer: tp.Tracer(tracerName), provider: tp}, nil
}

func (m *manager) Start(ctx context.Context, info RequestStart) (context.Context, RequestSpan) {
	if info.HTTPRequest == nil {
		return ctx, noopSpan{}
	}

	attrs := buildSpanAttributes(info)
	spanName := spanNameFor(info)
	ctx, span := m.tracer.Start(
		ctx,
		spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx, &requestSpan{span: span}
}

func (m *manager) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	var shutdownErr error
	m.shutdown.Do(func() {
		shutdownErr = m.provider.Shutdown(ctx)
	})
	return shutdownErr
}

type requestSpan struct {
	span trace.Span
}

func (rs *requestSpan) RecordResponse(resp *reqdef.ResponseContext) {
	if rs == nil || rs.span == nil || resp == nil {
		return
	}

	rs.span.SetAttributes(
		attribute.Int64("restman.response.duration_ms", resp.Duration.Milliseconds()),
		attribute.Int64("restman.response.size_bytes", resp.Size),
	)
	if resp.EffectiveURL != "" {
		rs.span.SetAttributes(attribute.String("restman.response.effective_url", resp.EffectiveURL))
	}
	if resp.Failed && strings.TrimSpace(resp.TransportError) != "" {
		rs.span.AddEvent(
			"restman.transport.error",
			trace.WithAttributes(attribute.String("restman.error", resp.TransportError)),
		)
	}
}

func (rs *requestSpan) End(result RequestResult) {
	if rs == nil || rs.span == nil {
		return
	}

	if result.StatusCode > 0 {
		rs.span.SetAttributes(semconv.HTTPStatusCodeKey.Int(result.StatusCode))
	}

	statusCode := codes.Unset
	statusMsg := ""

	if result.Err != nil {
		rs.span.RecordError(result.Err)
		statusCode = codes.Error
		statusMsg = result.Err.Error()
	}

	if result.Err == nil && result.StatusCode >= 400 {
		statusCode = codes.Error
		statusMsg = fmt.Sprintf("HTTP %d", result.StatusCode)
	}

	if statusCode == codes.Unset {
		statusCode = codes.Ok
		statusMsg = "OK"
	}

	rs.span.SetStatus(statusCode, statusMsg)
	rs.span.End()
}

func Noop() Instrumenter {
	return noopInstrumenter{}
}

type noopInstrumenter struct{}

type noopSpan struct{}

func (noopInstrumenter) Start(ctx context.Context, _ RequestStart) (context.Context, RequestSpan) {
	return ctx, noopSpan{}
}

func (noopInstrumenter) Shutdown(context.Context) error { return nil }

func (noopSpan) RecordResponse(*reqdef.ResponseContext) {}

func (noopSpan) End(RequestResult) {}

func newExporter(cfg Config) (sdktrace.SpanExporter, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("telemetry endpoint is required")
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	clientOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		clientOpts = append(clientOpts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	client := otlptracegrpc.NewClient(clientOpts...)
	return otlptrace.New(ctx, client)
}

func buildResourceAttributes(cfg Config) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
	}
	if strings.TrimSpace(cfg.Version) != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.Version))
	}
	return attrs
}

func buildSpanAttributes(info RequestStart) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Bool("restman.trace.enabled", true),
	}

	req := info.HTTPRequest
	if req.Method != "" {
		attrs = append(attrs, semconv.HTTPMethodKey.String(req.Method))
	} else if info.Request != nil && info.Request.Method != "" {
		attrs = append(attrs, semconv.HTTPMethodKey.String(info.Request.Method))
	}

	if req.URL != nil {
		if scheme := req.URL.Scheme; scheme != "" {
			attrs = append(attrs, semconv.HTTPSchemeKey.String(scheme))
		}
		if host := req.URL.Host; host != "" {
			attrs = append(attrs, httpHostKey.String(host))
		}
		if target := req.URL.RequestURI(); target != "" {
			attrs = append(attrs, semconv.HTTPTargetKey.String(target))
		}
		if full := req.URL.String(); full != "" {
			attrs = append(attrs, semconv.HTTPURLKey.String(full))
		}
	}

	if info.Request != nil {
		if name := strings.TrimSpace(info.Request.RequestName); name != "" {
			attrs = append(attrs, attribute.String("restman.request.name", name))
		}
		if len(info.Request.Unresolved) > 0 {
			attrs = append(
				attrs,
				attribute.String("restman.request.unresolved", strings.Join(info.Request.Unresolved, ",")),
			)
		}
	}

	return attrs
}

func spanNameFor(info RequestStart) string {
	if info.Request != nil {
		if name := strings.TrimSpace(info.Request.RequestName); name != "" {
			return name
		}
	}
	if info.HTTPRequest != nil && info.HTTPRequest.Method != "" {
		if info.HTTPRequest.URL != nil && info.HTTPRequest.URL.Host != "" {
			return fmt.Sprintf("%s %s", info.HTTPRequest.Method, info.HTTPRequest.URL.Host)
		}
		return info.HTTPRequest.Method
	}
	return "http.request"
}
