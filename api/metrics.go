package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"study-planner/domain"
)

const (
	tracerName         = "study-planner/api"
	requestSpanName    = "api.records.request"
	requestEventName   = "planner.api.records.request"
	requestEventDomain = "app"
	observabilityEvent = "observability.event"

	attrHTTPRoute       = "http.route"
	attrHTTPMethod      = "http.method"
	attrHTTPStatusCode  = "http.status_code"
	attrKind            = "planner.kind"
	attrTotalMillis     = "planner.total_ms"
	attrStoreMillis     = "planner.store_ms"
	attrEncodeMillis    = "planner.encode_ms"
	attrRecordsReturned = "planner.records_returned"
	attrReplay          = "planner.idempotent_replay"
	attrErrorStage      = "planner.error_stage"
	attrErrorMessage    = "error.message"
)

// requestMetrics times one API request and reports it both as a span and as
// a structured log entry.
type requestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	route          string
	method         string
	kind           domain.Kind
	storeDuration  time.Duration
	encodeDuration time.Duration
	records        int
	replay         bool
	errorStage     string
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, method, route string) (*requestMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, requestSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String(attrHTTPRoute, route),
			attribute.String(attrHTTPMethod, method),
		),
	)
	return &requestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
		route:  route,
		method: method,
	}, ctx
}

func (m *requestMetrics) SetKind(kind domain.Kind) { m.kind = kind }

func (m *requestMetrics) ObserveStore(d time.Duration) {
	if d <= 0 {
		return
	}
	m.storeDuration = d
}

func (m *requestMetrics) ObserveEncode(d time.Duration) {
	if d <= 0 {
		return
	}
	m.encodeDuration = d
}

func (m *requestMetrics) SetRecordsReturned(n int) {
	if n < 0 {
		n = 0
	}
	m.records = n
}

func (m *requestMetrics) SetReplay(replay bool) { m.replay = replay }

func (m *requestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log ends the span and emits the observability event.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	var (
		fields = make(map[string]any)
		kvs    []attribute.KeyValue
	)
	add := func(kv attribute.KeyValue) {
		kvs = append(kvs, kv)
		fields[string(kv.Key)] = kv.Value.AsInterface()
	}
	add(attribute.String(attrHTTPRoute, m.route))
	add(attribute.String(attrHTTPMethod, m.method))
	add(attribute.Int(attrHTTPStatusCode, status))
	add(attribute.Float64(attrTotalMillis, durationToMillis(time.Since(m.start))))
	add(attribute.Int(attrRecordsReturned, m.records))
	add(attribute.Bool(attrReplay, m.replay))
	if m.kind != "" {
		add(attribute.String(attrKind, string(m.kind)))
	}
	if m.storeDuration > 0 {
		add(attribute.Float64(attrStoreMillis, durationToMillis(m.storeDuration)))
	}
	if m.encodeDuration > 0 {
		add(attribute.Float64(attrEncodeMillis, durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		add(attribute.String(attrErrorStage, m.errorStage))
	}
	if err != nil {
		add(attribute.String(attrErrorMessage, err.Error()))
	}

	severityText, severityNumber := severityForStatus(status, err)

	if m.span != nil {
		m.span.SetAttributes(kvs...)
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", requestEventName),
			attribute.String("event.domain", requestEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		}, kvs...)
		m.span.AddEvent(observabilityEvent, trace.WithAttributes(eventAttrs...))
		switch {
		case err != nil:
			m.span.RecordError(err)
			m.span.SetStatus(codes.Error, err.Error())
		case status >= http.StatusInternalServerError:
			m.span.SetStatus(codes.Error, fmt.Sprintf("status %d", status))
		default:
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	entry := m.logger.WithFields(log.Fields{
		"event.name":      requestEventName,
		"event.domain":    requestEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      fields,
	})
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			entry = entry.WithFields(log.Fields{
				"trace_id": sc.TraceID().String(),
				"span_id":  sc.SpanID().String(),
			})
		}
	}
	entry.Log(levelForSeverity(severityText), observabilityEvent)
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func levelForSeverity(text string) log.Level {
	switch text {
	case "ERROR":
		return log.ErrorLevel
	case "WARN":
		return log.WarnLevel
	default:
		return log.InfoLevel
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
