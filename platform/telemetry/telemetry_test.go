package telemetry

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.RecordRun("service", "starlark", time.Millisecond, nil)
	m.RecordCompile("starlark", true)
	m.RecordBuild(nil)
	m.RecordTerminate(errors.New("x"))
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Record(t *testing.T) {
	t.Parallel()

	m := NewMetrics("test")
	m.RecordRun("service", "lua", 5*time.Millisecond, nil)
	m.RecordRun("service", "lua", 5*time.Millisecond, errors.New("boom"))
	m.RecordRun("init", "lua", time.Millisecond, nil)
	m.RecordCompile("lua", false)
	m.RecordCompile("lua", true)
	m.RecordCompile("lua", true)
	m.RecordBuild(nil)
	m.RecordBuild(errors.New("nope"))
	m.RecordTerminate(nil)

	assert.InDelta(t, 1, testutil.ToFloat64(m.scriptRuns.WithLabelValues("service", "lua", OutcomeSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.scriptRuns.WithLabelValues("service", "lua", OutcomeFailure)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.compilations.WithLabelValues("lua", "hit")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.builds.WithLabelValues(OutcomeFailure)), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.liveInterps), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.scriptDuration))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_script_runs_total")
}

func TestEndSpan(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	_, ok := tracer.Start(t.Context(), "ok")
	EndSpan(ok, nil)
	_, failed := tracer.Start(t.Context(), "failed")
	EndSpan(failed, errors.New("boom"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "boom", spans[1].Status().Description)
}

func TestNoopTracer(t *testing.T) {
	t.Parallel()

	_, span := NoopTracer().Start(t.Context(), "x")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestSetupStdoutTracing(t *testing.T) {
	var buf bytes.Buffer
	tracer, shutdown, err := SetupStdoutTracing(&buf)
	require.NoError(t, err)

	_, span := tracer.Start(t.Context(), "stdout-span")
	span.End()
	require.NoError(t, shutdown(t.Context()))
	assert.Contains(t, buf.String(), "stdout-span")
}
