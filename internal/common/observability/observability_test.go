package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestObservability(t *testing.T) (*Observability, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	o, err := New(Config{ServiceName: "test", TraceSampleRate: 1, Registerer: reg})
	require.NoError(t, err)
	t.Cleanup(func() { o.Shutdown(context.Background()) })
	return o, reg
}

func TestObservability_RecordCycle(t *testing.T) {
	o, reg := newTestObservability(t)

	o.RecordCycle(context.Background(), "standalone", "ok", 120*time.Millisecond)
	o.RecordDelivered(context.Background(), "standalone", 3)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["dispatch_cycles_total"], "got %v", names)
	assert.True(t, names["dispatch_notifications_delivered_total"], "got %v", names)
}

func TestObservability_Spans(t *testing.T) {
	o, _ := newTestObservability(t)
	recorder := tracetest.NewSpanRecorder()
	o.RegisterSpanProcessor(recorder)

	ctx, span := o.StartSpan(context.Background(), "dispatch.claim")
	assert.NotEmpty(t, TraceID(ctx))
	EndSpan(span, errors.New("store unavailable"))

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "dispatch.claim", ended[0].Name())
	assert.Len(t, ended[0].Events(), 1, "error recorded as event")
}

func TestObservability_NilIsNoop(t *testing.T) {
	var o *Observability

	ctx, span := o.StartSpan(context.Background(), "noop")
	EndSpan(span, nil)
	assert.Empty(t, TraceID(ctx))

	o.RecordCycle(context.Background(), "x", "ok", time.Second)
	o.RecordDelivered(context.Background(), "x", 1)
	o.RegisterSpanProcessor(nil)
	assert.NoError(t, o.Shutdown(context.Background()))
}
