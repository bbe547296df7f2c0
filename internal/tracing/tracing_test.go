package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracerDisabled(t *testing.T) {
	closer, err := InitTracer(false, "fetscr-test", "")
	require.NoError(t, err)
	assert.NoError(t, closer.Close())
}

func TestSpanHelpers(t *testing.T) {
	tracer := mocktracer.New()
	prev := opentracing.GlobalTracer()
	opentracing.SetGlobalTracer(tracer)
	t.Cleanup(func() { opentracing.SetGlobalTracer(prev) })

	span, ctx := StartSpan(context.Background(), "aggregation.run")
	SetTag(span, "keywords", 2)
	LogError(span, errors.New("boom"))

	child, _ := StartSpan(ctx, "aggregation.collect")
	FinishSpan(child)
	FinishSpan(span)

	finished := tracer.FinishedSpans()
	require.Len(t, finished, 2)
	assert.Equal(t, "aggregation.collect", finished[0].OperationName)
	assert.Equal(t, finished[1].SpanContext.SpanID, finished[0].ParentID)
	assert.Equal(t, 2, finished[1].Tag("keywords"))
	assert.Equal(t, true, finished[1].Tag("error"))
}

func TestNilSpanHelpers(t *testing.T) {
	FinishSpan(nil)
	LogError(nil, errors.New("ignored"))
	SetTag(nil, "k", "v")
}
