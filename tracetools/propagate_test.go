package tracetools

import (
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEncoding(t *testing.T) {
	codec, err := ParseEncoding("")
	require.NoError(t, err)
	assert.IsType(t, CodecGob{}, codec)

	codec, err = ParseEncoding("gob")
	require.NoError(t, err)
	assert.IsType(t, CodecGob{}, codec)

	codec, err = ParseEncoding("json")
	require.NoError(t, err)
	assert.IsType(t, CodecJSON{}, codec)

	_, err = ParseEncoding("xml")
	assert.Error(t, err)
}

func TestEncodeDecodeTraceContext(t *testing.T) {
	for _, codec := range []Codec{CodecGob{}, CodecJSON{}} {
		t.Run(codec.String(), func(t *testing.T) {
			mt := mocktracer.New()
			opentracing.SetGlobalTracer(mt)

			span := mt.StartSpan("gate")
			env := map[string]string{}
			require.NoError(t, EncodeTraceContext(span, env, codec))
			require.Contains(t, env, EnvVarTraceContextKey)
			assert.NotEmpty(t, env[EnvVarTraceContextKey])

			sctx, err := DecodeTraceContext(env, codec)
			require.NoError(t, err)

			mockCtx, ok := sctx.(mocktracer.MockSpanContext)
			require.True(t, ok)
			assert.Equal(t, span.(*mocktracer.MockSpan).SpanContext.SpanID, mockCtx.SpanID)
			assert.Equal(t, span.(*mocktracer.MockSpan).SpanContext.TraceID, mockCtx.TraceID)
		})
	}
}

func TestDecodeTraceContext_MissingKey(t *testing.T) {
	_, err := DecodeTraceContext(map[string]string{}, CodecGob{})
	assert.ErrorIs(t, err, opentracing.ErrSpanContextNotFound)
}

func TestDecodeTraceContext_CodecMismatch(t *testing.T) {
	mt := mocktracer.New()
	opentracing.SetGlobalTracer(mt)

	span := mt.StartSpan("gate")
	env := map[string]string{}
	require.NoError(t, EncodeTraceContext(span, env, CodecGob{}))

	_, err := DecodeTraceContext(env, CodecJSON{})
	assert.Error(t, err)
}
