package tracetools

import (
	"bytes"
	"encoding/base64"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"net/http"

	ot "github.com/opentracing/opentracing-go"
)

// EnvVarTraceContextKey is the env var key that will be used to store/retrieve the
// encoded trace context information into env var maps.
const EnvVarTraceContextKey = "KUBEGATE_TRACE_CONTEXT"

// Codec implementations serialize and deserialize trace context carriers.
type Codec interface {
	Encode(http.Header) (string, error)
	Decode(string) (http.Header, error)
	fmt.Stringer
}

// CodecGob encodes carriers with encoding/gob. This is the default, mainly
// for compatibility with sessions launched by older versions of kubegate.
type CodecGob struct{}

func (CodecGob) String() string { return "gob" }

func (CodecGob) Encode(carrier http.Header) (string, error) {
	buf := bytes.NewBuffer(nil)
	if err := gob.NewEncoder(buf).Encode(carrier); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(buf.Bytes()), nil
}

func (CodecGob) Decode(value string) (http.Header, error) {
	contextBytes, err := base64.URLEncoding.DecodeString(value)
	if err != nil {
		return nil, err
	}
	carrier := http.Header{}
	if err := gob.NewDecoder(bytes.NewReader(contextBytes)).Decode(&carrier); err != nil {
		return nil, err
	}
	return carrier, nil
}

// CodecJSON encodes carriers with encoding/json, for use where the consuming
// process may not be written in Go.
type CodecJSON struct{}

func (CodecJSON) String() string { return "json" }

func (CodecJSON) Encode(carrier http.Header) (string, error) {
	b, err := json.Marshal(carrier)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func (CodecJSON) Decode(value string) (http.Header, error) {
	contextBytes, err := base64.URLEncoding.DecodeString(value)
	if err != nil {
		return nil, err
	}
	carrier := http.Header{}
	if err := json.Unmarshal(contextBytes, &carrier); err != nil {
		return nil, err
	}
	return carrier, nil
}

// ParseEncoding converts an encoding name into the codec that implements it.
// The empty string parses as gob, since that was the only encoding before the
// flag existed.
func ParseEncoding(encoding string) (Codec, error) {
	switch encoding {
	case "", "gob":
		return CodecGob{}, nil
	case "json":
		return CodecJSON{}, nil
	default:
		return nil, fmt.Errorf("unknown trace context encoding %q", encoding)
	}
}

// EncodeTraceContext will serialize and encode tracing data into a string and place
// it into the given env vars map.
func EncodeTraceContext(span ot.Span, env map[string]string, codec Codec) error {
	headers := http.Header{}
	if err := span.Tracer().Inject(span.Context(), ot.HTTPHeaders, ot.HTTPHeadersCarrier(headers)); err != nil {
		return err
	}

	encoded, err := codec.Encode(headers)
	if err != nil {
		return err
	}

	env[EnvVarTraceContextKey] = encoded
	return nil
}

// DecodeTraceContext will decode, deserialize, and extract the tracing data from the
// given env var map.
func DecodeTraceContext(env map[string]string, codec Codec) (ot.SpanContext, error) {
	s, has := env[EnvVarTraceContextKey]
	if !has {
		return nil, ot.ErrSpanContextNotFound
	}

	headers, err := codec.Decode(s)
	if err != nil {
		return nil, err
	}

	return ot.GlobalTracer().Extract(ot.HTTPHeaders, ot.HTTPHeadersCarrier(headers))
}
