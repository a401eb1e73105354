package kafkax

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// headerCarrier adapts []kafka.Header to the propagator's carrier interface.
// Methods are on the pointer: Set must mutate the backing slice the caller
// reads back after Inject.
type headerCarrier struct {
	headers []kafka.Header
}

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)

func (c *headerCarrier) Get(key string) string {
	return HeaderValue(c.headers, key)
}

func (c *headerCarrier) Set(key, value string) {
	for i := range c.headers {
		if c.headers[i].Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, len(c.headers))
	for i, h := range c.headers {
		keys[i] = h.Key
	}
	return keys
}

// InjectTraceHeaders returns headers with the current trace context added.
func InjectTraceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	hc := &headerCarrier{headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, hc)
	return hc.headers
}

// ExtractTraceContext reads trace context from a consumed message's headers.
func ExtractTraceContext(ctx context.Context, msg kafka.Message) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, &headerCarrier{headers: msg.Headers})
}
