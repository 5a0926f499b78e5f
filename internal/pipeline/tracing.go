package pipeline

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/robbyt/go-scriptsvc/platform/telemetry"
)

const payloadPreviewLen = 100

// TracingMiddleware opens a span around each handled message and stores it in the message
// context, so script run spans nest below it.
func TracingMiddleware(tracer trace.Tracer) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			ctx := msg.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			preview := string(msg.Payload)
			if len(preview) > payloadPreviewLen {
				preview = preview[:payloadPreviewLen] + "..."
			}

			spanCtx, span := tracer.Start(ctx, "pipeline.process",
				trace.WithSpanKind(trace.SpanKindConsumer),
				trace.WithAttributes(
					attribute.String("messaging.system", "watermill"),
					attribute.String("messaging.operation", "process"),
					attribute.String("messaging.destination", message.SubscribeTopicFromCtx(msg.Context())),
					attribute.String("messaging.message_id", msg.UUID),
					attribute.Int("messaging.message_payload_size_bytes", len(msg.Payload)),
					attribute.String("messaging.message_payload_preview", preview),
				),
			)
			msg.SetContext(spanCtx)

			produced, err := h(msg)
			if err == nil {
				span.SetAttributes(attribute.Int("messaging.messages_produced", len(produced)))
			}
			telemetry.EndSpan(span, err)
			return produced, err
		}
	}
}
