// Package pipeline feeds messages through an in-memory watermill router to a handler, usually
// service.Service.Handle. Successful results go to the output topic; failed messages go to the
// poison topic with the failure reason in their metadata.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.opentelemetry.io/otel/trace"

	"github.com/robbyt/go-scriptsvc/internal/helpers"
	"github.com/robbyt/go-scriptsvc/platform/telemetry"
)

const (
	DefaultInputTopic  = "scripts.in"
	DefaultOutputTopic = "scripts.out"
	DefaultPoisonTopic = "scripts.poison"

	handlerName = "script-service"

	// PoisonReasonKey holds the handler error on messages routed to the poison topic.
	PoisonReasonKey = middleware.ReasonForPoisonedKey
)

// Topics names the three pipeline topics.
type Topics struct {
	Input  string
	Output string
	Poison string
}

// Pipeline owns the pub/sub and the router that drives the handler.
type Pipeline struct {
	topics Topics
	pubsub *gochannel.GoChannel
	router *message.Router
	logger *slog.Logger
}

type Option func(*settings)

type settings struct {
	topics       Topics
	logHandler   slog.Handler
	tracer       trace.Tracer
	closeTimeout time.Duration
	buffer       int64
}

// WithTopics overrides the topic names; empty fields keep their defaults.
func WithTopics(topics Topics) Option {
	return func(s *settings) {
		if topics.Input != "" {
			s.topics.Input = topics.Input
		}
		if topics.Output != "" {
			s.topics.Output = topics.Output
		}
		if topics.Poison != "" {
			s.topics.Poison = topics.Poison
		}
	}
}

func WithLogHandler(handler slog.Handler) Option {
	return func(s *settings) {
		s.logHandler = handler
	}
}

// WithTracer sets the tracer for message spans. The global tracer is used otherwise.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *settings) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithCloseTimeout bounds how long Close waits for in-flight messages.
func WithCloseTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.closeTimeout = d
	}
}

// New builds a pipeline around handler. Call Run to start consuming.
func New(handler message.HandlerFunc, opts ...Option) (*Pipeline, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}

	s := &settings{
		topics: Topics{
			Input:  DefaultInputTopic,
			Output: DefaultOutputTopic,
			Poison: DefaultPoisonTopic,
		},
		tracer:       telemetry.Tracer(),
		closeTimeout: 10 * time.Second,
		buffer:       64,
	}
	for _, opt := range opts {
		opt(s)
	}

	_, logger := helpers.SetupLogger(s.logHandler, "pipeline", "Pipeline")
	wmLogger := NewLoggerAdapter(logger)

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: s.buffer,
		Persistent:          true,
	}, wmLogger)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: s.closeTimeout}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}

	poison, err := middleware.PoisonQueue(pubsub, s.topics.Poison)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}
	// first added runs outermost: a recovered panic still reaches the poison topic
	router.AddMiddleware(
		poison,
		TracingMiddleware(s.tracer),
		middleware.Recoverer,
	)
	router.AddHandler(handlerName, s.topics.Input, pubsub, s.topics.Output, pubsub, handler)

	return &Pipeline{
		topics: s.topics,
		pubsub: pubsub,
		router: router,
		logger: logger,
	}, nil
}

// Topics returns the topic names in use.
func (p *Pipeline) Topics() Topics {
	return p.topics
}

// Run consumes the input topic until ctx is cancelled or Close is called.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.DebugContext(ctx, "starting router", "input", p.topics.Input)
	return p.router.Run(ctx)
}

// Running is closed once the router consumes messages.
func (p *Pipeline) Running() chan struct{} {
	return p.router.Running()
}

// Publish sends payload with metadata to the input topic and returns the message id.
func (p *Pipeline) Publish(payload []byte, metadata map[string]string) (string, error) {
	msg := message.NewMessage(watermill.NewUUID(), payload)
	for k, v := range metadata {
		msg.Metadata.Set(k, v)
	}
	if err := p.pubsub.Publish(p.topics.Input, msg); err != nil {
		return "", err
	}
	return msg.UUID, nil
}

// Subscribe returns the messages published on topic. Each message must be acked.
func (p *Pipeline) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return p.pubsub.Subscribe(ctx, topic)
}

// Close stops the router, waiting for in-flight messages, then closes the pub/sub.
func (p *Pipeline) Close() error {
	return errors.Join(p.router.Close(), p.pubsub.Close())
}
