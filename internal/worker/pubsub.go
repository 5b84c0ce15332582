package worker

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/breatheroute/envwatch/internal/worker"

// PubSubHandler feeds subscription messages to a Dispatcher.
type PubSubHandler struct {
	client     *pubsub.Client
	subscriber *pubsub.Subscriber
	dispatcher *Dispatcher
	tracer     trace.Tracer
	logger     zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Dispatcher       *Dispatcher
	Logger           zerolog.Logger
}

// NewPubSubHandler connects to the project and binds the subscription.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Refreshes are single-flight, so a deep backlog only produces drops.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 4
	subscriber.ReceiveSettings.MaxExtension = 2 * time.Minute

	return &PubSubHandler{
		client:     client,
		subscriber: subscriber,
		dispatcher: cfg.Dispatcher,
		tracer:     otel.Tracer(tracerName),
		logger:     cfg.Logger.With().Str("subscription", cfg.SubscriptionName).Logger(),
	}, nil
}

// Start blocks receiving messages until ctx is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().Msg("receiving refresh jobs")
	return h.subscriber.Receive(ctx, h.handleMessage)
}

// Close releases the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	// Publishers may attach a W3C traceparent as message attributes.
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(msg.Attributes))
	ctx, span := h.tracer.Start(ctx, "pubsub.job",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("messaging.message.id", msg.ID)),
	)
	defer span.End()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Time("published_at", msg.PublishTime).
		Logger()
	if msg.DeliveryAttempt != nil {
		logger = logger.With().Int("delivery_attempt", *msg.DeliveryAttempt).Logger()
	}

	if err := h.dispatcher.Dispatch(ctx, msg.Data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Msg("job failed, nacking")
		msg.Nack()
		return
	}
	msg.Ack()
}
