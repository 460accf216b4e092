package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/mcdev12/tourneyclock/go/internal/clock/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Handler processes one decoded clock event. A returned error naks the message.
type Handler func(ctx context.Context, ev events.Event) error

// ConsumerConfig holds configuration for the JetStream consumer
type ConsumerConfig struct {
	URL               string
	StreamName        string
	ConsumerName      string // one durable per gateway instance
	SubjectFilter     string
	MaxDeliver        int
	AckWait           time.Duration
	MaxAckPending     int
	InactiveThreshold time.Duration
	MaxReconnects     int
	ReconnectWait     time.Duration
}

// DefaultConsumerConfig returns default JetStream consumer configuration
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		URL:               nats.DefaultURL,
		StreamName:        "CLOCK_EVENTS",
		ConsumerName:      "clock-gateway",
		SubjectFilter:     "clock.events.>",
		MaxDeliver:        3,
		AckWait:           5 * time.Second,
		MaxAckPending:     1000,
		InactiveThreshold: 10 * time.Minute,
		MaxReconnects:     -1,
		ReconnectWait:     2 * time.Second,
	}
}

// Consumer reads clock events from JetStream and hands them to a Handler.
type Consumer struct {
	nc       *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	handler  Handler
	config   ConsumerConfig
}

// NewConsumer connects to NATS and creates or reuses the durable consumer.
func NewConsumer(cfg ConsumerConfig, handler Handler) (*Consumer, error) {
	nc, err := connect(cfg.URL, cfg.MaxReconnects, cfg.ReconnectWait)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	c := &Consumer{nc: nc, js: js, handler: handler, config: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.ensureConsumer(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return c, nil
}

func (c *Consumer) ensureConsumer(ctx context.Context) error {
	stream, err := c.js.Stream(ctx, c.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:              c.config.ConsumerName,
		Durable:           c.config.ConsumerName,
		Description:       "Clock gateway websocket relay",
		FilterSubject:     c.config.SubjectFilter,
		DeliverPolicy:     jetstream.DeliverNewPolicy, // joins resync from a snapshot
		AckPolicy:         jetstream.AckExplicitPolicy,
		MaxDeliver:        c.config.MaxDeliver,
		AckWait:           c.config.AckWait,
		MaxAckPending:     c.config.MaxAckPending,
		InactiveThreshold: c.config.InactiveThreshold,
		ReplayPolicy:      jetstream.ReplayInstantPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	log.Info().
		Str("consumer", c.config.ConsumerName).
		Str("stream", c.config.StreamName).
		Msg("JetStream consumer ready")

	c.consumer = consumer
	return nil
}

// Start consumes until ctx is cancelled. Messages are handled one at a time
// so per-tournament order from the stream is kept.
func (c *Consumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", c.config.ConsumerName).
		Str("stream", c.config.StreamName).
		Msg("starting JetStream event consumer")

	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := c.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event consumer shutting down")
			return nil
		case msg := <-messageCh:
			c.dispatch(ctx, msg)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg jetstream.Msg) {
	ev, err := decodeEvent(msg.Data())
	if err != nil {
		// Redelivery cannot fix a malformed message.
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("dropping undecodable clock event")
		if termErr := msg.Term(); termErr != nil {
			log.Error().Err(termErr).Msg("failed to TERM message")
		}
		return
	}

	if err := c.handler(ctx, ev); err != nil {
		log.Error().
			Err(err).
			Str("event_id", ev.ID).
			Str("tournament_id", ev.TournamentID.String()).
			Msg("failed to process clock event")
		if nakErr := msg.Nak(); nakErr != nil {
			log.Error().Err(nakErr).Msg("failed to NAK message")
		}
		return
	}

	if ackErr := msg.Ack(); ackErr != nil {
		log.Error().Err(ackErr).Msg("failed to ACK message")
	}
}

// Stop closes the NATS connection.
func (c *Consumer) Stop() error {
	log.Info().Msg("stopping event consumer")
	if c.nc != nil {
		c.nc.Close()
	}
	return nil
}

// Info returns the consumer state from the server.
func (c *Consumer) Info(ctx context.Context) (*jetstream.ConsumerInfo, error) {
	return c.consumer.Info(ctx)
}
