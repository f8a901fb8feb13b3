// Package events publishes game events to NATS JetStream so external
// consumers (and other server instances) can follow the game without a
// WebSocket connection.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/davidgomes/10-seconds-game/internal/game"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamConfig holds configuration for the JetStream publisher.
type JetStreamConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration
	DuplicateWindow time.Duration
}

// DefaultJetStreamConfig returns the default JetStream configuration.
func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "GAME_EVENTS",
		SubjectPrefix:   "game.events",
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		DuplicateWindow: 2 * time.Minute,
	}
}

// Publisher forwards game events to a JetStream stream. It implements
// game.Broadcaster: Broadcast enqueues and returns immediately, Start
// drains the queue.
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
	queue  chan game.Event
}

// NewPublisher connects to NATS and ensures the event stream exists.
func NewPublisher(cfg JetStreamConfig) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &Publisher{
		nc:     nc,
		js:     js,
		config: cfg,
		queue:  make(chan game.Event, 256),
	}

	if err := p.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return p, nil
}

func (p *Publisher) ensureStream(ctx context.Context) error {
	cfg := jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Game round and pick events",
		Subjects:    []string{fmt.Sprintf("%s.>", p.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      p.config.MaxAge,
		Storage:     jetstream.FileStorage,
		Duplicates:  p.config.DuplicateWindow,
	}

	if _, err := p.js.Stream(ctx, p.config.StreamName); err == nil {
		log.Info().Str("stream", p.config.StreamName).Msg("using existing JetStream stream")
		return nil
	}

	if _, err := p.js.CreateStream(ctx, cfg); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	log.Info().Str("stream", p.config.StreamName).Msg("created JetStream stream")
	return nil
}

// Broadcast enqueues an event for publishing without blocking the game
// loop. Events are dropped with a warning if NATS cannot keep up.
func (p *Publisher) Broadcast(event game.Event) {
	select {
	case p.queue <- event:
	default:
		log.Warn().Str("event_type", string(event.Type)).Msg("publish queue full, dropping event")
	}
}

// Start publishes queued events until ctx is cancelled.
func (p *Publisher) Start(ctx context.Context) {
	log.Info().Str("stream", p.config.StreamName).Msg("event publisher started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event publisher shutting down")
			return
		case event := <-p.queue:
			if err := p.publish(ctx, event); err != nil {
				log.Error().Err(err).
					Str("event_id", event.ID).
					Str("event_type", string(event.Type)).
					Msg("failed to publish event")
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, event game.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", p.config.SubjectPrefix, event.Type)

	// The event id doubles as the JetStream dedup key so retries never
	// produce duplicates within the duplicate window.
	_, err = p.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.ID))
	if err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	log.Debug().
		Str("subject", subject).
		Str("event_id", event.ID).
		Msg("event published")
	return nil
}

// Close drains the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
