package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// NATSPublisher publishes events to a NATS JetStream stream. Subjects are
// `<prefix>.<competition_id>.<event_type>` so consumers can filter per
// competition or per type.
type NATSPublisher struct {
	nc            *nats.Conn
	js            jetstream.JetStream
	subjectPrefix string
}

// NATSPublisherConfig holds connection settings for the publisher.
type NATSPublisherConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
}

// DefaultNATSPublisherConfig returns default publisher settings.
func DefaultNATSPublisherConfig() NATSPublisherConfig {
	return NATSPublisherConfig{
		URL:           nats.DefaultURL,
		StreamName:    "MEET_EVENTS",
		SubjectPrefix: "meet.events",
	}
}

// NewNATSPublisher connects to NATS and ensures the event stream exists.
func NewNATSPublisher(ctx context.Context, cfg NATSPublisherConfig) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: []string{cfg.SubjectPrefix + ".>"},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return &NATSPublisher{nc: nc, js: js, subjectPrefix: cfg.SubjectPrefix}, nil
}

// Publish sends one event. Publishes are synchronous so the stream
// receives events in dispatcher order.
func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	subject := fmt.Sprintf("%s.%s.%s", p.subjectPrefix, event.CompetitionID, event.Type)
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Close tears down the NATS connection.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// LogPublisher logs events instead of publishing them. Used in
// development and tests when no broker is running.
type LogPublisher struct{}

// Publish logs the event at debug level.
func (LogPublisher) Publish(_ context.Context, event Event) error {
	log.Debug().
		Str("event_id", event.ID.String()).
		Str("event_type", string(event.Type)).
		Str("competition_id", event.CompetitionID.String()).
		RawJSON("data", event.Data).
		Msg("publishing event")
	return nil
}
