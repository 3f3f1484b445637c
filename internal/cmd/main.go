package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/liftline/liftline/internal/broadcast"
	"github.com/liftline/liftline/internal/gateway"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if getEnv("LOG_PRETTY", "") != "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config, err := loadConfig(getEnv("CONFIG_PATH", "meet.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	pool, err := setupDatabase(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up database")
	}
	defer pool.Close()

	publisher, closePublisher, err := setupPublisher(ctx, config)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up event publisher")
	}
	defer closePublisher()

	services, err := setupServices(pool, config, publisher)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire services")
	}

	go services.Dispatcher.Run(ctx)
	go services.TimerFanout.Run(ctx)
	go services.Connections.Start(ctx)

	if _, ok := publisher.(*broadcast.NATSPublisher); ok {
		consumerConfig := gateway.DefaultJetStreamConsumerConfig()
		consumerConfig.URL = defaultString(config.NATS.URL, consumerConfig.URL)
		consumerConfig.StreamName = defaultString(config.NATS.Stream, consumerConfig.StreamName)
		if config.NATS.SubjectPrefix != "" {
			consumerConfig.SubjectFilter = config.NATS.SubjectPrefix + ".>"
		}
		consumer, err := gateway.NewEventConsumer(services.Connections, consumerConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to set up event consumer")
		}
		defer consumer.Stop()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer stopped")
			}
		}()
	}

	server := setupServer(services)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}

// setupPublisher connects the NATS JetStream publisher, or falls back to
// the logging publisher when the broker is disabled for local development.
func setupPublisher(ctx context.Context, config *Config) (broadcast.Publisher, func(), error) {
	if getEnv("NATS_DISABLED", "") != "" {
		log.Warn().Msg("NATS disabled, events are logged only")
		return broadcast.LogPublisher{}, func() {}, nil
	}

	publisherConfig := broadcast.DefaultNATSPublisherConfig()
	publisherConfig.URL = defaultString(getEnv("NATS_URL", config.NATS.URL), publisherConfig.URL)
	publisherConfig.StreamName = defaultString(config.NATS.Stream, publisherConfig.StreamName)
	publisherConfig.SubjectPrefix = defaultString(config.NATS.SubjectPrefix, publisherConfig.SubjectPrefix)

	publisher, err := broadcast.NewNATSPublisher(ctx, publisherConfig)
	if err != nil {
		return nil, nil, err
	}
	return publisher, publisher.Close, nil
}
