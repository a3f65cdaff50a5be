// Server runs the clinic messaging backend: the REST API, the WebSocket
// endpoint, and the security-event emitters. Configuration comes from the
// environment (see .env.example); DATABASE_URL and the JWT key pair are
// required, everything else degrades gracefully when unset.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"clinic-messaging/backend/internal/audit"
	auditrepo "clinic-messaging/backend/internal/audit/repository"
	"clinic-messaging/backend/internal/authz"
	"clinic-messaging/backend/internal/config"
	"clinic-messaging/backend/internal/db"
	healthhandler "clinic-messaging/backend/internal/health/handler"
	identityhandler "clinic-messaging/backend/internal/identity/handler"
	identityrepo "clinic-messaging/backend/internal/identity/repository"
	identityservice "clinic-messaging/backend/internal/identity/service"
	messaginghandler "clinic-messaging/backend/internal/messaging/handler"
	messagingrepo "clinic-messaging/backend/internal/messaging/repository"
	messagingservice "clinic-messaging/backend/internal/messaging/service"
	"clinic-messaging/backend/internal/realtime"
	"clinic-messaging/backend/internal/revocation"
	"clinic-messaging/backend/internal/risk"
	"clinic-messaging/backend/internal/security"
	"clinic-messaging/backend/internal/server"
	"clinic-messaging/backend/internal/telemetry"
	otelsetup "clinic-messaging/backend/internal/telemetry/otel"
	"clinic-messaging/backend/internal/telemetry/producer"
)

// realtimeChannel is the Redis pub/sub channel all server processes share for
// cross-process fan-out.
const realtimeChannel = "clinic:realtime"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "clinic-messaging").Logger()
	if cfg.Env == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("db open failed")
	}
	defer conn.Close()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
	}

	priv, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("JWT key pair load failed")
	}
	tokens := security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
	hasher := security.NewHasher(cfg.BcryptCost)

	bounds := revocation.Bounds{Floor: cfg.RevokeFloor(), Ceiling: cfg.RevokeCeiling()}
	var revoked revocation.Store
	if rdb != nil {
		revoked = revocation.NewRedisStore(rdb, bounds, logger)
	} else {
		logger.Warn().Msg("REDIS_ADDR not set, using in-memory revocation store; logouts do not survive restarts")
		revoked = revocation.NewMemoryStore(bounds)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := otelsetup.NewProviders(ctx, cfg.OTLPEndpoint, "clinic-messaging", cfg.OTLPInsecure)
	if err != nil {
		logger.Fatal().Err(err).Msg("otel setup failed")
	}
	providers.SetGlobal()

	emitters := []telemetry.EventEmitter{otelsetup.NewEventEmitter(providers.LoggerProvider)}
	kafkaProducer, err := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.SecurityEventsTopic)
	if err != nil {
		logger.Fatal().Err(err).Msg("kafka producer setup failed")
	}
	if kafkaProducer != nil {
		emitters = append(emitters, kafkaProducer)
		defer kafkaProducer.Close()
	}
	emitter := telemetry.MultiEmitter(emitters)

	eval, err := authz.NewOPAEvaluator(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("policy compile failed")
	}

	hub := realtime.NewHub(realtime.HubConfig{MaxConnsPerUser: cfg.WSMaxConnsPerUser}, logger)
	var broker realtime.Broker
	if rdb != nil {
		redisBroker := realtime.NewRedisBroker(rdb, realtimeChannel, hub, logger)
		go func() {
			if err := redisBroker.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("realtime broker stopped")
			}
		}()
		broker = redisBroker
	} else {
		broker = realtime.NewInprocBroker(hub)
	}
	hub.UseBroker(broker)

	var screener messagingservice.Screener
	if s := risk.NewOpenAIScreener(cfg.OpenAIAPIKey, cfg.OpenAIModel); s != nil {
		screener = s
	}

	msgRepo := messagingrepo.NewPostgresRepository(conn)
	msgService := messagingservice.NewMessagingService(msgRepo, hub, eval, screener, logger)
	msgService.UseEmitter(emitter)

	auditLogger := audit.NewLogger(auditrepo.NewPostgresRepository(conn), audit.HTTPIPExtractor, logger)

	userRepo := identityrepo.NewPostgresRepository(conn)
	authService := identityservice.NewAuthService(userRepo, hasher, tokens, revoked)

	wsHandler := realtime.NewHandler(hub, tokens, revoked, msgService, realtime.HandlerConfig{
		HeartbeatInterval: cfg.HeartbeatInterval(),
		IdleWait:          cfg.IdleWait(),
		SendBuffer:        cfg.WSSendBuffer,
	}, logger)
	wsHandler.UseEmitter(emitter)

	handler := server.NewHandler(server.Deps{
		Auth:      identityhandler.NewHTTP(authService, tokens, auditLogger, logger),
		Messaging: messaginghandler.NewHTTP(msgService, logger),
		Realtime:  wsHandler,
		Health:    healthhandler.NewHTTP(conn, rdb),
		Tokens:    tokens,
		Revoked:   revoked,
	}, logger)

	srv := server.NewServer(cfg.HTTPAddr, handler)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("serve failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
	hub.Shutdown()
	cancel()
	if err := broker.Close(); err != nil {
		logger.Error().Err(err).Msg("broker close failed")
	}

	// Let in-flight async security-event emits finish before tearing down
	// the exporters behind them.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("otel shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
