package main

import (
	"context"
	"crypto"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	adminhandler "praxis-pilot/backend/internal/admin/handler"
	adminrepo "praxis-pilot/backend/internal/admin/repository"
	adminservice "praxis-pilot/backend/internal/admin/service"
	airesponsehandler "praxis-pilot/backend/internal/airesponse/handler"
	airesponserepo "praxis-pilot/backend/internal/airesponse/repository"
	airesponseservice "praxis-pilot/backend/internal/airesponse/service"
	"praxis-pilot/backend/internal/audit"
	auditrepo "praxis-pilot/backend/internal/audit/repository"
	casesummaryhandler "praxis-pilot/backend/internal/casesummary/handler"
	casesummaryservice "praxis-pilot/backend/internal/casesummary/service"
	chathandler "praxis-pilot/backend/internal/chat/handler"
	chatrepo "praxis-pilot/backend/internal/chat/repository"
	chatservice "praxis-pilot/backend/internal/chat/service"
	"praxis-pilot/backend/internal/config"
	"praxis-pilot/backend/internal/db"
	documenthandler "praxis-pilot/backend/internal/document/handler"
	documentrepo "praxis-pilot/backend/internal/document/repository"
	documentservice "praxis-pilot/backend/internal/document/service"
	"praxis-pilot/backend/internal/events"
	eventsrepo "praxis-pilot/backend/internal/events/repository"
	folderhandler "praxis-pilot/backend/internal/folder/handler"
	folderrepo "praxis-pilot/backend/internal/folder/repository"
	folderservice "praxis-pilot/backend/internal/folder/service"
	healthhandler "praxis-pilot/backend/internal/health/handler"
	interventionhandler "praxis-pilot/backend/internal/intervention/handler"
	interventionrepo "praxis-pilot/backend/internal/intervention/repository"
	interventionservice "praxis-pilot/backend/internal/intervention/service"
	"praxis-pilot/backend/internal/llm"
	"praxis-pilot/backend/internal/platform/ratelimit"
	"praxis-pilot/backend/internal/policy/engine"
	prompthandler "praxis-pilot/backend/internal/prompt/handler"
	promptrepo "praxis-pilot/backend/internal/prompt/repository"
	promptservice "praxis-pilot/backend/internal/prompt/service"
	"praxis-pilot/backend/internal/security"
	"praxis-pilot/backend/internal/server"
	"praxis-pilot/backend/internal/server/middleware"
	"praxis-pilot/backend/internal/telemetry"
	telemetryotel "praxis-pilot/backend/internal/telemetry/otel"
	"praxis-pilot/backend/internal/telemetry/producer"
	userrepo "praxis-pilot/backend/internal/user/repository"
	userservice "praxis-pilot/backend/internal/user/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; set it in .env or the environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:       cfg.OTelEndpoint,
		ServiceName:    cfg.OTelServiceName,
		ServiceVersion: healthhandler.Version,
		Environment:    cfg.Env,
		Insecure:       cfg.OTelInsecure,
	})
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	var kafkaProducer producer.Producer
	if p := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic); p != nil {
		kafkaProducer = p
		log.Printf("telemetry: producing to Kafka topic %s", cfg.TelemetryKafkaTopic)
	}
	emitter := telemetry.Fanout(telemetryotel.NewEventEmitter(providers.LoggerProvider), kafkaProducer)

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()
	scope := db.NewScope(conn)

	policy, err := engine.NewOPAEvaluator(ctx, "")
	if err != nil {
		log.Fatalf("policy: %v", err)
	}

	client, err := llm.New(ctx, cfg)
	if err != nil {
		log.Fatalf("llm: %v", err)
	}
	defer client.Close()
	if !client.Configured() {
		log.Printf("llm: provider %s is not configured; AI endpoints will answer 503", cfg.LLMProvider)
	}

	deps := server.Deps{
		AuthBypass:  cfg.AuthBypassLocal,
		CORSOrigins: cfg.CORSOriginsList(),
		Limiter:     ratelimit.New(),
		Telemetry:   emitter,
		Metrics:     middleware.NewMetrics(),
	}
	if cfg.AuthBypassLocal {
		log.Println("auth: AUTH_BYPASS_LOCAL is set; every request runs as the dev user")
	} else {
		tokens, err := newTokenProvider(cfg)
		if err != nil {
			log.Fatalf("auth: %v", err)
		}
		deps.Tokens = tokens
		deps.Users = userservice.NewResolver(scope, userrepo.NewPostgresRepository())
	}

	eventStore := events.NewStore(eventsrepo.NewPostgresRepository(), emitter)
	auditRepo := auditrepo.NewPostgresRepository()
	recorder := audit.NewLogger(auditRepo)
	chats := chatrepo.NewPostgresRepository()

	prompts := promptservice.NewService(scope, promptrepo.NewPostgresRepository(), recorder)
	chatSvc := chatservice.NewService(scope, chats, eventStore, recorder, prompts, client, cfg.MaxUserMessageLength)
	folderSvc := folderservice.NewService(scope, folderrepo.NewPostgresRepository(), eventStore, recorder)
	aiSvc := airesponseservice.NewService(scope, airesponserepo.NewPostgresRepository(), eventStore, cfg.AIConfidenceThreshold)
	docSvc := documentservice.NewService(scope, documentrepo.NewPostgresRepository(), chatSvc, chats, eventStore, recorder, client)
	caseSvc := casesummaryservice.NewService(scope, chats, recorder, client)
	interventionSvc := interventionservice.NewService(scope, interventionrepo.NewPostgresRepository(), eventStore)
	adminSvc := adminservice.NewService(scope, adminrepo.NewPostgresRepository(), auditRepo, eventStore)

	checker := healthhandler.NewChecker(db.Pinger{DB: conn}, policy)
	deps.Health = healthhandler.NewHandler(checker, cfg.RateLimitPerMinute)
	deps.Routes = []server.Registrar{
		chathandler.NewHandler(chatSvc),
		folderhandler.NewHandler(folderSvc),
		airesponsehandler.NewHandler(aiSvc),
		documenthandler.NewHandler(docSvc),
		casesummaryhandler.NewHandler(caseSvc),
		interventionhandler.NewHandler(interventionSvc),
		prompthandler.NewHandler(prompts, policy),
		adminhandler.NewHandler(adminSvc, policy),
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		// No WriteTimeout: message sends stream for up to LLM_TIMEOUT.
	}
	grpcSrv := healthhandler.NewServer(checker)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("HTTP API listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Printf("gRPC health server listening on %s", cfg.GRPCAddr)
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down servers...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		grpcSrv.GracefulStop()
		return err
	})
	if err := g.Wait(); err != nil {
		log.Printf("server: %v", err)
	}

	// In-flight async telemetry must finish before the exporters close.
	waitCtx, waitCancel := context.WithTimeout(context.Background(), telemetry.ShutdownDrainDuration)
	if err := telemetry.Drain(waitCtx); err != nil {
		log.Printf("telemetry: drain: %v (%d events dropped)", err, telemetry.Dropped())
	}
	waitCancel()
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Printf("telemetry: kafka close: %v", err)
		}
	}
	if err := providers.Shutdown(drainCtx); err != nil {
		log.Printf("telemetry: shutdown: %v", err)
	}
	log.Println("servers stopped")
}

// newTokenProvider builds the access token verifier from the configured keys. The private
// key is optional and only enables issuing local tokens.
func newTokenProvider(cfg *config.Config) (*security.TokenProvider, error) {
	if cfg.JWTPublicKey == "" {
		return nil, errors.New("JWT_PUBLIC_KEY is required unless AUTH_BYPASS_LOCAL is set")
	}
	pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		return nil, err
	}
	var priv crypto.Signer
	if cfg.JWTPrivateKey != "" {
		if priv, err = security.ParsePrivateKey(cfg.JWTPrivateKey); err != nil {
			return nil, err
		}
	}
	log.Printf("auth: verifying %s access tokens for issuer %s", security.KeyAlg(pub), cfg.JWTIssuer)
	return security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL()), nil
}
