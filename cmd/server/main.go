package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-ap-invoice-approvals/internal/approval"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/client"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/config"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/database"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/handler"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/invoicesv1"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/logger"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/middleware"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/ocr"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/repository"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/service"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/validation"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("environment", cfg.Service.Environment).
		Msg("Starting Invoice Approvals Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Migrations run before the pool opens so the schema is in place
	if cfg.Database.RunMigrations {
		version, dirty, err := database.Migrate(cfg.Database.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to run database migrations")
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Database migrations applied")
	}

	db, err := database.New(ctx, database.Config{
		URL:         cfg.Database.URL,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize repositories
	historyRepo := repository.NewApprovalHistoryRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db, historyRepo)

	var rules service.RulesProvider = repository.NewApprovalRulesRepository(db)
	if cfg.Approval.RulesFile != "" {
		fileRules, err := repository.LoadFileRulesProvider(cfg.Approval.RulesFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load approval rules file")
		}
		rules = fileRules
		log.Info().Str("path", cfg.Approval.RulesFile).Msg("Approval rules loaded from file")
	}

	// Notifications are optional; without NATS events are dropped
	var notifier service.Notifier
	if cfg.NATS.URL != "" {
		natsPub, err := client.ConnectNATS(cfg.NATS.URL, cfg.Service.Name, log)
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.NATS.URL).Msg("NATS unavailable, notifications disabled")
		} else {
			defer natsPub.Close()
			notifier = client.NewNotificationPublisher(natsPub, cfg.NATS.SubjectPrefix, log.Component("notifications"))
			log.Info().Str("url", cfg.NATS.URL).Msg("NATS notification publisher initialized")
		}
	}

	// Initialize services
	invoiceService := service.NewInvoiceService(
		invoiceRepo,
		rules,
		validation.NewInvoiceValidator(validation.Options{AccountCodeMinLength: cfg.Approval.AccountCodeMinLength}),
		approval.NewEngine(),
		ocr.NewConsolidator(ocr.Options{FieldFloor: cfg.OCR.FieldFloor}),
		notifier,
		log.Component("invoice_service"),
	)

	// Identity: signed tokens when a secret is configured, gateway headers otherwise
	var verifier *middleware.TokenVerifier
	identity := middleware.TrustedHeaders
	if cfg.Auth.JWTSecret != "" {
		verifier = middleware.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
		identity = middleware.Auth(verifier, log)
	} else {
		log.Warn().Msg("JWT_SECRET not set, trusting X-User-ID / X-User-Role headers")
	}

	limiter, err := middleware.NewLimiter(cfg.Server.RateLimit)
	if err != nil {
		log.Fatal().Err(err).Str("rate", cfg.Server.RateLimit).Msg("Invalid RATE_LIMIT")
	}

	// Setup HTTP routes
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !db.Healthy(r.Context()) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	handler.NewHTTPHandler(invoiceService, log.Component("http")).Routes(mux)

	// Apply middleware
	h := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.CORS(cfg.Server.AllowedOrigins),
		middleware.RateLimit(limiter, log),
		identity,
		middleware.Timeout(cfg.Server.RequestTimeout),
	)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.HTTPPort).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		middleware.UnaryLoggingInterceptor(log),
		middleware.UnaryAuthInterceptor(verifier, log),
	))
	invoicesv1.RegisterApprovalServiceServer(grpcServer, handler.NewGRPCHandler(invoiceService, log))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer) // Enable reflection for debugging
	go watchHealth(ctx, db, healthServer)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	healthServer.Shutdown()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Stop gRPC server gracefully
	grpcServer.GracefulStop()

	log.Info().Msg("Server stopped")
}

// watchHealth mirrors database reachability into the gRPC health service.
func watchHealth(ctx context.Context, db *database.DB, hs *health.Server) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		st := healthpb.HealthCheckResponse_SERVING
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if !db.Healthy(pingCtx) {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		cancel()
		hs.SetServingStatus("", st)
		hs.SetServingStatus(invoicesv1.ServiceName, st)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
