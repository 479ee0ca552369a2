// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/weekender-registration/internal/balance"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/checkout"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/config"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/database"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/eventlog"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/handler"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/kvstore"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/logging"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/model"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/mq"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/pricing"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/repository"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/service"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:          "weekender",
	Short:        "Weekender registration and payment service",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		ctx := context.Background()
		pool, err := database.NewPool(ctx, cfg.DSN())
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			return err
		}
		log.Info().Msg("schema applied")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("weekender %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and installs the configured logger.
func setup() (config.Config, error) {
	logging.Init(logging.Config{Format: "auto", Level: "info", Component: "weekender"})
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("load configuration failed")
		return config.Config{}, err
	}
	logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "weekender"})
	return cfg, nil
}

func runServer() error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Connect to PostgreSQL ──────────────────────────────────────────
	pool, err := database.NewPool(ctx, cfg.DSN())
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		return err
	}
	log.Info().Msg("connected to PostgreSQL")

	// ── 2. Ephemeral store and lifecycle events ──────────────────────────
	kv, err := kvstore.Open(cfg.KVPath, cfg.KVTTL)
	if err != nil {
		return err
	}
	defer func() {
		if err := kv.Close(); err != nil {
			log.Warn().Err(err).Msg("close kvstore failed")
		}
	}()

	sinks := []eventlog.Sink{eventlog.SinkFunc{SinkName: "kvstore", Fn: kv.LogEvent}}
	if cfg.RabbitURL != "" {
		pub, err := mq.NewPublisher(cfg.RabbitURL, cfg.EventExchange)
		if err != nil {
			// Events still reach the KV log.
			log.Error().Err(err).Msg("rabbitmq unavailable, lifecycle events will not be published")
		} else {
			defer func() { _ = pub.Close() }()
			sinks = append(sinks, eventlog.SinkFunc{SinkName: "rabbitmq", Fn: pub.PublishEvent})
		}
	}
	events := eventlog.NewRecorder(cfg.EventQueueSize, sinks...)
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := events.Close(drainCtx); err != nil {
			log.Warn().Err(err).Msg("event queue not drained")
		}
	}()

	// ── 3. Wire up layers ────────────────────────────────────────────────
	regRepo := repository.NewRegistrationRepository(pool)
	tierRepo := repository.NewTierRepository(pool)
	waitlistRepo := repository.NewWaitlistRepository(pool)

	if !cfg.PaymentsConfigured() {
		log.Error().Msg("YOCO_SECRET_KEY is not set, every checkout will fail with payment_system_unavailable")
	}
	if cfg.YocoWebhookSecret == "" {
		log.Warn().Msg("YOCO_WEBHOOK_SECRET is not set, webhook signatures are not verified")
	}

	deps := service.Deps{
		Registrations: regRepo,
		Payments:      regRepo,
		Waitlist:      waitlistRepo,
		Ephemeral:     kv,
		Checkout:      checkout.NewClient(cfg.YocoAPIURL, cfg.YocoSecretKey, cfg.CheckoutTimeout),
		Events:        events,
		Pricing:       pricing.NewEngine(cfg.WeekendTiers, regRepo, tierRepo),
		Capacity: pricing.NewCapacityChecker(regRepo, map[model.PassType]int{
			model.PassDay:   cfg.DayPassLimit,
			model.PassParty: cfg.PartyPassLimit,
		}),
		Balance: balance.NewEvaluator(regRepo, waitlistRepo, cfg.RoleTolerance),
	}
	regSvc := service.NewRegistrationService(deps, service.Settings{
		Window:                  cfg.RegistrationWindow,
		PublicBaseURL:           cfg.PublicBaseURL,
		Currency:                cfg.Currency,
		DayPassPrice:            cfg.DayPassPrice,
		PartyPassPrice:          cfg.PartyPassPrice,
		BootcampBeginnerPrice:   cfg.BootcampBeginnerPrice,
		BootcampFastTrackPrice:  cfg.BootcampFastTrackPrice,
		BootcampDiscountPercent: cfg.BootcampDiscountPercent,
	})
	paySvc := service.NewPaymentService(deps, cfg.RegistrationWindow)
	h := handler.NewHandler(regSvc, paySvc, cfg.YocoWebhookSecret)

	// ── 4. Build the router ───────────────────────────────────────────────
	r := handler.NewRouter(h, cfg.AllowedOrigins)
	r.Handle("/metrics", promhttp.Handler())

	// ── 5. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}
