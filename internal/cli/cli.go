// Package cli wires the agent's commands:
//
//	paraderos-agent run       # start tasks, location updates and the control API
//	paraderos-agent report    # send one position report from the stored session
//	paraderos-agent token     # issue a control API token
//	paraderos-agent hash-password  # hash the operator password for CONTROL_PASSWORD_HASH
package cli

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"paraderos-agent/internal/backend"
	"paraderos-agent/internal/config"
	"paraderos-agent/internal/database"
	"paraderos-agent/internal/handlers"
	"paraderos-agent/internal/location"
	"paraderos-agent/internal/metrics"
	"paraderos-agent/internal/middleware"
	"paraderos-agent/internal/models"
	"paraderos-agent/internal/reporting"
	"paraderos-agent/internal/server"
	"paraderos-agent/internal/services"
	"paraderos-agent/internal/session"
	"paraderos-agent/internal/tasks"
	"paraderos-agent/internal/tracking"
	"paraderos-agent/internal/websocket"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var (
	configFile string
	envFile    string
)

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "paraderos-agent",
		Short: "Background location agent for bus-stop field work",
		Long: `paraderos-agent keeps the backend informed of where a field worker is
while a work order is active:
- periodic position reports over a short-lived Socket.IO connection
- a watchdog that restarts tracking the platform stopped
- a local control API for the order UI`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file to load instead of .env")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildReportCommand())
	rootCmd.AddCommand(buildTokenCommand())
	rootCmd.AddCommand(buildHashPasswordCommand())

	return rootCmd
}

func loadConfig() (*config.Config, error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.Load(configFile, files...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func buildRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log.Println("═══════════════════════════════════════════════════════════════════")
	log.Println("🚀 PARADEROS AGENT STARTING")
	log.Println("═══════════════════════════════════════════════════════════════════")

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(promRegistry)

	registry := tasks.NewRegistry(cfg.Tasks.Budget)
	defer registry.Close()
	registry.SetStatus(cfg.Tasks.Background)

	manager := location.NewManager(tracking.LocationTaskName, registry, buildProvider(cfg), buildPermissions(cfg))
	defer manager.Close()

	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Close()

	channel := buildChannel(cfg)
	agent := tracking.NewAgent(tracking.Deps{
		Registry:  registry,
		Source:    manager,
		Store:     store,
		Reporter:  channel.WithReconnect(cfg.Backend.ReconnectAttempts),
		Heartbeat: channel,
		Notifier:  buildNotifier(ctx, cfg),
		Metrics:   collector,
		Publisher: hub,
	}, tracking.Options{
		Updates:           cfg.Location.Updates,
		WatchdogInterval:  cfg.Tasks.WatchdogInterval,
		HeartbeatAccuracy: cfg.Location.HeartbeatAccuracy,
	})

	if err := agent.Controller.EnsureWatchdogRegistered(ctx); err != nil {
		log.Printf("⚠️  Watchdog registration failed: %v", err)
	}
	// an order left active by a previous run resumes tracking right away
	log.Printf("🔍 Initial watchdog pass: %s", agent.RunWatchdog(ctx))

	orders := services.NewWorkOrderService(backend.NewClient(cfg.Backend.URL), store, agent.Controller)

	if cfg.Control.JWTSecret == "" {
		log.Println("⚠️  CONTROL_JWT_SECRET not set, /api endpoints will refuse every request")
	}

	log.Println("═══════════════════════════════════════════════════════════════════")
	log.Println("✅ ALL INITIALIZATION COMPLETE")
	log.Printf("📍 Reporting to %s (event %s)", cfg.LocationEndpoint(), cfg.Backend.Event)
	log.Println("═══════════════════════════════════════════════════════════════════")

	router := server.NewRouter(server.Deps{
		Agent:          agent,
		Tracker:        agent.Controller,
		Orders:         orders,
		Metrics:        collector,
		Hub:            hub,
		JWTSecret:      cfg.Control.JWTSecret,
		AllowedOrigins: cfg.Control.AllowedOrigins,
		PasswordHash:   cfg.Control.PasswordHash,
	})
	if err := server.Serve(ctx, cfg.Control.Addr, router); err != nil {
		return fmt.Errorf("control API: %w", err)
	}

	log.Println("\nReceived shutdown signal, stopping gracefully...")
	return nil
}

func buildReportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Send one position report using the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return reportOnce(cmd.Context(), cfg)
		},
	}
}

func reportOnce(ctx context.Context, cfg *config.Config) error {
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	s, err := session.ReadSession(ctx, store)
	if err != nil {
		return err
	}
	if !s.Complete() {
		return fmt.Errorf("no stored session: %w", reporting.ErrNoToken)
	}

	sample, err := buildProvider(cfg).Fix(ctx, cfg.Location.HeartbeatAccuracy)
	if err != nil {
		return fmt.Errorf("no position: %w", err)
	}

	res := buildChannel(cfg).Report(ctx, models.NewPositionUpdate(s.UserID, sample), s.AccessToken)
	fmt.Printf("Report %s: %s in %s\n", res.TraceID, res.Outcome, res.Duration.Round(time.Millisecond))
	if !res.OK() {
		return fmt.Errorf("report failed: %w", res.Err)
	}
	return nil
}

func buildTokenCommand() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			token, err := middleware.SignToken(cfg.Control.JWTSecret, subject, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "order-ui", "token subject")
	cmd.Flags().StringVar(&role, "role", "operator", "token role")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime, 0 for no expiry")

	return cmd
}

func buildHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print the bcrypt hash to set as CONTROL_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := handlers.HashPassword(args[0])
			if err != nil {
				return fmt.Errorf("failed to hash password: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func openStore(cfg *config.Config) (session.Store, func(), error) {
	if cfg.Store.Driver != config.StorePostgres {
		log.Println("💾 Using in-memory session store")
		return session.NewMemoryStore(), func() {}, nil
	}

	db, err := database.Connect(cfg.Store.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return session.NewSQLStore(db), func() { db.Close() }, nil
}

func buildProvider(cfg *config.Config) location.Provider {
	if cfg.Location.FixFile != "" {
		log.Printf("📍 Reading fixes from %s", cfg.Location.FixFile)
		return location.FixFileProvider{Path: cfg.Location.FixFile, MaxAge: cfg.Location.FixMaxAge}
	}
	log.Printf("📍 No fix file configured, reporting %.4f, %.4f", cfg.Location.DefaultLatitude, cfg.Location.DefaultLongitude)
	return location.StaticProvider{Latitude: cfg.Location.DefaultLatitude, Longitude: cfg.Location.DefaultLongitude}
}

func buildPermissions(cfg *config.Config) *location.Permissions {
	return location.NewPermissions(location.StaticPrompter{
		Foreground: cfg.Location.ForegroundPermission,
		Background: cfg.Location.BackgroundPermission,
	})
}

// buildNotifier pushes notices to the worker's devices when FCM is
// configured and falls back to the log otherwise
func buildNotifier(ctx context.Context, cfg *config.Config) tracking.Notifier {
	creds := services.PushCredentials{
		File:   cfg.Notifications.FCMCredentialsFile,
		Base64: cfg.Notifications.FCMCredentialsBase64,
	}
	if !creds.Configured() {
		return tracking.LogNotifier{}
	}
	push, err := services.NewPushService(ctx, creds, cfg.Notifications.DeviceTokens)
	if err != nil {
		log.Printf("⚠️  Push notifications disabled: %v", err)
		return tracking.LogNotifier{}
	}
	log.Printf("🔔 Push notifications enabled for %d device(s)", len(cfg.Notifications.DeviceTokens))
	return push
}

func buildChannel(cfg *config.Config) *reporting.Channel {
	ch := reporting.NewChannel(cfg.LocationEndpoint())
	ch.Event = cfg.Backend.Event
	ch.Timeout = cfg.Backend.ReportTimeout
	return ch
}
