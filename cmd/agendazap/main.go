package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/agendazap/agendazap/internal/api"
	"github.com/agendazap/agendazap/internal/booking"
	"github.com/agendazap/agendazap/internal/flow"
	"github.com/agendazap/agendazap/internal/lockfile"
	"github.com/agendazap/agendazap/internal/messaging"
	"github.com/agendazap/agendazap/internal/models"
	"github.com/agendazap/agendazap/internal/redislock"
	"github.com/agendazap/agendazap/internal/store"
	"github.com/agendazap/agendazap/internal/twiliowhatsapp"
	"github.com/agendazap/agendazap/internal/util"
	"github.com/agendazap/agendazap/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for agendazap state data
	DefaultStateDir = "/var/lib/agendazap"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "agendazap.db"
	// DefaultOutboxPollInterval is how often queued replies are retried
	DefaultOutboxPollInterval = 2 * time.Second
	// DefaultSlotLockTTL bounds how long a booking commit may hold a slot lock
	DefaultSlotLockTTL = 10 * time.Second
)

// defaultCatalog is the service catalog offered in the booking flow.
var defaultCatalog = []models.Service{
	{ID: "corte", Name: "Corte", PriceCents: 5000},
	{ID: "barba", Name: "Barba", PriceCents: 3500},
	{ID: "corte_barba", Name: "Corte + Barba", PriceCents: 7500},
}

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	if err := run(flags); err != nil {
		slog.Error("agendazap failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("agendazap exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir       string
	DatabaseURL    string
	WhatsAppDSN    string
	APIAddr        string
	VerifyToken    string
	Channel        string
	Endpoint       string
	BookingBaseURL string
	BookingDBURL   string
	RedisAddr      string
	RedisUsername  string
	RedisPassword  string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput       *string
	numeric        *bool
	stateDir       *string
	dbDSN          *string
	apiAddr        *string
	verifyToken    *string
	channel        *string
	endpoint       *string
	bookingBaseURL *string
	bookingDBURL   *string
	redisAddr      *string
	redisUsername  *string
	redisPassword  *string
}

// initializeLogger sets up structured logging. AGENDAZAP_DEBUG enables
// debug level output.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("AGENDAZAP_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:       os.Getenv("AGENDAZAP_STATE_DIR"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		WhatsAppDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		APIAddr:        os.Getenv("API_ADDR"),
		VerifyToken:    os.Getenv("WEBHOOK_VERIFY_TOKEN"),
		Channel:        os.Getenv("CHANNEL"),
		Endpoint:       os.Getenv("CHANNEL_ENDPOINT"),
		BookingBaseURL: os.Getenv("BOOKING_BASE_URL"),
		BookingDBURL:   os.Getenv("BOOKING_DATABASE_URL"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisUsername:  os.Getenv("REDIS_USERNAME"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No AGENDAZAP_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.Channel == "" {
		config.Channel = "whatsmeow"
	}

	slog.Debug("environment variables loaded",
		"AGENDAZAP_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"API_ADDR", config.APIAddr,
		"CHANNEL", config.Channel,
		"CHANNEL_ENDPOINT_SET", config.Endpoint != "",
		"BOOKING_BASE_URL_SET", config.BookingBaseURL != "",
		"BOOKING_DATABASE_URL_SET", config.BookingDBURL != "",
		"REDIS_ADDR_SET", config.RedisAddr != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:       flag.String("qr-output", "", "path to write login QR code"),
		numeric:        flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:       flag.String("state-dir", config.StateDir, "state directory for agendazap data (overrides $AGENDAZAP_STATE_DIR)"),
		dbDSN:          flag.String("db-dsn", config.DatabaseURL, "database DSN for conversation state and outbox (overrides $DATABASE_URL)"),
		apiAddr:        flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		verifyToken:    flag.String("verify-token", config.VerifyToken, "webhook verification token (overrides $WEBHOOK_VERIFY_TOKEN)"),
		channel:        flag.String("channel", config.Channel, "WhatsApp channel implementation: whatsmeow or twilio (overrides $CHANNEL)"),
		endpoint:       flag.String("endpoint", config.Endpoint, "channel endpoint identifier, usually the business phone number (overrides $CHANNEL_ENDPOINT)"),
		bookingBaseURL: flag.String("booking-url", config.BookingBaseURL, "base URL of a remote booking backend (overrides $BOOKING_BASE_URL)"),
		bookingDBURL:   flag.String("booking-db-url", config.BookingDBURL, "PostgreSQL DSN of the booking database (overrides $BOOKING_DATABASE_URL)"),
		redisAddr:      flag.String("redis-addr", config.RedisAddr, "Redis address for distributed slot locks (overrides $REDIS_ADDR)"),
		redisUsername:  flag.String("redis-username", config.RedisUsername, "Redis username (overrides $REDIS_USERNAME)"),
		redisPassword:  flag.String("redis-password", config.RedisPassword, "Redis password (overrides $REDIS_PASSWORD)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"channel", *flags.channel,
		"endpoint_set", *flags.endpoint != "")

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		return err
	}
	if !strings.Contains(*flags.dbDSN, "postgres://") && !strings.Contains(*flags.dbDSN, "host=") {
		dbDir := filepath.Dir(*flags.dbDSN)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// buildStore constructs the conversation/outbox store from the DSN.
func buildStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// buildBookingBackend picks the booking backend: a remote HTTP service,
// a PostgreSQL database (with Redis slot locks when configured), or an
// in-memory backend seeded with a development schedule.
func buildBookingBackend(flags Flags, endpoint string) (booking.Backend, error) {
	if *flags.bookingBaseURL != "" {
		slog.Info("Using HTTP booking backend", "base_url", *flags.bookingBaseURL)
		return booking.NewHTTPBackend(*flags.bookingBaseURL), nil
	}

	if *flags.bookingDBURL != "" {
		locker := redislock.NewNoopLocker()
		if *flags.redisAddr != "" {
			client, err := redislock.NewClient(*flags.redisAddr, *flags.redisUsername, *flags.redisPassword)
			if err != nil {
				return nil, err
			}
			locker = redislock.NewRedisSlotLocker(client, DefaultSlotLockTTL)
			slog.Info("Using Redis slot locks for booking commits", "addr", *flags.redisAddr)
		}
		slog.Info("Using SQL booking backend")
		return booking.NewSQLBackend(*flags.bookingDBURL, locker)
	}

	slog.Warn("No booking backend configured, using in-memory backend with a development schedule")
	backend := booking.NewMemoryBackend()
	seedDevelopmentSlots(backend, endpoint)
	return backend, nil
}

// seedDevelopmentSlots fills the in-memory backend with hourly slots for
// the next week so the flow is usable without a real booking backend.
func seedDevelopmentSlots(backend *booking.MemoryBackend, endpoint string) {
	now := time.Now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for d := 0; d < 7; d++ {
		date := day.AddDate(0, 0, d)
		for hour := 9; hour <= 18; hour++ {
			start := date.Add(time.Duration(hour) * time.Hour)
			if start.Before(now) {
				continue
			}
			backend.AddSlot(models.Slot{
				ID:        start.Format("20060102-1504"),
				Endpoint:  endpoint,
				StartTime: start,
			})
		}
	}
}

// buildChannelService constructs the WhatsApp channel service. The
// Twilio service is also returned separately so its webhook route can
// be mounted.
func buildChannelService(flags Flags) (messaging.Service, *messaging.TwilioService, error) {
	if *flags.channel == "twilio" {
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, nil, err
		}
		svc := messaging.NewTwilioService(client)
		return svc, svc, nil
	}

	waOpts := []whatsapp.Option{
		whatsapp.WithDBDSN(filepath.Join(*flags.stateDir, "whatsmeow.db")),
	}
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	client, err := whatsapp.NewClient(waOpts...)
	if err != nil {
		return nil, nil, err
	}
	return messaging.NewWhatsAppService(client), nil, nil
}

func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	endpoint := *flags.endpoint
	if endpoint == "" {
		endpoint = "default"
		slog.Warn("No channel endpoint configured, using default")
	}

	backend, err := buildBookingBackend(flags, endpoint)
	if err != nil {
		return err
	}

	service, twilioSvc, err := buildChannelService(flags)
	if err != nil {
		return err
	}
	defer service.Stop()

	engine := flow.NewEngine(flow.NewStoreBackedStateManager(st), backend, backend, defaultCatalog)
	dispatcher := messaging.NewDispatcher(st, engine, service, endpoint)

	replySender := store.NewReplySender(st, messaging.NewReplySendFunc(service), DefaultOutboxPollInterval)
	if err := replySender.RecoverStaleReplies(); err != nil {
		slog.Error("Failed to recover stale replies", "error", err)
	}

	if err := service.Start(ctx); err != nil {
		return err
	}
	go replySender.Run(ctx)
	go dispatcher.Run(ctx)

	apiOpts := []api.Option{api.WithVerifyToken(*flags.verifyToken)}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(st, dispatcher, twilioSvc, apiOpts...)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
