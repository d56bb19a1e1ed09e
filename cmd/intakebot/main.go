package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/desklink/intakebot/internal/api"
	"github.com/desklink/intakebot/internal/flow"
	"github.com/desklink/intakebot/internal/genai"
	"github.com/desklink/intakebot/internal/lockfile"
	"github.com/desklink/intakebot/internal/messaging"
	"github.com/desklink/intakebot/internal/session"
	"github.com/desklink/intakebot/internal/store"
	"github.com/desklink/intakebot/internal/twiliowhatsapp"
	"github.com/desklink/intakebot/internal/util"
	"github.com/desklink/intakebot/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for intakebot state data
	DefaultStateDir = "/var/lib/intakebot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "intakebot.db"
)

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

	slog.Info("Bootstrapping intakebot with configured modules")
	if err := run(config, flags); err != nil {
		slog.Error("intakebot failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("intakebot exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL       string
	WhatsAppDSN       string
	StateDir          string
	APIAddr           string
	RedisAddr         string
	RedisPassword     string
	OpenAIKey         string
	WhatsAppEnabled   bool
	SessionTTL        time.Duration
	UnitFallback      string
	MenuForKnownUsers bool
}

// Flags holds command line flag values
type Flags struct {
	qrOutput     *string
	numeric      *bool
	stateDir     *string
	dbDSN        *string
	whatsappDSN  *string
	whatsapp     *bool
	apiAddr      *string
	redisAddr    *string
	sessionTTL   *time.Duration
	unitFallback *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
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
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		WhatsAppDSN:       os.Getenv("WHATSAPP_DB_DSN"),
		StateDir:          os.Getenv("INTAKE_STATE_DIR"),
		APIAddr:           os.Getenv("API_ADDR"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		WhatsAppEnabled:   util.ParseBoolEnv("WHATSAPP_ENABLED", false),
		SessionTTL:        util.ParseDurationEnv("SESSION_TTL", session.DefaultTTL),
		UnitFallback:      os.Getenv("UNIT_FALLBACK"),
		MenuForKnownUsers: util.ParseBoolEnv("MENU_FOR_KNOWN_USERS", true),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No INTAKE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// Tickets and the WhatsApp device state live in separate databases; the
	// WhatsApp DSN only falls back to a SQLite file in the state directory.
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, "whatsmeow.db")
		slog.Debug("No WHATSAPP_DB_DSN provided, defaulting to SQLite", "sqlite_path", config.WhatsAppDSN)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"INTAKE_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"REDIS_ADDR", config.RedisAddr,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"WHATSAPP_ENABLED", config.WhatsAppEnabled,
		"SESSION_TTL", config.SessionTTL,
		"UNIT_FALLBACK", config.UnitFallback,
		"MENU_FOR_KNOWN_USERS", config.MenuForKnownUsers)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:     flag.String("qr-output", "", "path to write login QR code"),
		numeric:      flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:     flag.String("state-dir", config.StateDir, "state directory for intakebot data (overrides $INTAKE_STATE_DIR)"),
		dbDSN:        flag.String("db-dsn", config.DatabaseURL, "database DSN for the ticket store (overrides $DATABASE_URL)"),
		whatsappDSN:  flag.String("whatsapp-dsn", config.WhatsAppDSN, "database DSN for WhatsApp device state (overrides $WHATSAPP_DB_DSN)"),
		whatsapp:     flag.Bool("whatsapp", config.WhatsAppEnabled, "connect to WhatsApp (overrides $WHATSAPP_ENABLED)"),
		apiAddr:      flag.String("addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		redisAddr:    flag.String("redis-addr", config.RedisAddr, "Redis address for session storage (overrides $REDIS_ADDR)"),
		sessionTTL:   flag.Duration("session-ttl", config.SessionTTL, "idle session expiry (overrides $SESSION_TTL)"),
		unitFallback: flag.String("unit-fallback", config.UnitFallback, "unit fallback policy for unregistered senders: reject or any (overrides $UNIT_FALLBACK)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"whatsappDSN_set", *flags.whatsappDSN != "",
		"whatsapp", *flags.whatsapp,
		"apiAddr", *flags.apiAddr,
		"redisAddr", *flags.redisAddr,
		"sessionTTL", *flags.sessionTTL,
		"unitFallback", *flags.unitFallback)

	// Follow a -state-dir override for DSNs that still point at the default
	// state directory.
	if *flags.stateDir != config.StateDir {
		if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) {
			*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
			slog.Debug("Updated db-dsn based on state directory", "new_state_dir", *flags.stateDir)
		}
		if *flags.whatsappDSN == filepath.Join(config.StateDir, "whatsmeow.db") {
			*flags.whatsappDSN = filepath.Join(*flags.stateDir, "whatsmeow.db")
			slog.Debug("Updated whatsapp-dsn based on state directory", "new_state_dir", *flags.stateDir)
		}
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	for _, dsn := range []string{*flags.dbDSN, *flags.whatsappDSN} {
		if store.DetectDSNType(dsn) != "sqlite" {
			continue
		}
		dir := filepath.Dir(dsn)
		slog.Debug("Creating directory for file-based database", "dir", dir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("Failed to create directory", "error", err, "dir", dir)
			return err
		}
	}
	return nil
}

// run wires the collaborators and serves until interrupted.
func run(config Config, flags Flags) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Relational ticket store
	st, err := newTicketStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	// Session store: Redis when configured, in-process memory otherwise
	sessions, err := newSessionStore(ctx, flags)
	if err != nil {
		return err
	}
	defer sessions.Close()

	// Messaging service
	msgService, err := newMessagingService(flags)
	if err != nil {
		return err
	}

	// Conversation bot, with the classifier attached when a key is available
	botCfg := flow.Config{
		MenuForKnownUsers: config.MenuForKnownUsers,
		UnitFallback:      flow.UnitFallbackPolicy(*flags.unitFallback),
	}
	var botOpts []flow.Option
	if config.OpenAIKey != "" {
		classifier, err := genai.NewClient(genai.WithAPIKey(config.OpenAIKey))
		if err != nil {
			slog.Warn("Failed to initialize classifier, continuing without", "error", err)
		} else {
			botOpts = append(botOpts, flow.WithClassifier(classifier))
		}
	}
	bot := flow.NewBot(sessions, st, msgService, botCfg, botOpts...)

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(bot, msgService, sessions, st, apiOpts...)

	// Shut down on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("Received shutdown signal", "signal", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Shutdown did not complete cleanly", "error", err)
		}
		cancel()
	}()

	return server.Run(ctx)
}

// newTicketStore selects the relational backend from the DSN shape.
func newTicketStore(dsn string) (store.Store, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// newSessionStore selects the conversation state backend.
func newSessionStore(ctx context.Context, flags Flags) (session.Store, error) {
	if *flags.redisAddr != "" {
		slog.Debug("Configuring Redis session store", "addr", *flags.redisAddr)
		return session.NewRedisStore(ctx, *flags.redisAddr, os.Getenv("REDIS_PASSWORD"), util.ParseIntEnv("REDIS_DB", 0), *flags.sessionTTL)
	}
	slog.Debug("Configuring in-memory session store", "ttl", *flags.sessionTTL)
	return session.NewMemoryStore(*flags.sessionTTL), nil
}

// newMessagingService selects the outbound transport: WhatsApp when enabled,
// Twilio when its credentials are present, otherwise a mock client so the JSON
// webhook endpoint can drive conversations on its own.
func newMessagingService(flags Flags) (messaging.Service, error) {
	if *flags.whatsapp {
		var waOpts []whatsapp.Option
		if *flags.whatsappDSN != "" {
			waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.whatsappDSN))
		}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, err
		}
		return messaging.NewWhatsAppService(client), nil
	}

	if os.Getenv("TWILIO_ACCOUNT_SID") != "" {
		slog.Info("WhatsApp disabled, using Twilio transport")
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, err
		}
		return messaging.NewTwilioService(client), nil
	}

	slog.Warn("No messaging transport configured, outbound messages go to a mock client")
	return messaging.NewWhatsAppService(whatsapp.NewMockClient()), nil
}
