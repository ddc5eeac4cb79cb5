package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/andesbank/leadflow/internal/api"
	"github.com/andesbank/leadflow/internal/backend"
	"github.com/andesbank/leadflow/internal/flow"
	"github.com/andesbank/leadflow/internal/genai"
	"github.com/andesbank/leadflow/internal/messaging"
	"github.com/andesbank/leadflow/internal/phone"
	"github.com/andesbank/leadflow/internal/session"
	"github.com/andesbank/leadflow/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for LeadFlow state data
	DefaultStateDir = "/var/lib/leadflow"
	// DefaultSessionDBFileName is the default SQLite session database filename
	DefaultSessionDBFileName = "leadflow.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	if err := run(flags); err != nil {
		slog.Error("LeadFlow failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("LeadFlow exited successfully")
}

// Config holds environment configuration
type Config struct {
	OpenAIKey     string
	BackendURL    string
	APIAddr       string
	StateDir      string
	SessionDSN    string
	WhatsAppDSN   string
	Provider      string
	BotMode       string
	CountryPrefix string
	TwilioSID     string
	TwilioToken   string
	TwilioFrom    string
}

// Flags holds command line flag values
type Flags struct {
	openaiKey     *string
	backendURL    *string
	apiAddr       *string
	stateDir      *string
	sessionDSN    *string
	whatsappDSN   *string
	provider      *string
	botMode       *string
	countryPrefix *string
	qrOutput      *string
	numeric       *bool
	twilioSID     *string
	twilioToken   *string
	twilioFrom    *string
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
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		BackendURL:    os.Getenv("BACKEND_URL"),
		APIAddr:       os.Getenv("API_ADDR"),
		StateDir:      os.Getenv("LEADFLOW_STATE_DIR"),
		SessionDSN:    os.Getenv("DATABASE_URL"),
		WhatsAppDSN:   os.Getenv("WHATSAPP_DB_DSN"),
		Provider:      os.Getenv("MESSAGING_PROVIDER"),
		BotMode:       os.Getenv("BOT_MODE"),
		CountryPrefix: os.Getenv("DEFAULT_COUNTRY_PREFIX"),
		TwilioSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:    os.Getenv("TWILIO_FROM_NUMBER"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No LEADFLOW_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultWhatsAppDBFileName)
		slog.Debug("No WhatsApp DSN provided, defaulting to SQLite", "sqlite_path", config.WhatsAppDSN)
	}
	if config.Provider == "" {
		config.Provider = "whatsapp"
	}
	if config.BotMode == "" {
		config.BotMode = "full"
	}

	slog.Debug("environment variables loaded",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"BACKEND_URL_SET", config.BackendURL != "",
		"DATABASE_URL_SET", config.SessionDSN != "",
		"provider", config.Provider,
		"bot_mode", config.BotMode,
	)
	return config
}

// parseCommandLineFlags parses flags, using environment values as defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		openaiKey:     flag.String("openai-key", config.OpenAIKey, "OpenAI API key"),
		backendURL:    flag.String("backend-url", config.BackendURL, "bank backend base URL"),
		apiAddr:       flag.String("addr", config.APIAddr, "HTTP listen address"),
		stateDir:      flag.String("state-dir", config.StateDir, "state directory"),
		sessionDSN:    flag.String("session-dsn", config.SessionDSN, "session store DSN (SQLite path or postgres URL; empty for in-memory)"),
		whatsappDSN:   flag.String("whatsapp-dsn", config.WhatsAppDSN, "whatsmeow database DSN"),
		provider:      flag.String("provider", config.Provider, "messaging provider (whatsapp or twilio)"),
		botMode:       flag.String("bot-mode", config.BotMode, "bot mode (full or relay)"),
		countryPrefix: flag.String("country-prefix", config.CountryPrefix, "default phone country prefix"),
		qrOutput:      flag.String("qr-output", "", "write WhatsApp login QR code to this file"),
		numeric:       flag.Bool("numeric-code", false, "print numeric WhatsApp login code instead of QR"),
		twilioSID:     flag.String("twilio-sid", config.TwilioSID, "Twilio account SID"),
		twilioToken:   flag.String("twilio-token", config.TwilioToken, "Twilio auth token"),
		twilioFrom:    flag.String("twilio-from", config.TwilioFrom, "Twilio WhatsApp sender number"),
	}
	flag.Parse()
	return flags
}

// ensureDirectoriesExist creates the state directory when missing
func ensureDirectoriesExist(flags Flags) error {
	return os.MkdirAll(*flags.stateDir, 0755)
}

// buildSessionStore selects the session store backend from the DSN
func buildSessionStore(flags Flags) (session.Store, error) {
	dsn := *flags.sessionDSN
	if dsn == "" {
		slog.Info("No session DSN configured, using in-memory store")
		return session.NewInMemoryStore(), nil
	}
	if session.DetectDSNType(dsn) == "postgres" {
		slog.Info("Using PostgreSQL session store")
		return session.NewPostgresStore(session.WithDSN(dsn))
	}
	slog.Info("Using SQLite session store", "path", dsn)
	return session.NewSQLiteStore(session.WithDSN(dsn))
}

// buildMessagingService selects the transport provider
func buildMessagingService(flags Flags, normalizer *phone.Normalizer) (messaging.Service, error) {
	if *flags.provider == "twilio" {
		slog.Info("Using Twilio messaging provider")
		return messaging.NewTwilioService(*flags.twilioSID, *flags.twilioToken, *flags.twilioFrom, normalizer)
	}

	slog.Info("Using WhatsApp (whatsmeow) messaging provider")
	waOpts := []whatsapp.Option{whatsapp.WithDBDSN(*flags.whatsappDSN)}
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	waClient, err := whatsapp.NewClient(waOpts...)
	if err != nil {
		return nil, err
	}
	return messaging.NewWhatsAppService(waClient, normalizer), nil
}

// run wires all modules and serves until interrupted
func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	normalizer := phone.NewNormalizer(*flags.countryPrefix)

	store, err := buildSessionStore(flags)
	if err != nil {
		return err
	}
	defer store.Close()

	var genaiClient genai.ClientInterface
	if *flags.openaiKey != "" {
		client, err := genai.NewClient(genai.WithAPIKey(*flags.openaiKey))
		if err != nil {
			return err
		}
		genaiClient = client
	} else {
		slog.Warn("No OpenAI API key configured; classification and validation run degraded")
	}

	var gateway *backend.Gateway
	if *flags.backendURL != "" {
		gateway, err = backend.NewGateway(backend.WithBaseURL(*flags.backendURL))
		if err != nil {
			return err
		}
	} else {
		slog.Warn("No backend URL configured; profile lookups and lead submission disabled")
	}

	engineOpts := []flow.Option{}
	if genaiClient != nil {
		engineOpts = append(engineOpts, flow.WithGenAI(genaiClient))
	}
	if gateway != nil {
		engineOpts = append(engineOpts, flow.WithGateway(gateway))
	}
	engine := flow.NewEngine(store, engineOpts...)

	msgService, err := buildMessagingService(flags, normalizer)
	if err != nil {
		return err
	}
	if err := msgService.Start(ctx); err != nil {
		return err
	}
	defer msgService.Stop()

	handler := messaging.NewResponseHandler(msgService, engine)
	handler.Start(ctx)

	apiOpts := []api.Option{
		api.WithFeatureFlags(genaiClient != nil, gateway != nil, *flags.provider),
	}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.botMode == "relay" && gateway != nil {
		slog.Info("Relay bot mode enabled; /message forwards to the external agent")
		apiOpts = append(apiOpts, api.WithRelay(gateway))
	}
	if twilioSvc, ok := msgService.(*messaging.TwilioService); ok {
		apiOpts = append(apiOpts, api.WithWebhookHandler(twilioSvc.WebhookHandler))
	}

	server := api.NewServer(engine, msgService, apiOpts...)
	slog.Info("Bootstrapping LeadFlow with configured modules")
	return server.Run(ctx)
}
