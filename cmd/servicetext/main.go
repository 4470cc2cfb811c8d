// ServiceText turns a missed phone call into a guided diagnostic text
// conversation: it greets the caller, asks follow-up questions in Bulgarian,
// assesses urgency and risk and schedules a callback or escalates.
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

	"github.com/dmirchev92/servicetext/internal/analyzer"
	"github.com/dmirchev92/servicetext/internal/api"
	"github.com/dmirchev92/servicetext/internal/engine"
	"github.com/dmirchev92/servicetext/internal/flow"
	"github.com/dmirchev92/servicetext/internal/messaging"
	"github.com/dmirchev92/servicetext/internal/models"
	"github.com/dmirchev92/servicetext/internal/nlp"
	"github.com/dmirchev92/servicetext/internal/response"
	"github.com/dmirchev92/servicetext/internal/scheduler"
	"github.com/dmirchev92/servicetext/internal/store"
	"github.com/dmirchev92/servicetext/internal/twiliosms"
	"github.com/dmirchev92/servicetext/internal/util"
	"github.com/dmirchev92/servicetext/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ServiceText state data
	DefaultStateDir = "/var/lib/servicetext"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "servicetext.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow SQLite filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// AbandonSweepSchedule closes stale conversations once an hour.
	AbandonSweepSchedule = "0 * * * *"
	// AbandonAfter is how long a conversation may sit idle before the sweep
	// closes it.
	AbandonAfter = 24 * time.Hour
)

// Config holds environment configuration
type Config struct {
	StateDir         string
	DatabaseURL      string
	WhatsAppDSN      string
	APIAddr          string
	Backend          string
	LexiconPath      string
	AgentName        string
	Profession       string
	ExperienceYears  int
	WorkingHours     string
	EmergencyContact string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput    *string
	numeric     *bool
	stateDir    *string
	dbDSN       *string
	apiAddr     *string
	backend     *string
	lexiconPath *string
}

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := os.MkdirAll(*flags.stateDir, 0o755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "dir", *flags.stateDir)
		os.Exit(1)
	}

	slog.Info("Bootstrapping ServiceText", "backend", *flags.backend, "api_addr", *flags.apiAddr)
	if err := run(config, flags); err != nil {
		slog.Error("ServiceText failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ServiceText exited successfully")
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
		StateDir:         os.Getenv("SERVICETEXT_STATE_DIR"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		WhatsAppDSN:      os.Getenv("WHATSAPP_DB_DSN"),
		APIAddr:          os.Getenv("API_ADDR"),
		Backend:          os.Getenv("MESSAGING_BACKEND"),
		LexiconPath:      os.Getenv("LEXICON_PATH"),
		AgentName:        os.Getenv("BUSINESS_AGENT_NAME"),
		Profession:       os.Getenv("BUSINESS_PROFESSION"),
		ExperienceYears:  util.ParseIntEnv("BUSINESS_EXPERIENCE_YEARS", 0),
		WorkingHours:     os.Getenv("BUSINESS_WORKING_HOURS"),
		EmergencyContact: os.Getenv("BUSINESS_EMERGENCY_CONTACT"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SERVICETEXT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultWhatsAppDBFileName)
	}
	if config.Backend == "" {
		config.Backend = "whatsapp"
	}

	slog.Debug("environment variables loaded",
		"SERVICETEXT_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"API_ADDR", config.APIAddr,
		"MESSAGING_BACKEND", config.Backend,
		"LEXICON_PATH_SET", config.LexiconPath != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:    flag.String("qr-output", "", "path to write login QR code"),
		numeric:     flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for ServiceText data (overrides $SERVICETEXT_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN for the conversation store (overrides $DATABASE_URL)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		backend:     flag.String("backend", config.Backend, "messaging backend: whatsapp, twilio or mock (overrides $MESSAGING_BACKEND)"),
		lexiconPath: flag.String("lexicon", config.LexiconPath, "path to a JSON lexicon file (overrides $LEXICON_PATH)"),
	}
	flag.Parse()
	return flags
}

// buildStore selects the conversation store backend by DSN type.
func buildStore(dsn string) (store.Store, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Using PostgreSQL conversation store")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Debug("Using SQLite conversation store", "path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// buildMessaging selects the messaging backend.
func buildMessaging(config Config, flags Flags) (messaging.Service, error) {
	switch *flags.backend {
	case "twilio":
		client, err := twiliosms.NewClient()
		if err != nil {
			return nil, err
		}
		return messaging.NewTwilioService(client), nil
	case "mock":
		slog.Warn("Using mock messaging backend, no messages will be delivered")
		return messaging.NewMockService(), nil
	default:
		waOpts := []whatsapp.Option{whatsapp.WithDBDSN(config.WhatsAppDSN)}
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
}

// buildLexicon loads the configured lexicon or falls back to the built-in one.
func buildLexicon(path string) *nlp.Lexicon {
	if path == "" {
		return nlp.DefaultLexicon()
	}
	lex, err := nlp.LoadLexicon(path)
	if err != nil {
		slog.Error("Failed to load lexicon, using built-in default", "error", err, "path", path)
		return nlp.DefaultLexicon()
	}
	slog.Info("Loaded lexicon", "path", path, "version", lex.Version)
	return lex
}

func run(config Config, flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	msgService, err := buildMessaging(config, flags)
	if err != nil {
		return err
	}
	if err := msgService.Start(ctx); err != nil {
		return err
	}
	defer msgService.Stop()

	dispatcher := messaging.NewDispatcher(msgService)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	timer := scheduler.NewSimpleTimer()
	defer timer.Stop()

	processor := nlp.NewProcessor(buildLexicon(*flags.lexiconPath))
	fm := flow.NewManager(st, processor, analyzer.NewAnalyzer())
	contexts := engine.NewStaticContextProvider(models.BusinessContext{
		AgentName:        config.AgentName,
		Profession:       config.Profession,
		ExperienceYears:  config.ExperienceYears,
		WorkingHours:     config.WorkingHours,
		EmergencyContact: config.EmergencyContact,
	})
	eng := engine.New(fm, st, response.NewGenerator(), dispatcher, timer, contexts)

	channel := models.ChannelWhatsApp
	if *flags.backend == "twilio" {
		channel = models.ChannelSMS
	}
	go eng.ListenIncoming(ctx, msgService.Incoming(), channel)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(AbandonSweepSchedule, func() {
		sweepAbandoned(ctx, eng)
	}); err != nil {
		return err
	}

	apiOpts := []api.Option{}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(eng, msgService, apiOpts...)
	return server.Run(ctx)
}

// sweepAbandoned closes conversations idle for longer than AbandonAfter.
func sweepAbandoned(ctx context.Context, eng *engine.Engine) {
	convs, err := eng.ListActive(ctx)
	if err != nil {
		slog.Error("Abandon sweep failed to list conversations", "error", err)
		return
	}
	cutoff := time.Now().Add(-AbandonAfter)
	for _, conv := range convs {
		if conv.LastMessageAt.After(cutoff) {
			continue
		}
		if err := eng.CloseConversation(ctx, conv.ID, "no customer response"); err != nil {
			slog.Error("Abandon sweep failed to close conversation", "error", err, "conversationID", conv.ID)
		} else {
			slog.Info("Abandon sweep closed idle conversation", "conversationID", conv.ID)
		}
	}
}
