package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/michelskapp-design/3DFANS/internal/api"
	"github.com/michelskapp-design/3DFANS/internal/catalog"
	"github.com/michelskapp-design/3DFANS/internal/contacts"
	"github.com/michelskapp-design/3DFANS/internal/flow"
	"github.com/michelskapp-design/3DFANS/internal/gateway"
	"github.com/michelskapp-design/3DFANS/internal/genai"
	"github.com/michelskapp-design/3DFANS/internal/lockfile"
	"github.com/michelskapp-design/3DFANS/internal/memory"
	"github.com/michelskapp-design/3DFANS/internal/messaging"
	"github.com/michelskapp-design/3DFANS/internal/models"
	"github.com/michelskapp-design/3DFANS/internal/payments"
	"github.com/michelskapp-design/3DFANS/internal/prompts"
	"github.com/michelskapp-design/3DFANS/internal/store"
	"github.com/michelskapp-design/3DFANS/internal/util"
	"github.com/michelskapp-design/3DFANS/internal/whatsapp"
)

// Default configuration constants.
const (
	// DefaultStateDir is the default directory for bot state data.
	DefaultStateDir = "/var/lib/3dfans"
	// DefaultDBFileName is the default SQLite database filename.
	DefaultDBFileName = "3dfans.db"
	// DefaultAddr is the default API listen address.
	DefaultAddr = ":8080"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	if err := run(config, flags); err != nil {
		slog.Error("3DFANS bot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("3DFANS bot exited successfully")
}

// Config holds environment configuration.
type Config struct {
	StateDir    string
	DatabaseURL string
	Addr        string

	OpenAIKey string

	MessagingBackend string
	ZAPIInstance     string
	ZAPIToken        string
	ZAPIClientToken  string
	TwilioSID        string
	TwilioToken      string
	TwilioFrom       string
	WhatsAppDSN      string

	ShopifyDomain string
	ShopifyToken  string
	PublicDomain  string

	WebhookSecret string
	CheckoutURL   string
	Link16        string
	Link21        string
	AdminPhones   []string

	PromptsDir string
	Debug      bool
}

// Flags holds command line flag values.
type Flags struct {
	stateDir   *string
	dbDSN      *string
	addr       *string
	openaiKey  *string
	backend    *string
	promptsDir *string
	qrOutput   *string
	numeric    *bool
}

// initializeLogger sets up structured logging; DEBUG=1 raises verbosity.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and an
// optional .env file.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:    util.EnvOrDefault("STATE_DIR", DefaultStateDir),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Addr:        util.EnvOrDefault("API_ADDR", ":"+util.EnvOrDefault("PORT", strings.TrimPrefix(DefaultAddr, ":"))),

		OpenAIKey: os.Getenv("OPENAI_API_KEY"),

		MessagingBackend: strings.ToLower(util.EnvOrDefault("MESSAGING_BACKEND", "zapi")),
		ZAPIInstance:     os.Getenv("ZAPI_INSTANCE"),
		ZAPIToken:        os.Getenv("ZAPI_TOKEN"),
		ZAPIClientToken:  os.Getenv("ZAPI_CLIENT_TOKEN"),
		TwilioSID:        os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:       os.Getenv("TWILIO_FROM_NUMBER"),
		WhatsAppDSN:      os.Getenv("WHATSAPP_DB_DSN"),

		ShopifyDomain: os.Getenv("SHOPIFY_DOMAIN"),
		ShopifyToken:  os.Getenv("SHOPIFY_STOREFRONT_TOKEN"),
		PublicDomain:  os.Getenv("SHOP_PUBLIC_DOMAIN"),

		WebhookSecret: os.Getenv("OPENPIX_WEBHOOK_SECRET"),
		CheckoutURL:   os.Getenv("PREVIEW_CHECKOUT_URL"),
		Link16:        os.Getenv("APPMAX_LINK_16"),
		Link21:        os.Getenv("APPMAX_LINK_21"),

		PromptsDir: os.Getenv("PROMPTS_DIR"),
		Debug:      util.ParseBoolEnv("DEBUG", false),
	}

	if admins := os.Getenv("ADMIN_PHONES"); admins != "" {
		for _, p := range strings.Split(admins, ",") {
			if p = strings.TrimSpace(p); p != "" {
				config.AdminPhones = append(config.AdminPhones, p)
			}
		}
	}

	slog.Debug("environment variables loaded",
		"STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"API_ADDR", config.Addr,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"MESSAGING_BACKEND", config.MessagingBackend,
		"SHOPIFY_DOMAIN_SET", config.ShopifyDomain != "",
		"OPENPIX_WEBHOOK_SECRET_SET", config.WebhookSecret != "",
		"ADMIN_PHONES", len(config.AdminPhones))

	return config
}

// parseCommandLineFlags parses command line arguments with environment
// defaults.
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:   flag.String("state-dir", config.StateDir, "state directory for bot data (overrides $STATE_DIR)"),
		dbDSN:      flag.String("db-dsn", config.DatabaseURL, "database DSN for the session store (overrides $DATABASE_URL)"),
		addr:       flag.String("api-addr", config.Addr, "API server address (overrides $API_ADDR)"),
		openaiKey:  flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		backend:    flag.String("messaging-backend", config.MessagingBackend, "messaging backend: zapi, whatsapp or twilio (overrides $MESSAGING_BACKEND)"),
		promptsDir: flag.String("prompts-dir", config.PromptsDir, "directory with replies.json and system.txt overrides (overrides $PROMPTS_DIR)"),
		qrOutput:   flag.String("qr-output", "", "path to write WhatsApp login QR code (whatsapp backend)"),
		numeric:    flag.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"addr", *flags.addr,
		"backend", *flags.backend)

	return flags
}

// ensureDirectoriesExist creates the state directory for file-based storage.
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return nil
	}
	if err := os.MkdirAll(*flags.stateDir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", *flags.stateDir, err)
	}
	return nil
}

// buildStore selects the session store backend from the DSN.
func buildStore(config Config, flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	switch {
	case store.DetectDSNType(dsn) == "postgres":
		slog.Info("Using PostgreSQL session store")
		return store.NewPostgresStore(store.WithDSN(dsn))
	case dsn != "":
		slog.Info("Using SQLite session store", "path", dsn)
		return store.NewSQLiteStore(store.WithDSN(dsn))
	default:
		slog.Info("Using in-memory session store with file-backed references", "data_dir", *flags.stateDir)
		return store.NewInMemoryStore(store.WithDataDir(*flags.stateDir))
	}
}

// buildMessaging selects and constructs the messaging backend.
func buildMessaging(config Config, flags Flags) (messaging.Service, error) {
	switch *flags.backend {
	case "zapi":
		sender, err := gateway.NewClient(
			gateway.WithInstance(config.ZAPIInstance),
			gateway.WithToken(config.ZAPIToken),
			gateway.WithClientToken(config.ZAPIClientToken),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to build Z-API client: %w", err)
		}
		return messaging.NewZAPIService(sender), nil
	case "whatsapp":
		var waOpts []whatsapp.Option
		dsn := config.WhatsAppDSN
		if dsn == "" {
			dsn = filepath.Join(*flags.stateDir, "whatsmeow.db")
		}
		waOpts = append(waOpts, whatsapp.WithDBDSN(dsn))
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to build WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil
	case "twilio":
		return messaging.NewTwilioService(
			messaging.WithAccountSID(config.TwilioSID),
			messaging.WithAuthToken(config.TwilioToken),
			messaging.WithFromWhats(config.TwilioFrom),
		)
	default:
		return nil, fmt.Errorf("unknown messaging backend %q", *flags.backend)
	}
}

// run wires all modules together and serves until interrupted.
func run(config Config, flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := buildStore(config, flags)
	if err != nil {
		return fmt.Errorf("failed to build store: %w", err)
	}
	defer st.Close()

	msgr, err := buildMessaging(config, flags)
	if err != nil {
		return fmt.Errorf("failed to build messaging backend: %w", err)
	}
	if err := msgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging backend: %w", err)
	}
	defer msgr.Stop(context.Background())

	lib := prompts.New(*flags.promptsDir)
	lib.Watch(ctx, prompts.DefaultPollInterval)

	mem, err := memory.New(*flags.stateDir)
	if err != nil {
		return fmt.Errorf("failed to open taught-answer memory: %w", err)
	}
	contactLog, err := contacts.New(*flags.stateDir)
	if err != nil {
		return fmt.Errorf("failed to open contact log: %w", err)
	}

	var imageGen genai.ImageGenerator
	if *flags.openaiKey != "" {
		imageGen, err = genai.NewClient(genai.WithAPIKey(*flags.openaiKey))
		if err != nil {
			return fmt.Errorf("failed to build image client: %w", err)
		}
	} else {
		slog.Warn("OPENAI_API_KEY not set, preview generation disabled")
		imageGen = genai.NewMockGenerator()
	}

	var cat catalog.Searcher
	if config.ShopifyDomain != "" && config.ShopifyToken != "" {
		cat = catalog.NewClient(
			catalog.WithDomain(config.ShopifyDomain),
			catalog.WithToken(config.ShopifyToken),
			catalog.WithPublicDomain(config.PublicDomain),
		)
	} else {
		slog.Warn("Shopify credentials not set, mascot catalog search disabled")
	}

	machine := flow.NewMachine(lib,
		flow.WithCheckoutURL(config.CheckoutURL),
		flow.WithSizeLinks(config.Link16, config.Link21),
		flow.WithAnswerLookup(func(q string) (string, bool) {
			a := mem.Answer(q)
			return a, a != ""
		}),
	)

	preview := flow.NewPreviewRunner(st, imageGen, msgr, lib)
	reconciler := payments.NewReconciler(st)

	coordinator, err := flow.NewCoordinator(flow.CoordinatorOpts{
		Store:       st,
		Machine:     machine,
		Library:     lib,
		Messenger:   msgr,
		Preview:     preview,
		Reconciler:  reconciler,
		Catalog:     cat,
		Memory:      mem,
		Contacts:    contactLog,
		AdminPhones: config.AdminPhones,
	})
	if err != nil {
		return fmt.Errorf("failed to build coordinator: %w", err)
	}

	// The direct WhatsApp backend feeds inbound messages straight into the
	// coordinator; the others arrive via the chat webhook.
	if wa, ok := msgr.(*messaging.WhatsAppService); ok {
		wa.SetMessageHandler(func(msg models.InboundMessage) {
			hctx, cancel := context.WithTimeout(ctx, api.ProcessTimeout)
			defer cancel()
			if err := coordinator.HandleInbound(hctx, msg); err != nil {
				slog.Error("inbound processing failed", "phone", msg.Phone, "error", err)
			}
		})
	}

	server, err := api.NewServer(coordinator,
		api.WithAddr(*flags.addr),
		api.WithWebhookSecret(config.WebhookSecret),
	)
	if err != nil {
		return fmt.Errorf("failed to build API server: %w", err)
	}

	slog.Info("Bootstrapping 3DFANS bot", "backend", *flags.backend, "addr", *flags.addr)
	return server.Run(ctx)
}
