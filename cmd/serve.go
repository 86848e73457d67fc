package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xenonwellz/autoplybot/internal/ai"
	"github.com/xenonwellz/autoplybot/internal/ai/gemini"
	"github.com/xenonwellz/autoplybot/internal/bot"
	"github.com/xenonwellz/autoplybot/internal/extract"
	"github.com/xenonwellz/autoplybot/internal/history"
	"github.com/xenonwellz/autoplybot/internal/logger"
	"github.com/xenonwellz/autoplybot/internal/mail"
	"github.com/xenonwellz/autoplybot/internal/pending"
	"github.com/xenonwellz/autoplybot/internal/secrets"
	"github.com/xenonwellz/autoplybot/internal/server"
	"github.com/xenonwellz/autoplybot/internal/storage"
	"github.com/xenonwellz/autoplybot/internal/store"
	"github.com/xenonwellz/autoplybot/internal/telegram"
)

const (
	defaultListen       = ":8080"
	defaultPendingPath  = "autoplybot-pending.db"
	defaultPendingSweep = "@every 10m"
	defaultMaxRetries   = 3
	defaultMaxLogLength = 300
	shutdownTimeout     = 15 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the telegram bot and its http server",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "listen address for the http server")
	viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config == nil {
		logger.Fatal("config is required")
	}

	logger.Info("starting the autoplybot", zap.String("version", version))

	telegramToken, err := resolveTelegramToken(config)
	if err != nil {
		logger.Fatal("loading telegram token",
			zap.Error(err),
			zap.String("hint", "set the TELEGRAM_TOKEN or TELEGRAM_TOKEN_FILE environment variable, or the 'telegram.token-file' key in the configuration file"),
		)
	}

	if config.Database == nil || config.Database.URL == "" {
		logger.Fatal("database url is required under database.url")
	}
	db, err := store.New(ctx, config.Database.URL)
	if err != nil {
		logger.Fatal("connecting to postgres", zap.Error(err))
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		logger.Fatal("ensuring database schema", zap.Error(err))
	}

	objects, err := buildStorage(config.Storage)
	if err != nil {
		logger.Fatal("building cv storage", zap.Error(err))
	}

	router, composer, err := buildAI(ctx, config.AI, logger)
	if err != nil {
		logger.Fatal("building ai stages", zap.Error(err))
	}

	pendingPath := defaultPendingPath
	pendingSweep := defaultPendingSweep
	pendingTTL := pending.DefaultTTL
	if config.Pending != nil {
		if config.Pending.Path != "" {
			pendingPath = config.Pending.Path
		}
		if config.Pending.Sweep != "" {
			pendingSweep = config.Pending.Sweep
		}
		if config.Pending.TTL > 0 {
			pendingTTL = config.Pending.TTL
		}
	}
	pendingStore, err := pending.NewSQLite(pendingPath)
	if err != nil {
		logger.Fatal("opening pending store", zap.Error(err))
	}
	defer pendingStore.Close()

	janitor, err := pending.NewJanitor(pendingStore, pendingSweep, logger)
	if err != nil {
		logger.Fatal("scheduling pending sweeps", zap.Error(err))
	}
	janitor.Start()
	defer janitor.Stop()

	dispatcher, tokens, err := buildMailer(config.Mail, db, logger)
	if err != nil {
		logger.Fatal("building mail dispatcher", zap.Error(err))
	}

	var senders bot.SenderResolver
	var connector telegram.Connector
	var exchanger server.TokenExchanger
	if tokens != nil {
		senders = tokens
		connector = tokens
		exchanger = tokens
	}

	b := bot.New(bot.Config{
		History:  history.NewPostgres(db.Pool()),
		Router:   router,
		Composer: composer,
		Pending:  pendingStore,
		Users:    db,
		Objects:  objects,
		Mailer:   dispatcher,
		Senders:  senders,
		DraftTTL: pendingTTL,
		Logger:   logger,
	})

	handler := telegram.NewHandler(telegram.HandlerConfig{
		Client:    telegram.NewClient(telegramToken, logger),
		Bot:       b,
		Users:     db,
		Objects:   objects,
		Extractor: extract.New(logger),
		Connector: connector,
		Logger:    logger,
	})

	listen := defaultListen
	if config.Server != nil && config.Server.Listen != "" {
		listen = config.Server.Listen
	}
	srv := server.New(server.Config{
		Listen:  listen,
		Handler: handler,
		Tokens:  exchanger,
		Users:   db,
		Logger:  logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown", zap.Error(err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}
}

func resolveTelegramToken(config *Config) (string, error) {
	if config == nil {
		return "", errors.New("config is required")
	}

	tokenFile := ""
	if config.Telegram != nil {
		tokenFile = strings.TrimSpace(config.Telegram.TokenFile)
	}
	if tokenFile == "" {
		tokenFile = strings.TrimSpace(viper.GetString("telegram.token-file"))
	}

	return secrets.Load(secrets.Source{
		Name: "telegram token",
		File: tokenFile,
		Env:  "TELEGRAM_TOKEN",
	})
}

// buildAI constructs the routing and generation stages. The router runs on a
// lighter model than the composer unless the config says otherwise.
func buildAI(ctx context.Context, cfg *AIConfig, logger *zap.Logger) (ai.Router, ai.Composer, error) {
	if cfg == nil || cfg.Gemini == nil {
		return nil, nil, errors.New("gemini configuration is required under ai.gemini")
	}
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: cfg.Gemini.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w (set ai.gemini.api-key-file, GEMINI_API_KEY_FILE or GEMINI_API_KEY)", err)
	}

	routerModel := cfg.Gemini.RouterModel
	if routerModel == "" {
		routerModel = gemini.DefaultLightModel
	}
	composerModel := cfg.Gemini.ComposerModel
	if composerModel == "" {
		composerModel = gemini.DefaultHeavyModel
	}
	maxRetries := cfg.Gemini.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	maxLogLength := cfg.Gemini.MaxLogLength
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	routerGen, err := gemini.NewGenerator(ctx, apiKey, routerModel, maxRetries,
		logger.With(zap.String("provider", "gemini"), zap.String("model", routerModel)))
	if err != nil {
		return nil, nil, err
	}
	composerGen, err := gemini.NewGenerator(ctx, apiKey, composerModel, maxRetries,
		logger.With(zap.String("provider", "gemini"), zap.String("model", composerModel)))
	if err != nil {
		return nil, nil, err
	}

	return gemini.NewRouter(routerGen, maxLogLength, logger),
		gemini.NewComposer(composerGen, logger), nil
}

func buildStorage(cfg *StorageConfig) (storage.Store, error) {
	if cfg == nil {
		return storage.NewFS("cv-store")
	}

	switch strings.ToLower(cfg.Backend) {
	case "", "fs":
		dir := cfg.Dir
		if dir == "" {
			dir = "cv-store"
		}
		return storage.NewFS(dir)
	case "s3":
		if cfg.S3 == nil {
			return nil, errors.New("s3 configuration is required under storage.s3")
		}
		secretKey, err := secrets.Load(secrets.Source{
			Name: "s3 secret key",
			File: cfg.S3.SecretKeyFile,
		})
		if err != nil {
			return nil, err
		}
		return storage.NewS3(storage.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: secretKey,
			Secure:    cfg.S3.Secure,
		})
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

// buildMailer returns the dispatcher and, for the gmail provider, the token
// manager backing the /connect flow.
func buildMailer(cfg *MailConfig, db *store.Store, logger *zap.Logger) (mail.Dispatcher, *mail.TokenManager, error) {
	if cfg == nil {
		return nil, nil, errors.New("mail configuration is required")
	}

	switch strings.ToLower(cfg.Provider) {
	case "", "gmail":
		if cfg.Gmail == nil {
			return nil, nil, errors.New("gmail configuration is required under mail.gmail")
		}
		clientSecret, err := secrets.Load(secrets.Source{
			Name: "gmail client secret",
			File: cfg.Gmail.ClientSecretFile,
		})
		if err != nil {
			return nil, nil, err
		}
		cipherKey, err := secrets.Load(secrets.Source{
			Name: "token cipher key",
			File: cfg.Gmail.TokenCipherKeyFile,
		})
		if err != nil {
			return nil, nil, err
		}
		sealer, err := store.NewSealer(cipherKey)
		if err != nil {
			return nil, nil, err
		}
		tokens := mail.NewTokenManager(mail.OAuthConfig{
			ClientID:     cfg.Gmail.ClientID,
			ClientSecret: clientSecret,
			RedirectURI:  cfg.Gmail.RedirectURI,
		}, db, sealer, logger)
		return mail.NewGmailDispatcher(tokens, logger), tokens, nil

	case "smtp":
		if cfg.SMTP == nil {
			return nil, nil, errors.New("smtp configuration is required under mail.smtp")
		}
		password, err := secrets.Load(secrets.Source{
			Name: "smtp password",
			File: cfg.SMTP.PasswordFile,
		})
		if err != nil {
			return nil, nil, err
		}
		return mail.NewSMTPDispatcher(mail.SMTPConfig{
			Addr:     cfg.SMTP.Addr,
			Username: cfg.SMTP.Username,
			Password: password,
			From:     cfg.SMTP.From,
		}, logger), nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported mail provider: %s", cfg.Provider)
	}
}
