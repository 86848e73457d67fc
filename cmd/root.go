package cmd

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "autoplybot"
)

type Config struct {
	Telegram *TelegramConfig `mapstructure:"telegram"`
	AI       *AIConfig       `mapstructure:"ai"`
	Database *DatabaseConfig `mapstructure:"database"`
	Storage  *StorageConfig  `mapstructure:"storage"`
	Mail     *MailConfig     `mapstructure:"mail"`
	Pending  *PendingConfig  `mapstructure:"pending"`
	Server   *ServerConfig   `mapstructure:"server"`
}

type TelegramConfig struct {
	TokenFile string `mapstructure:"token-file"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile    string `mapstructure:"api-key-file"`
	RouterModel   string `mapstructure:"router-model"`
	ComposerModel string `mapstructure:"composer-model"`
	MaxRetries    int    `mapstructure:"max-retries"`
	MaxLogLength  int    `mapstructure:"max-log-length"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type StorageConfig struct {
	Backend string           `mapstructure:"backend"`
	Dir     string           `mapstructure:"dir"`
	S3      *S3StorageConfig `mapstructure:"s3"`
}

type S3StorageConfig struct {
	Endpoint      string `mapstructure:"endpoint"`
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	AccessKey     string `mapstructure:"access-key"`
	SecretKeyFile string `mapstructure:"secret-key-file"`
	Secure        bool   `mapstructure:"secure"`
}

type MailConfig struct {
	Provider string       `mapstructure:"provider"`
	Gmail    *GmailConfig `mapstructure:"gmail"`
	SMTP     *SMTPConfig  `mapstructure:"smtp"`
}

type GmailConfig struct {
	ClientID           string `mapstructure:"client-id"`
	ClientSecretFile   string `mapstructure:"client-secret-file"`
	RedirectURI        string `mapstructure:"redirect-uri"`
	TokenCipherKeyFile string `mapstructure:"token-cipher-key-file"`
}

type SMTPConfig struct {
	Addr         string `mapstructure:"addr"`
	Username     string `mapstructure:"username"`
	PasswordFile string `mapstructure:"password-file"`
	From         string `mapstructure:"from"`
}

type PendingConfig struct {
	Path  string        `mapstructure:"path"`
	TTL   time.Duration `mapstructure:"ttl"`
	Sweep string        `mapstructure:"sweep"`
}

type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "autoplybot is a telegram bot that drafts and sends job application emails from your CV",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("telegram.token-file", "TELEGRAM_TOKEN_FILE"); err != nil {
		log.Fatalf("binding TELEGRAM_TOKEN_FILE environment variable: %v", err)
	}
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}
	if err := viper.BindEnv("database.url", "DATABASE_URL"); err != nil {
		log.Fatalf("binding DATABASE_URL environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is autoplybot.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Config needed only for the serve and chat commands.
	if serveCmd.CalledAs() == "" && chatCmd.CalledAs() == "" {
		return
	}

	// Local overrides for development. Missing file is fine.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
