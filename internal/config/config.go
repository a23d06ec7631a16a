package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string
	Environment   string
	FrontendURL   string
	Database      DatabaseConfig
	Wompi         WompiConfig
	Auth          AuthConfig
	Mail          MailConfig
	Notifications NotificationsConfig
	LogLevel      string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the lib/pq connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type WompiConfig struct {
	BaseURL      string
	PublicKey    string
	PrivateKey   string
	EventsSecret string
	Currency     string
	Timeout      time.Duration
}

type AuthConfig struct {
	JWTSecret         string
	Issuer            string
	ExpirationMinutes int
}

type MailConfig struct {
	SMTPHost string
	SMTPPort string
	Username string
	Password string
	From     string
}

// Enabled reports whether an SMTP relay is configured
func (c MailConfig) Enabled() bool {
	return c.SMTPHost != ""
}

type NotificationsConfig struct {
	Workers   int
	QueueSize int
}

func Load() (*Config, error) {
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")

	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("WOMPI_BASE_URL", "https://production.wompi.co/v1")
	viper.SetDefault("WOMPI_CURRENCY", "USD")

	// Read from environment variables
	viper.AutomaticEnv()

	// Try to read .env file (optional)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	timeoutSeconds, err := getIntOrViper("WOMPI_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	expirationMinutes, err := getIntOrViper("JWT_EXPIRATION_MINUTES", 60)
	if err != nil {
		return nil, err
	}
	workers, err := getIntOrViper("NOTIFY_WORKERS", 2)
	if err != nil {
		return nil, err
	}
	queueSize, err := getIntOrViper("NOTIFY_QUEUE_SIZE", 100)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:        getEnvOrViper("PORT", "8080"),
		Environment: getEnvOrViper("ENVIRONMENT", "development"),
		FrontendURL: getEnvOrViper("FRONTEND_URL", "http://localhost:5173"),
		Database: DatabaseConfig{
			Host:     getEnvOrViper("DB_HOST", "localhost"),
			Port:     getEnvOrViper("DB_PORT", "5432"),
			User:     getEnvOrViper("DB_USER", "postgres"),
			Password: getEnvOrViper("DB_PASSWORD", "postgres"),
			DBName:   getEnvOrViper("DB_NAME", "shopapi"),
			SSLMode:  getEnvOrViper("DB_SSLMODE", "disable"),
		},
		Wompi: WompiConfig{
			BaseURL:      getEnvOrViper("WOMPI_BASE_URL", "https://production.wompi.co/v1"),
			PublicKey:    getEnvOrViper("WOMPI_PUBLIC_KEY", ""),
			PrivateKey:   getEnvOrViper("WOMPI_PRIVATE_KEY", ""),
			EventsSecret: getEnvOrViper("WOMPI_EVENTS_SECRET", ""),
			Currency:     getEnvOrViper("WOMPI_CURRENCY", "USD"),
			Timeout:      time.Duration(timeoutSeconds) * time.Second,
		},
		Auth: AuthConfig{
			JWTSecret:         getEnvOrViper("JWT_SECRET", ""),
			Issuer:            getEnvOrViper("JWT_ISSUER", "shopapi"),
			ExpirationMinutes: expirationMinutes,
		},
		Mail: MailConfig{
			SMTPHost: getEnvOrViper("SMTP_HOST", ""),
			SMTPPort: getEnvOrViper("SMTP_PORT", "587"),
			Username: getEnvOrViper("SMTP_USERNAME", ""),
			Password: getEnvOrViper("SMTP_PASSWORD", ""),
			From:     getEnvOrViper("MAIL_FROM", "no-reply@localhost"),
		},
		Notifications: NotificationsConfig{
			Workers:   workers,
			QueueSize: queueSize,
		},
		LogLevel: getEnvOrViper("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Wompi.PublicKey == "" {
		return fmt.Errorf("WOMPI_PUBLIC_KEY is required")
	}
	if c.Wompi.EventsSecret == "" {
		return fmt.Errorf("WOMPI_EVENTS_SECRET is required")
	}
	if c.Wompi.Timeout <= 0 {
		return fmt.Errorf("WOMPI_TIMEOUT_SECONDS must be positive")
	}
	if c.Notifications.Workers < 1 {
		return fmt.Errorf("NOTIFY_WORKERS must be at least 1")
	}
	return nil
}

func getEnvOrViper(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultValue
}

func getIntOrViper(key string, defaultValue int) (int, error) {
	raw := getEnvOrViper(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return val, nil
}
