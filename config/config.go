package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ServerPort  string
	DatabaseURL string
	LogLevel    string

	// Auth
	JWTSecret string
	JWTExpiry time.Duration

	// PAN encryption (fernet key, base64url)
	PANKey string

	// SMTP email
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SenderEmail  string
	SenderName   string

	// Links embedded in outbound email
	FrontendURL string
	APIURL      string

	// Inter-send delay during bulk email fan-out
	EmailSendDelay time.Duration
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	return &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTExpiry: time.Duration(getEnvInt("JWT_EXPIRE_HOURS", 168)) * time.Hour,

		PANKey: getEnv("PAN_ENCRYPTION_KEY", ""),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SenderEmail:  getEnv("SENDER_EMAIL", "no-reply@ipogains.com"),
		SenderName:   getEnv("SENDER_NAME", "IPOGains"),

		FrontendURL: getEnv("FRONTEND_URL", "https://ipogains.com"),
		APIURL:      getEnv("API_URL", "http://localhost:8080"),

		EmailSendDelay: time.Duration(getEnvInt("EMAIL_SEND_DELAY_MS", 100)) * time.Millisecond,
	}
}

// EmailConfigured reports whether SMTP delivery is usable. When false the
// mailer runs in simulation mode and logs instead of sending.
func (c *Config) EmailConfigured() bool {
	return c.SMTPHost != ""
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %d", key, value, fallback)
		return fallback
	}
	return n
}
