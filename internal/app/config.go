package app

import (
	"context"
	"os"
	"strings"
	"time"

	"hall_roster/internal/config"
	"hall_roster/internal/notifications"
	"hall_roster/internal/sheets"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultCacheTTL = 5 * time.Minute

// SetupEnvironment loads .env file and configures zerolog output and log level.
func SetupEnvironment() {
	// Load .env file if it exists
	err := godotenv.Load()

	// Configure logging
	if os.Getenv("ENV") == "production" {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = log.Output(os.Stderr)
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("run_id", uuid.NewString()).Logger()

	levelStr := strings.ToLower(os.Getenv("LOGLEVEL"))
	switch levelStr {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	case "panic":
		zerolog.SetGlobalLevel(zerolog.PanicLevel)
	case "disabled":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	case "":
		// Default based on environment
		if os.Getenv("ENV") == "production" {
			zerolog.SetGlobalLevel(zerolog.WarnLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log.Warn().Msgf("Unknown LOGLEVEL '%s', defaulting to info.", levelStr)
	}

	// wait until now to report on the .env file so we have the chance to set up logging first
	if err == nil {
		log.Debug().Msg("Loaded environment variables from .env file.")
	} else {
		log.Debug().Msg("No .env file found or error loading .env file; proceeding with existing environment variables.")
	}
}

// GetRequiredEnv fetches a required environment variable or exits if not set.
func GetRequiredEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatal().Msgf("%s environment variable is required", key)
	}
	return value
}

// GetEnvWithDefault fetches an environment variable with a default fallback.
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetDurationEnv parses a Go duration from the environment, falling back to
// defaultValue when unset or malformed.
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Warn().Str("key", key).Str("value", raw).Dur("default", defaultValue).Msg("Invalid duration, using default")
		return defaultValue
	}
	return d
}

// InitializeServices builds the spreadsheet client and every service on top
// of it. Configuration problems are fatal.
func InitializeServices(ctx context.Context) *Services {
	log.Debug().Msg("Initializing services")
	spreadsheetID := GetRequiredEnv("SPREADSHEET_ID")

	layout, err := config.LoadLayout(os.Getenv("LAYOUT_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load spreadsheet layout")
	}

	creds := sheets.Credentials{
		JSON: []byte(os.Getenv("GOOGLE_CREDENTIALS")),
		File: GetEnvWithDefault("GOOGLE_CREDENTIALS_FILE", "credentials.json"),
	}
	sheetsClient, err := sheets.NewClient(ctx, spreadsheetID, creds)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create sheets client")
	}

	ttl := GetDurationEnv("CACHE_TTL", defaultCacheTTL)
	services := NewServices(sheetsClient, layout, ttl, InitializeNotificationClient())

	log.Debug().Dur("cache_ttl", ttl).Msg("Services initialized successfully")
	return services
}

// InitializeNotificationClient creates and returns the notification client
func InitializeNotificationClient() *notifications.Client {
	enabled := GetEnvWithDefault("NTFY_ENABLED", "false") == "true"
	baseURL := GetEnvWithDefault("NTFY_URL", "https://ntfy.sh")
	topic := GetEnvWithDefault("NTFY_TOPIC", "hall-roster")
	priority := GetEnvWithDefault("NTFY_PRIORITY", "default")

	log.Debug().
		Bool("enabled", enabled).
		Str("base_url", baseURL).
		Str("topic", topic).
		Msg("Initializing notification client")

	client := notifications.NewClient(notifications.Options{
		BaseURL:    baseURL,
		Topic:      topic,
		Enabled:    enabled,
		Priority:   priority,
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
	})

	if enabled {
		log.Info().Str("topic", topic).Msg("Notifications enabled")
	} else {
		log.Debug().Msg("Notifications disabled")
	}

	return client
}
