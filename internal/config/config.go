package config

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all configuration for the application. By centralizing these
// settings, we make the application easier to manage and deploy.
type Config struct {
	// --- Server & Paths ---
	ServerAddr  string
	DataPath    string
	DbFile      string
	FrontendURL string

	// --- Club ---
	// SettingsFile points to an optional YAML file with club-level settings.
	SettingsFile string
	Settings     *ClubSettings
	Location     *time.Location

	// --- Security ---
	JwtSecret string

	// --- Email (SMTP) ---
	SmtpHost   string
	SmtpPort   int
	SmtpUser   string
	SmtpPass   string
	SmtpSender string

	// --- Google OAuth 2.0 ---
	GoogleOauthClientID     string
	GoogleOauthClientSecret string
	GoogleOauthRedirectURL  string

	// --- Headless CMS ---
	CmsBaseURL  string
	CmsToken    string
	CmsCacheTTL time.Duration

	// --- Redis (optional CMS cache) ---
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// --- Parsed & Derived Fields ---
	// Parsed version of FrontendURL, used for the SSE origin header.
	ParsedFrontendURL *url.URL
}

// New creates a new Config instance by loading values from environment variables.
// It validates that critical variables are present and will return an error if
// the configuration is invalid, preventing the server from starting.
func New() (*Config, error) {
	port, _ := strconv.Atoi(os.Getenv("SMTP_PORT"))
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))

	cfg := &Config{
		ServerAddr:              os.Getenv("SERVER_ADDR"),
		DataPath:                os.Getenv("DATA_PATH"),
		SettingsFile:            os.Getenv("CLUB_SETTINGS_FILE"),
		JwtSecret:               os.Getenv("JWT_SECRET"),
		FrontendURL:             os.Getenv("FRONTEND_URL"),
		SmtpHost:                os.Getenv("SMTP_HOST"),
		SmtpPort:                port,
		SmtpUser:                os.Getenv("SMTP_USER"),
		SmtpPass:                os.Getenv("SMTP_PASS"),
		SmtpSender:              os.Getenv("SMTP_SENDER"),
		GoogleOauthClientID:     os.Getenv("GOOGLE_OAUTH_CLIENT_ID"),
		GoogleOauthClientSecret: os.Getenv("GOOGLE_OAUTH_CLIENT_SECRET"),
		GoogleOauthRedirectURL:  os.Getenv("GOOGLE_OAUTH_REDIRECT_URL"),
		CmsBaseURL:              os.Getenv("CMS_BASE_URL"),
		CmsToken:                os.Getenv("CMS_TOKEN"),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 redisDB,
	}

	// --- Provide sensible defaults for non-critical values ---
	if cfg.DataPath == "" {
		cfg.DataPath = "./data"
	}
	if cfg.ServerAddr == "" {
		cfg.ServerAddr = ":8080"
	}
	cfg.CmsCacheTTL = 5 * time.Minute
	if v := os.Getenv("CMS_CACHE_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return nil, errors.New("FATAL: invalid CMS_CACHE_TTL, use a Go duration like 5m")
		}
		cfg.CmsCacheTTL = ttl
	}

	// --- Validate critical required values ---
	if cfg.JwtSecret == "" {
		return nil, errors.New("FATAL: JWT_SECRET environment variable is not set")
	}
	if cfg.FrontendURL == "" {
		return nil, errors.New("FATAL: FRONTEND_URL environment variable is not set")
	}

	parsedURL, err := url.Parse(cfg.FrontendURL)
	if err != nil {
		return nil, errors.New("FATAL: Invalid FRONTEND_URL format")
	}
	cfg.ParsedFrontendURL = parsedURL

	cfg.DbFile = filepath.Join(cfg.DataPath, "club.db")

	settings, err := LoadSettings(cfg.SettingsFile)
	if err != nil {
		return nil, err
	}
	// CLUB_TIMEZONE wins over the settings file so deployments can override it.
	if tz := os.Getenv("CLUB_TIMEZONE"); tz != "" {
		settings.Timezone = tz
	}
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		return nil, errors.New("FATAL: unknown club timezone " + settings.Timezone)
	}
	cfg.Settings = settings
	cfg.Location = loc

	return cfg, nil
}

// GoogleLoginEnabled reports whether Google sign-in credentials are configured.
func (c *Config) GoogleLoginEnabled() bool {
	return c.GoogleOauthClientID != "" && c.GoogleOauthClientSecret != ""
}

// EmailEnabled reports whether outgoing mail is configured.
func (c *Config) EmailEnabled() bool {
	return c.SmtpHost != ""
}
