package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/intermernet/clubportal/internal/api"
	"github.com/intermernet/clubportal/internal/cms"
	"github.com/intermernet/clubportal/internal/config"
	"github.com/intermernet/clubportal/internal/database"
	"github.com/intermernet/clubportal/internal/email"
	"github.com/intermernet/clubportal/internal/realtime"
)

// main is the entry point for the club portal server.
func main() {
	// --- 1. Load Configuration ---
	// A .env file is a development convenience; production sets real
	// environment variables.
	if err := godotenv.Load(); err != nil {
		log.Println("INFO: No .env file found, using environment variables from the system.")
	}

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("FATAL: Failed to load application configuration: %v", err)
	}
	log.Printf("INFO: Club %q, timezone %s.", cfg.Settings.ClubName, cfg.Location)

	// --- 2. Ensure the data directory exists ---
	if err := os.MkdirAll(cfg.DataPath, 0755); err != nil {
		log.Fatalf("FATAL: Failed to create data directory at %s: %v", cfg.DataPath, err)
	}

	// --- 3. Database ---
	dbService, err := database.NewService(cfg.DbFile)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database service: %v", err)
	}
	defer dbService.Close()

	if err := dbService.Migrate(); err != nil {
		log.Fatalf("FATAL: Failed to migrate database schema: %v", err)
	}
	log.Println("INFO: Database schema is up to date.")

	// --- 4. Realtime, mail and CMS ---
	broker := realtime.NewBroker()

	emailService := email.NewEmailService(email.SMTPServerConfig{
		Host:     cfg.SmtpHost,
		Port:     cfg.SmtpPort,
		Username: cfg.SmtpUser,
		Password: cfg.SmtpPass,
		Sender:   cfg.SmtpSender,
	}, cfg.Settings.ClubName)
	if !cfg.EmailEnabled() {
		log.Println("INFO: SMTP_HOST not set, outgoing mail is disabled.")
	}

	pages := newCMSClient(cfg)

	// --- 5. API server and routes ---
	serverAPI := api.NewServer(cfg, dbService, broker, emailService, pages)
	router := chi.NewRouter()
	serverAPI.RegisterRoutes(router)
	log.Println("INFO: API routes registered.")

	// --- 6. Start the HTTP Server ---
	log.Printf("INFO: Club portal server starting on %s", cfg.ServerAddr)
	if err := http.ListenAndServe(cfg.ServerAddr, router); err != nil {
		log.Fatalf("FATAL: Failed to start server: %v", err)
	}
}

// newCMSClient builds the page client. Pages are cached in Redis when
// REDIS_ADDR is set and reachable, in memory otherwise.
func newCMSClient(cfg *config.Config) *cms.Client {
	if cfg.CmsBaseURL == "" {
		log.Println("INFO: CMS_BASE_URL not set, public pages are disabled.")
		return nil
	}

	var cache cms.Cache = cms.NewMemoryCache()
	if cfg.RedisAddr != "" {
		rc, err := cms.NewRedisCache(context.Background(), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Printf("WARN: Redis at %s unavailable, caching pages in memory: %v", cfg.RedisAddr, err)
		} else {
			cache = rc
			log.Printf("INFO: Caching CMS pages in Redis at %s.", cfg.RedisAddr)
		}
	}
	return cms.NewClient(cfg.CmsBaseURL, cfg.CmsToken, cfg.CmsCacheTTL, cache)
}
