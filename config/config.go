// Package config loads service configuration from the environment, with a
// .env file overlay for local development.
package config

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every tunable of the service. Integrations whose settings are
// left empty degrade to disabled rather than failing startup.
type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	BaseURL     string `envconfig:"BASE_URL" default:"http://localhost:8080"`
	AppURL      string `envconfig:"APP_URL" default:"http://localhost:5173"`
	AdminAPIKey string `envconfig:"ADMIN_API_KEY"`
	TokenSalt   string `envconfig:"TOKEN_SALT" default:"club-site-dev-salt"`

	// Document store selection: Firestore wins, then Supabase, then local.
	FirebaseProjectID     string `envconfig:"FIREBASE_PROJECT_ID"`
	GoogleCredentialsJSON string `envconfig:"GOOGLE_CREDENTIALS_JSON"`
	SupabaseURL           string `envconfig:"SUPABASE_URL"`
	SupabaseKey           string `envconfig:"SUPABASE_KEY"`
	LocalStorage          string `envconfig:"LOCAL_STORAGE"`

	BrevoAPIKey      string `envconfig:"BREVO_API_KEY"`
	BrevoSenderEmail string `envconfig:"BREVO_SENDER_EMAIL" default:"events@club.local"`
	BrevoSenderName  string `envconfig:"BREVO_SENDER_NAME" default:"Club Events"`

	ResendAPIKey string `envconfig:"RESEND_API_KEY"`
	ResendFrom   string `envconfig:"RESEND_FROM" default:"events@club.local"`

	EmailJSServiceID  string `envconfig:"EMAILJS_SERVICE_ID"`
	EmailJSTemplateID string `envconfig:"EMAILJS_TEMPLATE_ID"`
	EmailJSPublicKey  string `envconfig:"EMAILJS_PUBLIC_KEY"`
	EmailJSPrivateKey string `envconfig:"EMAILJS_PRIVATE_KEY"`

	DiscordWebhookURL string `envconfig:"DISCORD_EVENTS_WEBHOOK_URL"`

	GoogleClientID     string `envconfig:"GOOGLE_OAUTH_CLIENT_ID"`
	GoogleClientSecret string `envconfig:"GOOGLE_OAUTH_CLIENT_SECRET"`
	GoogleRedirectURL  string `envconfig:"GOOGLE_OAUTH_REDIRECT_URL"`

	GalleryBucket   string `envconfig:"GALLERY_BUCKET"`
	GalleryLocalDir string `envconfig:"GALLERY_LOCAL_DIR"`

	ClubName     string `envconfig:"CLUB_NAME" default:"The Club"`
	LogoURL      string `envconfig:"CLUB_LOGO_URL"`
	InstagramURL string `envconfig:"CLUB_INSTAGRAM_URL"`
	DiscordURL   string `envconfig:"CLUB_DISCORD_URL"`
}

// Load reads .env (when present) and then the environment.
func Load(logger *slog.Logger) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		logger.Info("Loaded .env file")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if cfg.GoogleRedirectURL == "" {
		cfg.GoogleRedirectURL = cfg.BaseURL + "/api/auth/google"
	}
	return &cfg, nil
}
