package siteauth

import "github.com/caarlos0/env/v11"

// Config holds the identity-backend connection parameters and the serving
// knobs, read from the process environment at startup.
type Config struct {
	// Identity backend connection parameters
	APIKey            string `env:"SITEAUTH_API_KEY,required"`
	AuthDomain        string `env:"SITEAUTH_AUTH_DOMAIN,required"`
	DatabaseURL       string `env:"SITEAUTH_DATABASE_URL"`
	ProjectID         string `env:"SITEAUTH_PROJECT_ID,required"`
	StorageBucket     string `env:"SITEAUTH_STORAGE_BUCKET"`
	MessagingSenderID string `env:"SITEAUTH_MESSAGING_SENDER_ID"`
	AppID             string `env:"SITEAUTH_APP_ID,required"`

	// Serving
	HTTPPort     string `env:"HTTP_PORT" envDefault:"8080"`
	BaseURL      string `env:"SITEAUTH_BASE_URL" envDefault:"http://localhost:8080"`
	JWTSecretKey string `env:"SITEAUTH_JWT_SECRET_KEY"`
	StoragePath  string `env:"SITEAUTH_STORAGE_PATH" envDefault:"./data"`

	// Google sign-in
	GoogleClientID     string `env:"OAUTH2_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"OAUTH2_GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string `env:"OAUTH2_GOOGLE_CALLBACK_URL"`

	// Outbound email
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME"`

	// Sign-in attempt limiting
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

// LoadConfig reads the configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
