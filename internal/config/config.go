package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds every environment setting the server reads at startup.
type Config struct {
	Port    string
	BaseURL string
	Env     string

	// Database
	DBDriver   string // "mysql" or "sqlite"
	DBDSN      string
	DBLogLevel string

	// Auth
	JWTSecret         string
	AllowRegistration bool
	CORSOrigins       []string

	// Integrations (empty keys switch the integration off)
	GeminiAPIKey   string
	SendGridAPIKey string

	// Low-stock alerts
	AlertFromEmail     string
	AlertFallbackEmail string

	// Inventory rules
	BundlePriceMultiplier    decimal.Decimal
	DefaultLowStockThreshold int
}

// Load reads .env (if present) and the process environment.
// It reports whether a .env file was found so the caller can log it.
func Load() (*Config, bool) {
	envLoaded := godotenv.Load() == nil

	cfg := &Config{
		Port:    getenvDefault("PORT", "8080"),
		BaseURL: getenvDefault("BASE_URL", "http://localhost:8080"),
		Env:     getenvDefault("APP_ENV", "production"),

		DBDriver:   strings.ToLower(getenvDefault("DB_DRIVER", "mysql")),
		DBDSN:      os.Getenv("DB_DSN"),
		DBLogLevel: getenvDefault("DB_LOG_LEVEL", "warn"),

		JWTSecret:         getenvDefault("JWT_SECRET", "super_secret_key_for_inventory_2026"),
		AllowRegistration: os.Getenv("ALLOW_REGISTRATION") == "true",
		CORSOrigins:       splitList(getenvDefault("CORS_ORIGINS", "http://localhost:5173")),

		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),

		AlertFromEmail:     getenvDefault("ALERT_FROM_EMAIL", "alerts@localhost"),
		AlertFallbackEmail: os.Getenv("ALERT_FALLBACK_EMAIL"),

		BundlePriceMultiplier:    getenvDecimal("BUNDLE_PRICE_MULTIPLIER", decimal.NewFromInt(1)),
		DefaultLowStockThreshold: getenvInt("DEFAULT_LOW_STOCK_THRESHOLD", 100),
	}

	return cfg, envLoaded
}

// IsDevelopment switches logging to the human-readable console encoder.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvDecimal(key string, def decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		return def
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
