package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv, AppPort, BaseURL string
	DBDSN                    string
	RedisAddr                string
	RedisDB                  int

	JWTAccessSecret  string
	JWTRefreshSecret string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	// RefreshStoreTTL is how long a refresh token row stays valid in the
	// database, independent of the JWT exp claim. The row is the
	// revocation authority.
	RefreshStoreTTL time.Duration
	TokenSweepSpec  string

	GoogleClientID, GoogleClientSecret, GoogleRedirectURL string
	OAuthAllowedDomains                                   []string
	CORSOrigins                                           []string

	GoogleRPS        int
	GoogleBurst      int
	GoogleMaxRetries int

	AttemptLockTTL time.Duration
}

func Load() *Config {
	_ = godotenv.Load()

	c := &Config{
		AppEnv:              get("APP_ENV", "dev"),
		AppPort:             get("APP_PORT", "8080"),
		BaseURL:             get("APP_BASE_URL", "http://localhost:8080"),
		DBDSN:               must("DB_DSN"),
		RedisAddr:           get("REDIS_ADDR", "127.0.0.1:6379"),
		RedisDB:             atoi(get("REDIS_DB", "0")),
		JWTAccessSecret:     must("JWT_ACCESS_SECRET"),
		JWTRefreshSecret:    must("JWT_REFRESH_SECRET"),
		AccessTokenTTL:      mustDuration("JWT_ACCESS_EXPIRY", get("JWT_ACCESS_EXPIRY", "15m")),
		RefreshTokenTTL:     mustDuration("JWT_REFRESH_EXPIRY", get("JWT_REFRESH_EXPIRY", "168h")),
		RefreshStoreTTL:     mustDuration("REFRESH_STORE_TTL", get("REFRESH_STORE_TTL", "168h")),
		TokenSweepSpec:      get("TOKEN_SWEEP_CRON", "@hourly"),
		CORSOrigins:         split(get("CORS_ORIGINS", "http://localhost:5173")),
		GoogleClientID:      must("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:  must("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:   must("GOOGLE_REDIRECT_URL"),
		OAuthAllowedDomains: split(get("OAUTH_ALLOWED_DOMAINS", "")),
		GoogleRPS:           atoi(get("GOOGLE_RPS", "5")),
		GoogleBurst:         atoi(get("GOOGLE_BURST", "5")),
		GoogleMaxRetries:    atoi(get("GOOGLE_MAX_RETRIES", "3")),
		AttemptLockTTL:      mustDuration("ATTEMPT_LOCK_TTL", get("ATTEMPT_LOCK_TTL", "10s")),
	}
	return c
}

func get(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("missing env %s", k)
	}
	return v
}
func atoi(s string) int { i, _ := strconv.Atoi(s); return i }
func mustDuration(k, s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Fatalf("invalid duration for %s: %v", k, err)
	}
	return d
}
func split(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func GetEnv(k, d string) string {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	return v
}
