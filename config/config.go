// config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	Port             string
	DatabaseURL      string
	StoreBackend     string
	GameServiceToken string
	AllowedOrigins   string
	CustodyAccount   string
	AllowedAssets    []string

	RedisURL       string
	AuthServiceURL string
	SyncServiceURL string

	DepositPollInterval time.Duration
	AuditInterval       time.Duration

	R2 R2Config
}

// R2Config holds the Cloudflare R2 settings for the match archive. The
// archive is disabled when Bucket is empty.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

func (r R2Config) Enabled() bool { return r.Bucket != "" && r.AccountID != "" }

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:             orDefault(getenv("PORT"), "5200"),
		DatabaseURL:      getenv("DATABASE_URL"),
		StoreBackend:     strings.ToLower(orDefault(getenv("STORE_BACKEND"), BackendPostgres)),
		GameServiceToken: getenv("GAME_SERVICE_TOKEN"),
		AllowedOrigins:   splitJoin(orDefault(getenv("ALLOWED_ORIGINS"), "http://localhost:3000")),
		CustodyAccount:   strings.TrimSpace(getenv("CUSTODY_ACCOUNT")),
		AllowedAssets:    splitList(getenv("ALLOWED_ASSETS")),
		RedisURL:         getenv("REDIS_URL"),
		AuthServiceURL:   strings.TrimRight(getenv("AUTH_SERVICE_URL"), "/"),
		SyncServiceURL:   strings.TrimRight(getenv("SYNC_SERVICE_URL"), "/"),
		R2: R2Config{
			AccountID:       getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          getenv("R2_BUCKET_NAME"),
			CDNBaseURL:      getenv("CDN_BASE_URL"),
		},
	}

	var err error
	if cfg.DepositPollInterval, err = duration(getenv, "DEPOSIT_POLL_INTERVAL", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.AuditInterval, err = duration(getenv, "AUDIT_INTERVAL", time.Minute); err != nil {
		return nil, err
	}

	switch cfg.StoreBackend {
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable not set")
		}
	case BackendMemory:
	default:
		return nil, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, cfg.StoreBackend)
	}
	if cfg.GameServiceToken == "" {
		return nil, fmt.Errorf("GAME_SERVICE_TOKEN environment variable not set")
	}
	if cfg.CustodyAccount == "" {
		return nil, fmt.Errorf("CUSTODY_ACCOUNT environment variable not set")
	}
	return cfg, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// splitJoin normalizes a comma list for fiber's CORS config.
func splitJoin(v string) string {
	return strings.Join(splitList(v), ",")
}

func duration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
