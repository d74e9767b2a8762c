package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bot and supporting services.
type Config struct {
	BotToken string
	MySQLDSN string
	AdminIDs map[int64]struct{}

	CryptoPayToken   string
	CryptoPayBaseURL string
	CryptoPayTestnet bool
	USDTRate         float64
	GatewayTimeout   time.Duration

	ReconcileInterval time.Duration
	ReconcileBatch    int

	AdminListenAddr string
	AdminUsername   string
	AdminPassword   string

	SupportContact string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AdminIDs:          parseAdminIDs(os.Getenv("ADMIN_IDS")),
		CryptoPayToken:    os.Getenv("CRYPTOPAY_TOKEN"),
		CryptoPayBaseURL:  getEnv("CRYPTOPAY_BASE_URL", ""),
		CryptoPayTestnet:  getBool("CRYPTOPAY_TESTNET", true),
		USDTRate:          getFloat("USDT2RUB_RATE", 80),
		GatewayTimeout:    time.Second * time.Duration(getInt("GATEWAY_TIMEOUT_SECONDS", 15)),
		ReconcileInterval: time.Second * time.Duration(getInt("RECONCILE_INTERVAL_SECONDS", 5)),
		ReconcileBatch:    getInt("RECONCILE_BATCH_SIZE", 10),
		AdminListenAddr:   getEnv("ADMIN_LISTEN_ADDR", ":8080"),
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:     getEnv("ADMIN_PASSWORD", "change-me"),
		SupportContact:    getEnv("SUPPORT_CONTACT", "@support"),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Region:          os.Getenv("S3_REGION"),
		S3AccessKey:       os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:       os.Getenv("S3_SECRET_KEY"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:   os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:    getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:          getEnv("S3_PREFIX", "media"),
	}

	cfg.BotToken = os.Getenv("BOT_TOKEN")
	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")

	if cfg.USDTRate <= 0 {
		cfg.USDTRate = 80
	}
	if cfg.ReconcileBatch <= 0 {
		cfg.ReconcileBatch = 10
	}

	var missing []string
	if cfg.BotToken == "" {
		missing = append(missing, "BOT_TOKEN")
	}
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

// IsAdmin reports whether the given Telegram user id is in the allow-list.
func (c Config) IsAdmin(telegramID int64) bool {
	_, ok := c.AdminIDs[telegramID]
	return ok
}

// S3Configured reports whether enough S3 settings are present to upload media.
func (c Config) S3Configured() bool {
	return c.S3Bucket != "" && c.S3Region != "" && c.S3AccessKey != "" && c.S3SecretKey != "" && c.S3PublicBaseURL != ""
}

func parseAdminIDs(raw string) map[int64]struct{} {
	ids := make(map[int64]struct{})
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids[id] = struct{}{}
	}
	return ids
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// Config may come entirely from the process environment.
	return nil
}
