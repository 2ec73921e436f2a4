package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	CORSOrigins []string

	DatastoreURL  string
	DatastoreRPS  float64
	HTTPTimeout   time.Duration
	SessionDBPath string

	SessionCacheSize int

	CatalogCacheSize int
	CatalogCacheTTL  time.Duration

	RabbitURL      string
	RabbitExchange string

	// Development data store
	StoreHTTPAddr string
	StoreDBPath   string
	StoreDriver   string
	StoreSeed     bool

	LogLevel  string
	LogFormat string
}

const ShutdownGrace = 10 * time.Second

// LoadConfig reads an optional .env file and then the environment.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:    getEnv("STOREFRONT_HTTP_ADDR", ":8080"),
		GRPCAddr:    getEnv("STOREFRONT_GRPC_ADDR", ":50060"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),

		DatastoreURL:  getEnv("DATASTORE_URL", "http://localhost:8386"),
		DatastoreRPS:  getFloat("DATASTORE_RPS", 0),
		HTTPTimeout:   getDuration("HTTP_TIMEOUT", 5*time.Second),
		SessionDBPath: getEnv("SESSION_DB_PATH", "./data/session.db"),

		SessionCacheSize: getInt("SESSION_CACHE_SIZE", 10000),

		CatalogCacheSize: getInt("CATALOG_CACHE_SIZE", 256),
		CatalogCacheTTL:  getDuration("CATALOG_CACHE_TTL", 30*time.Second),

		RabbitURL:      getEnv("RABBIT_URL", ""),
		RabbitExchange: getEnv("RABBIT_EXCHANGE", "storefront_events"),

		StoreHTTPAddr: getEnv("DATASTORE_HTTP_ADDR", ":8386"),
		StoreDBPath:   getEnv("DATASTORE_DB_PATH", "./data/store.db"),
		StoreDriver:   getEnv("DATASTORE_SQL_DRIVER", "sqlite"),
		StoreSeed:     getEnv("DATASTORE_SEED", "true") == "true",

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}
	return cfg
}

// Log prints the loaded config without credentials.
func (c *Config) Log(service string) {
	log.Info().
		Str("service", service).
		Str("http", c.HTTPAddr).
		Str("grpc", c.GRPCAddr).
		Str("datastore", c.DatastoreURL).
		Str("store_addr", c.StoreHTTPAddr).
		Str("store_db", c.StoreDBPath).
		Str("store_driver", c.StoreDriver).
		Bool("rabbit", c.RabbitURL != "").
		Msg("config loaded")
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return def
}

func getFloat(k string, def float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(k), 64); err == nil {
		return f
	}
	return def
}

func getDuration(k string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return d
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
