package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config holds the registrar core's configuration.
type Config struct {
	// SCSCFURI identifies this S-CSCF instance in Cx-SAR requests and
	// stored AoR documents.
	SCSCFURI string
	LogLevel string

	// S4Backend selects the AoR backing store: "memory" or "redis".
	S4Backend string
	RedisURL  string
	RedisDB   int

	HSSEndpoint string
	HSSTimeout  time.Duration

	// AnalyticsSink selects the analytics bridge's sink: "log" or "redis".
	AnalyticsSink string

	MaxRetries        int
	NotifyConcurrency int
	NotifyTimeout     time.Duration

	// BindingSweepInterval is how often the in-memory store checks for
	// expired bindings; subscriptions are dropped only when cascaded by
	// such a binding removal, not on their own Expires.
	BindingSweepInterval time.Duration

	// AdminAddr is the listen address for the administrative HTTP API
	// (associated-URI replacement). Empty disables it.
	AdminAddr string
}

// Load loads configuration from command line flags and environment
// variables, environment taking precedence.
func Load() *Config {
	cfg := &Config{
		MaxRetries:           3,
		NotifyConcurrency:    16,
		NotifyTimeout:        5 * time.Second,
		BindingSweepInterval: 10 * time.Second,
		HSSTimeout:           2 * time.Second,
	}

	flag.StringVar(&cfg.SCSCFURI, "scscf-uri", "sip:scscf.example.com", "S-CSCF URI used in stored AoRs and Cx-SAR requests")
	flag.StringVar(&cfg.LogLevel, "loglevel", "debug", "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.S4Backend, "s4-backend", "memory", "AoR backing store (memory, redis)")
	flag.StringVar(&cfg.RedisURL, "redis-url", "redis://localhost:6379/0", "Redis connection URL for the S4 store and analytics sink")
	flag.IntVar(&cfg.RedisDB, "redis-db", 0, "Redis database index")
	flag.StringVar(&cfg.HSSEndpoint, "hss-endpoint", "http://localhost:8080", "HSS REST endpoint base URL")
	flag.StringVar(&cfg.AnalyticsSink, "analytics-sink", "log", "Analytics sink (log, redis)")
	flag.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Max GET-PATCH retries on version conflict")
	flag.IntVar(&cfg.NotifyConcurrency, "notify-concurrency", cfg.NotifyConcurrency, "Max concurrent NOTIFY sends per mutation")
	flag.StringVar(&cfg.AdminAddr, "admin-addr", ":8080", "Listen address for the administrative HTTP API")

	flag.Parse()

	if v := os.Getenv("SCSCF_URI"); v != "" {
		cfg.SCSCFURI = v
	}
	if v := os.Getenv("LOGLEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("S4_BACKEND"); v != "" {
		cfg.S4Backend = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RedisDB = n
		}
	}
	if v := os.Getenv("HSS_ENDPOINT"); v != "" {
		cfg.HSSEndpoint = v
	}
	if v := os.Getenv("ANALYTICS_SINK"); v != "" {
		cfg.AnalyticsSink = v
	}
	if v := os.Getenv("MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetries = n
		}
	}
	if v := os.Getenv("NOTIFY_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NotifyConcurrency = n
		}
	}
	if v := os.Getenv("ADMIN_ADDR"); v != "" {
		cfg.AdminAddr = v
	}

	return cfg
}
