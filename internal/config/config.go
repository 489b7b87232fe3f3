package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	SweepInterval    time.Duration // interval between scheduled sweeps (default: 1m)
	FlushDebounce    time.Duration // debounce window for durable timestamp writes (default: 1s)
	RetentionMax     time.Duration // sanity bound for persisted timestamps (default: 7 days)
	DiscardBatchSize int           // bounded discard batch size per sweep (default: 5)
	RulesFile        string        // path to an optional seed rules yaml file (empty = disabled)

	// Host (Chrome over the DevTools protocol)
	CDPURL         string        // websocket devtools endpoint (ex: "ws://127.0.0.1:9222")
	CDPProbeBudget time.Duration // per-tab budget for the active-tab visibility probe

	// Redis
	RedisAddr           string        // ex: "localhost:6379"
	RedisUser           string        // optional
	RedisPassword       string        // optional
	RedisDB             int           // Redis DB number
	RedisDT             time.Duration // Redis dial timeout (ex: 5s)
	RedisRT             time.Duration // Redis read timeout (ex: 3s)
	RedisWT             time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait        time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout    time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize       int           // Redis connection pool size
	RedisConnectTimeout time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold  int           // warn after this many attempts
}

func Load() *Config {
	return &Config{
		// Server settings
		ListenPort:      getenv("TABREAPER_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("TABREAPER_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("TABREAPER_LOG_LEVEL", "info"),
		PrettyLog: mustBool("TABREAPER_PRETTY_LOG", true),

		// Sweep engine
		SweepInterval:    mustDuration("TABREAPER_SWEEP_INTERVAL", time.Minute),
		FlushDebounce:    mustDuration("TABREAPER_FLUSH_DEBOUNCE", time.Second),
		RetentionMax:     mustDuration("TABREAPER_RETENTION_MAX", 7*24*time.Hour),
		DiscardBatchSize: getenvInt("TABREAPER_DISCARD_BATCH", 5),
		RulesFile:        getenv("TABREAPER_RULES_FILE", ""),

		// Host
		CDPURL:         requireEnv("TABREAPER_CDP_URL"),
		CDPProbeBudget: mustDuration("TABREAPER_CDP_PROBE_BUDGET", 500*time.Millisecond),

		// Redis settings
		RedisAddr:           requireEnv("TABREAPER_REDIS_ADDR"),
		RedisUser:           getenv("TABREAPER_REDIS_USERNAME", "default"),
		RedisPassword:       getenv("TABREAPER_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("TABREAPER_REDIS_DB", 0),
		RedisDT:             mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:  getenvInt("REDIS_WARN_THRESHOLD", 3),
	}
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
