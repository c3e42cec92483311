package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"reels/internal/logging"
)

const (
	HTTPClientTimeout = 15 * time.Second
	ImageFetchTimeout = 10 * time.Second
	DefaultPageSize   = 6
	MaxPageSize       = 20
	DefaultOrder      = "DESC"
	DefaultOrderBy    = "date"
	TicksPerSecond    = 10_000_000

	// Realization window is current-WindowRadius .. current+WindowRadius.
	WindowRadius = 1
	// Fetch the next page once the current index is this close to the last loaded item.
	LookaheadThreshold = 3
	CenterThreshold    = 0.75
	RootMargin         = 0.5

	EngineReadyPoll     = 100 * time.Millisecond
	EngineReadyAttempts = 50
	FirstFrameMuteDelay = 100 * time.Millisecond
	ProgressReportEvery = 10 * time.Second

	ScrollStep     = 30 * time.Millisecond
	CardHeight     = 18
	StatusWidth    = 28
	CTATitleLength = 30
)

type Config struct {
	Server   string
	Username string
	Password string
	ParentID string

	PageSize int
	Order    string
	OrderBy  string
	Category string

	WindowRadius       int
	LookaheadThreshold int
	WarmUp             bool

	OTLPEndpoint string
}

// Load builds a Config from defaults overridden by REELS_* environment variables.
func Load() Config {
	pageSize := int(getEnvInt64("REELS_PAGE_SIZE", DefaultPageSize))
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	return Config{
		Server:             strings.TrimRight(getEnv("REELS_SERVER", ""), "/"),
		Username:           getEnv("REELS_USER", ""),
		Password:           getEnv("REELS_PASSWORD", ""),
		ParentID:           getEnv("REELS_PARENT_ID", ""),
		PageSize:           pageSize,
		Order:              strings.ToUpper(getEnv("REELS_ORDER", DefaultOrder)),
		OrderBy:            strings.ToLower(getEnv("REELS_ORDER_BY", DefaultOrderBy)),
		Category:           getEnv("REELS_CATEGORY", ""),
		WindowRadius:       int(getEnvAtLeast("REELS_WINDOW_RADIUS", WindowRadius, 1)),
		LookaheadThreshold: int(getEnvAtLeast("REELS_LOOKAHEAD", LookaheadThreshold, 1)),
		WarmUp:             getEnvBool("REELS_WARMUP", false),
		OTLPEndpoint:       strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

// getEnvAtLeast rejects values below min with a warning; the session treats
// zero as unset, so a zero here would silently turn into the default.
func getEnvAtLeast(key string, fallback, min int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed < min {
		logging.Warn("ignoring config value", "key", key, "value", raw, "min", min, "default", fallback)
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
