package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultFacePPEndpoint = "https://api-us.faceplusplus.com/facepp/v3/compare"

type Config struct {
	Oracle     OracleConfig
	Matching   MatchingConfig
	Capture    CaptureConfig
	Database   DatabaseConfig
	Enrollment EnrollmentConfig
	Web        WebConfig
	Session    SessionConfig
	Log        LogConfig
	// SectionsFile overrides the embedded section catalog (optional).
	SectionsFile string
}

// OracleConfig holds the Face++ compare API settings.
type OracleConfig struct {
	Endpoint string
	Key      string
	Secret   string
	Timeout  time.Duration // hard timeout per comparison call

	// AllowMissing starts the server without credentials; every comparison then fails with 503.
	AllowMissing bool
}

// Configured reports whether credentials are present.
func (c *OracleConfig) Configured() bool {
	return c.Key != "" && c.Secret != ""
}

type MatchingConfig struct {
	Threshold float64       // minimum confidence for a match, inclusive (0-100)
	CallDelay time.Duration // pause between successive oracle calls in one scan
}

// CaptureConfig tunes the client-side capture loop.
type CaptureConfig struct {
	Interval     time.Duration
	WarmUp       time.Duration
	Cooldown     time.Duration // wait after an accepted match
	Debounce     time.Duration // same-subject suppression window
	MaxDimension int           // frames are downscaled to fit this size
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// EnrollmentConfig points at an external enrollment database.
// When DatabaseURL is empty the gallery is read from the main PostgreSQL database.
type EnrollmentConfig struct {
	DatabaseURL  string // MariaDB DSN, e.g. enroll:secret@tcp(mariadb:3306)/enrollment
	MaxOpenConns int
}

type WebConfig struct {
	Host           string
	Port           int
	SessionSecret  string
	AllowedOrigins []string // browser origins allowed to call the API
	AllowLocalhost bool     // also allow http(s)://localhost on any port
}

type SessionConfig struct {
	Store    string // postgres, redis or memory
	RedisURL string
}

type LogConfig struct {
	Mode string // dev or prod
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a non-negative float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

// envDuration accepts Go duration strings ("1.2s") or plain milliseconds ("1200").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	if ms, err := strconv.Atoi(s); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

// envList splits a comma-separated environment variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	return &Config{
		Oracle: OracleConfig{
			Endpoint: envString("FACEPP_ENDPOINT", defaultFacePPEndpoint),
			Key:      strings.TrimSpace(os.Getenv("FACEPP_KEY")),
			Secret:   strings.TrimSpace(os.Getenv("FACEPP_SECRET")),
			Timeout:  envDuration("FACEPP_TIMEOUT", 20*time.Second),
		},
		Matching: MatchingConfig{
			Threshold: envFloat("FACEPP_THRESHOLD", 70),
			CallDelay: envDuration("ORACLE_CALL_DELAY", 120*time.Millisecond),
		},
		Capture: CaptureConfig{
			Interval:     envDuration("CAPTURE_INTERVAL", 1200*time.Millisecond),
			WarmUp:       envDuration("CAPTURE_WARMUP", 600*time.Millisecond),
			Cooldown:     envDuration("POST_MATCH_COOLDOWN", 3*time.Second),
			Debounce:     envDuration("SAME_SUBJECT_DEBOUNCE", 10*time.Second),
			MaxDimension: envInt("CAPTURE_MAX_DIMENSION", 1280),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Enrollment: EnrollmentConfig{
			DatabaseURL:  os.Getenv("ENROLLMENT_DATABASE_URL"),
			MaxOpenConns: envInt("ENROLLMENT_MAX_OPEN_CONNS", 5),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			SessionSecret:  os.Getenv("WEB_SESSION_SECRET"),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
			AllowLocalhost: envString("LOG_MODE", "dev") == "dev",
		},
		Session: SessionConfig{
			Store:    strings.ToLower(envString("SESSION_STORE", "postgres")),
			RedisURL: os.Getenv("REDIS_URL"),
		},
		Log: LogConfig{
			Mode: envString("LOG_MODE", "dev"),
		},
		SectionsFile: os.Getenv("SECTIONS_FILE"),
	}
}
