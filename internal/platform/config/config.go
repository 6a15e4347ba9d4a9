// Package config loads server configuration. An optional YAML file supplies
// base values and KYC_* environment variables override them.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"kycgate/internal/capability"
	"kycgate/internal/verification/models"
	pstrings "kycgate/pkg/platform/strings"
)

// Config holds everything cmd/server needs to wire the service.
type Config struct {
	Addr           string
	Env            string
	LogLevel       string
	RequestTimeout time.Duration

	// DatabaseURL selects PostgreSQL for sessions and the ledger. Empty keeps
	// both in memory.
	DatabaseURL string
	// RedisURL selects the Redis duplicate-session guard.
	RedisURL string
	Redis    RedisConfig

	// ReviewerJWTKey enables bearer authentication on reviewer routes.
	ReviewerJWTKey string
	// SubjectHashKey keys the national ID hash and evidence digests. It must
	// stay stable across restarts for replays to match.
	SubjectHashKey string

	DuplicateWindow time.Duration
	ProviderTimeout time.Duration
	OptionalStages  []models.StageKind
	Thresholds      capability.Thresholds

	// Detectors maps a variant to its remote inference endpoint. Variants
	// without one use the in-process static provider.
	Detectors      map[capability.Variant]string
	DetectorAPIKey string

	KafkaBrokers []string
	KafkaTopic   string
}

// RedisConfig tunes the go-redis pool.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

const (
	DefaultAddr            = ":8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultRequestTimeout  = 30 * time.Second
	DefaultDuplicateWindow = 15 * time.Minute
	DefaultProviderTimeout = 3 * time.Second
	DefaultKafkaTopic      = "kycgate.ledger"

	MinSubjectHashKeyLen = 16
)

var (
	ErrInvalidDuration = errors.New("must be a positive duration")
	ErrInvalidNumber   = errors.New("must be a number")
)

// Load reads the optional file at path, applies the environment, and returns
// the config with every validation problem found.
func Load(path string) (*Config, []error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", path, err)}
		}
	}

	var errs []error
	duration := func(env, key string, def time.Duration) time.Duration {
		d, err := durationOrDefault(env, k.String(key), def)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	cfg := &Config{
		Addr:            stringOrDefault("KYC_ADDR", k.String("addr"), DefaultAddr),
		Env:             stringOrDefault("KYC_ENV", k.String("env"), DefaultEnv),
		LogLevel:        stringOrDefault("KYC_LOG_LEVEL", k.String("log_level"), DefaultLogLevel),
		RequestTimeout:  duration("KYC_REQUEST_TIMEOUT", "request_timeout", DefaultRequestTimeout),
		DatabaseURL:     stringOrDefault("KYC_DATABASE_URL", k.String("database_url"), ""),
		RedisURL:        stringOrDefault("KYC_REDIS_URL", k.String("redis.url"), ""),
		ReviewerJWTKey:  stringOrDefault("KYC_REVIEWER_JWT_KEY", k.String("reviewer_jwt_key"), ""),
		SubjectHashKey:  stringOrDefault("KYC_SUBJECT_HASH_KEY", k.String("subject_hash_key"), ""),
		DuplicateWindow: duration("KYC_DUPLICATE_WINDOW", "duplicate_window", DefaultDuplicateWindow),
		ProviderTimeout: duration("KYC_PROVIDER_TIMEOUT", "provider_timeout", DefaultProviderTimeout),
		DetectorAPIKey:  stringOrDefault("KYC_DETECTOR_API_KEY", k.String("detector_api_key"), ""),
		KafkaBrokers:    listOrDefault("KYC_KAFKA_BROKERS", k.Strings("kafka.brokers")),
		KafkaTopic:      stringOrDefault("KYC_KAFKA_TOPIC", k.String("kafka.topic"), DefaultKafkaTopic),
		Thresholds:      capability.Thresholds{},
		Detectors:       map[capability.Variant]string{},
	}
	cfg.Redis = RedisConfig{
		URL:          cfg.RedisURL,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  duration("KYC_REDIS_DIAL_TIMEOUT", "redis.dial_timeout", 5*time.Second),
		ReadTimeout:  duration("KYC_REDIS_READ_TIMEOUT", "redis.read_timeout", 3*time.Second),
		WriteTimeout: duration("KYC_REDIS_WRITE_TIMEOUT", "redis.write_timeout", 3*time.Second),
	}

	for _, raw := range listOrDefault("KYC_OPTIONAL_STAGES", k.Strings("optional_stages")) {
		kind, err := models.ParseStageKind(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("KYC_OPTIONAL_STAGES: unknown stage %q", raw))
			continue
		}
		cfg.OptionalStages = append(cfg.OptionalStages, kind)
	}

	for _, v := range capability.AllVariants() {
		envPrefix := "KYC_DETECTOR_" + strings.ToUpper(string(v))
		if url := stringOrDefault(envPrefix+"_URL", k.String("detectors."+string(v)+".url"), ""); url != "" {
			cfg.Detectors[v] = url
		}
		raw := stringOrDefault(envPrefix+"_THRESHOLD", k.String("detectors."+string(v)+".threshold"), "")
		if raw == "" {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s_THRESHOLD %w", envPrefix, ErrInvalidNumber))
			continue
		}
		cfg.Thresholds[v] = f
	}

	errs = append(errs, cfg.Validate()...)
	return cfg, errs
}

// Validate checks values that parsed but are out of range.
func (c *Config) Validate() []error {
	var errs []error
	for v, t := range c.Thresholds {
		if t < 0 || t > 1 {
			errs = append(errs, fmt.Errorf("threshold for %s must be within [0,1]", v))
		}
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("KYC_KAFKA_TOPIC is required when brokers are set"))
	}
	if len(c.SubjectHashKey) < MinSubjectHashKeyLen {
		errs = append(errs, fmt.Errorf("KYC_SUBJECT_HASH_KEY must be at least %d bytes", MinSubjectHashKeyLen))
	}
	if c.ProviderTimeout >= c.RequestTimeout {
		errs = append(errs, fmt.Errorf("KYC_PROVIDER_TIMEOUT %s must be below KYC_REQUEST_TIMEOUT %s", c.ProviderTimeout, c.RequestTimeout))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("KYC_LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
	}
	return errs
}

// LogSummary returns the config with secrets masked.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"addr":             c.Addr,
		"env":              c.Env,
		"database_url":     maskURL(c.DatabaseURL),
		"redis_url":        maskURL(c.RedisURL),
		"reviewer_jwt_key": maskSecret(c.ReviewerJWTKey),
		"subject_hash_key": maskSecret(c.SubjectHashKey),
		"duplicate_window": c.DuplicateWindow.String(),
		"provider_timeout": c.ProviderTimeout.String(),
		"detectors":        strconv.Itoa(len(c.Detectors)),
		"kafka_brokers":    strings.Join(c.KafkaBrokers, ","),
	}
}

func stringOrDefault(env, fileVal, def string) string {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return v
	}
	if fileVal != "" {
		return fileVal
	}
	return def
}

func listOrDefault(env string, fileVal []string) []string {
	raw := fileVal
	if v := os.Getenv(env); v != "" {
		raw = strings.Split(v, ",")
	}
	return pstrings.DedupeAndTrim(raw)
}

func durationOrDefault(env, fileVal string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(env))
	if raw == "" {
		raw = fileVal
	}
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def, fmt.Errorf("%s %w", env, ErrInvalidDuration)
	}
	return d, nil
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

// maskURL hides credentials embedded in a connection URL.
func maskURL(s string) string {
	at := strings.LastIndex(s, "@")
	scheme := strings.Index(s, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return s
	}
	return s[:scheme+3] + "****" + s[at:]
}
