package producer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	APIBaseURL  string
	APIKey      string
	Interval    time.Duration
	HTTPTimeout time.Duration
	Seed        int64

	// MaxQuestions stops the run after that many questions; 0 runs until
	// the context ends.
	MaxQuestions int

	// IncludeMutations mixes add/update/remove phrasing into the questions,
	// for servers running the permissive policy.
	IncludeMutations bool
}

func DefaultConfig() Config {
	return Config{
		APIBaseURL:  "http://localhost:5000",
		Interval:    5 * time.Second,
		HTTPTimeout: 60 * time.Second,
		Seed:        time.Now().UTC().UnixNano(),
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	steps := []func() error{
		func() error { return applyString(lookup, "SQLCHAT_DEMO_API_URL", &cfg.APIBaseURL) },
		func() error { return applyString(lookup, "SQLCHAT_DEMO_API_KEY", &cfg.APIKey) },
		func() error { return applyDuration(lookup, "SQLCHAT_DEMO_INTERVAL", &cfg.Interval) },
		func() error { return applyDuration(lookup, "SQLCHAT_DEMO_HTTP_TIMEOUT", &cfg.HTTPTimeout) },
		func() error { return applyInt(lookup, "SQLCHAT_DEMO_MAX_QUESTIONS", &cfg.MaxQuestions) },
		func() error { return applyBool(lookup, "SQLCHAT_DEMO_INCLUDE_MUTATIONS", &cfg.IncludeMutations) },
		func() error { return applyInt64(lookup, "SQLCHAT_DEMO_SEED", &cfg.Seed) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return Config{}, err
		}
	}

	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return Config{}, fmt.Errorf("SQLCHAT_DEMO_API_URL is required")
	}
	if cfg.Interval <= 0 {
		return Config{}, fmt.Errorf("SQLCHAT_DEMO_INTERVAL must be > 0")
	}
	if cfg.HTTPTimeout <= 0 {
		return Config{}, fmt.Errorf("SQLCHAT_DEMO_HTTP_TIMEOUT must be > 0")
	}
	if cfg.MaxQuestions < 0 {
		return Config{}, fmt.Errorf("SQLCHAT_DEMO_MAX_QUESTIONS must be >= 0")
	}

	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	return cfg, nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
