// Package config loads the layered YAML + environment configuration
// described in the external interfaces section of the specification.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ghodss/yaml"
)

// Config is the root configuration object, unmarshaled from YAML via its
// JSON tags (so the same struct drives both yaml.Unmarshal, which goes
// through encoding/json under the hood, and the env overlay below).
type Config struct {
	Application   Application   `json:"application"`
	Database      Database      `json:"database"`
	RateLimiting  RateLimiting  `json:"rate_limiting"`
	Shortener     Shortener     `json:"shortener"`
	Auth          Auth          `json:"auth"`
	BloomSnapshot BloomSnapshot `json:"bloom"`
}

type Application struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	APIKey        string `json:"api_key"`
	Templates     string `json:"templates"`
	BaseURL       string `json:"base_url"`
	TelemetryAddr string `json:"telemetry_addr"`
}

type Database struct {
	Type           string `json:"type"` // sqlite | postgres
	URL            string `json:"url"`
	DatabasePath   string `json:"database_path"`
	CreateIfMissing bool  `json:"create_if_missing"`
	MaxConnections int    `json:"max_connections"`
	MinConnections int    `json:"min_connections"`
}

type RateLimiting struct {
	Enabled           bool    `json:"enabled"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	BurstSize         int     `json:"burst_size"`
}

type SequenceEngine struct {
	BlockSize       uint64 `json:"block_size"`
	PersistInterval uint64 `json:"persist_interval"`
	StatePath       string `json:"state_path"`
}

type Engine struct {
	Kind     string         `json:"kind"` // random | sequence
	Sequence SequenceEngine `json:"sequence"`
}

type Shortener struct {
	Length   int    `json:"length"`
	Alphabet string `json:"alphabet"`
	Engine   Engine `json:"engine"`
}

// Lockout fixes the sign-in lockout policy left open by the specification
// (see SPEC_FULL.md §D.3): both an IP-bound and a user-bound rolling
// window over sign_in_attempts.
type Lockout struct {
	MaxFailedPerIP   int           `json:"max_failed_per_ip"`
	MaxFailedPerUser int           `json:"max_failed_per_user"`
	Window           time.Duration `json:"window"`
}

type Auth struct {
	JWTSecret          string        `json:"jwt_secret"`
	Pepper             string        `json:"pepper"`
	AccessTokenTTL     time.Duration `json:"access_token_ttl"`
	RefreshTokenTTL    time.Duration `json:"refresh_token_ttl"`
	RefreshGraceWindow time.Duration `json:"refresh_grace_window"`
	ChallengeCooldown  time.Duration `json:"challenge_cooldown"`
	ChallengeTTL       time.Duration `json:"challenge_ttl"`
	ChallengeMaxAttempts int         `json:"challenge_max_attempts"`
	SecureCookies      bool          `json:"secure_cookies"`
	Lockout            Lockout       `json:"lockout"`
}

type BloomSnapshot struct {
	EnablePersistence bool          `json:"enable_persistence"`
	Interval          time.Duration `json:"interval"`
	ExpectedItems     uint64        `json:"expected_items"`
	FalsePositiveRate float64       `json:"false_positive_rate"`
}

// Load starts from Default, merges each given YAML file over it in the
// order given (empty paths and missing files are skipped), then applies
// the APP_-prefixed environment-variable overlay and validates. The layer
// files are only those passed in; APP_ENVIRONMENT is not read.
func Load(paths ...string) (*Config, error) {
	cfg := Default()

	for _, p := range paths {
		if p == "" {
			continue
		}
		b, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading config %s: %w", p, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", p, err)
		}
	}

	applyEnvOverlay(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the zero-value configuration, pre-populated with the
// values the specification calls out as defaults.
func Default() *Config {
	return &Config{
		Application: Application{Host: "0.0.0.0", Port: 8080},
		RateLimiting: RateLimiting{
			Enabled:           true,
			RequestsPerSecond: 5,
			BurstSize:         10,
		},
		Shortener: Shortener{
			Length:   7,
			Alphabet: "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz",
			Engine:   Engine{Kind: "random"},
		},
		Auth: Auth{
			AccessTokenTTL:       15 * time.Minute,
			RefreshTokenTTL:      30 * 24 * time.Hour,
			RefreshGraceWindow:   120 * time.Second,
			ChallengeCooldown:    60 * time.Second,
			ChallengeTTL:         time.Hour,
			ChallengeMaxAttempts: 5,
			Lockout: Lockout{
				MaxFailedPerIP:   20,
				MaxFailedPerUser: 5,
				Window:           15 * time.Minute,
			},
		},
		BloomSnapshot: BloomSnapshot{
			EnablePersistence: true,
			Interval:          5 * time.Minute,
			ExpectedItems:     1_000_000,
			FalsePositiveRate: 0.01,
		},
	}
}

// Validate performs the fast checks every field must pass, following the
// table-driven style used elsewhere in the ecosystem for flat config
// structs: collect every violation, report them all at once.
func (c *Config) Validate() error {
	checks := []struct {
		bad    bool
		errMsg string
	}{
		{c.Application.Port <= 0, "application.port must be positive"},
		{c.Database.Type != "sqlite" && c.Database.Type != "postgres", "database.type must be sqlite or postgres"},
		{c.Database.Type == "sqlite" && c.Database.DatabasePath == "", "database.database_path required for sqlite"},
		{c.Database.Type == "postgres" && c.Database.URL == "", "database.url required for postgres"},
		{c.Shortener.Length < 5, "shortener.length must be >= 5"},
		{len(dedupAlphabet(c.Shortener.Alphabet)) < 2, "shortener.alphabet must have >= 2 distinct characters"},
		{c.Shortener.Engine.Kind != "random" && c.Shortener.Engine.Kind != "sequence", "shortener.engine.kind must be random or sequence"},
		{c.Shortener.Engine.Kind == "sequence" && c.Shortener.Engine.Sequence.BlockSize == 0, "shortener.engine.sequence.block_size must be > 0"},
		{c.Auth.JWTSecret == "", "auth.jwt_secret is required"},
		{c.Auth.Pepper == "", "auth.pepper is required"},
	}

	var errs []string
	for _, chk := range checks {
		if chk.bad {
			errs = append(errs, chk.errMsg)
		}
	}
	if len(errs) != 0 {
		return fmt.Errorf("invalid config:\n\t- %s", strings.Join(errs, "\n\t- "))
	}
	return nil
}

func dedupAlphabet(alphabet string) string {
	seen := make(map[rune]struct{}, len(alphabet))
	var out []rune
	for _, r := range alphabet {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return string(out)
}

// applyEnvOverlay walks APP_-prefixed environment variables, splitting on
// "__" for nested keys, and assigns them onto cfg's known fields. Only the
// handful of operationally-relevant leaves are wired; this is not a
// generic reflection-based binder.
func applyEnvOverlay(cfg *Config) {
	setStr := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v == "1" || strings.EqualFold(v, "true")
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setStr("APP_APPLICATION__API_KEY", &cfg.Application.APIKey)
	setStr("APP_APPLICATION__BASE_URL", &cfg.Application.BaseURL)
	setStr("APP_APPLICATION__TELEMETRY_ADDR", &cfg.Application.TelemetryAddr)
	setStr("APP_DATABASE__URL", &cfg.Database.URL)
	setStr("APP_DATABASE__DATABASE_PATH", &cfg.Database.DatabasePath)
	setInt("APP_APPLICATION__PORT", &cfg.Application.Port)
	setStr("APP_AUTH__JWT_SECRET", &cfg.Auth.JWTSecret)
	setStr("APP_AUTH__PEPPER", &cfg.Auth.Pepper)

	if v, ok := os.LookupEnv("BLOOM_SNAPSHOTS"); ok {
		cfg.BloomSnapshot.EnablePersistence = !(v == "0" || strings.EqualFold(v, "false"))
	}
	if v, ok := os.LookupEnv("APP_ENV"); ok && strings.EqualFold(v, "production") {
		cfg.Auth.SecureCookies = true
	}
	setBool("APP_RATE_LIMITING__ENABLED", &cfg.RateLimiting.Enabled)
}
