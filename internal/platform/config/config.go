package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	PostgresDSN   string
	RedisURL      string
	KafkaBrokers  []string
	KafkaTopic    string
	PolicyPath    string

	// BatchWorkers bounds the ingestion worker pool.
	BatchWorkers int
	// RecordTimeout aborts a stuck match and fails the record instead of
	// stalling its batch.
	RecordTimeout time.Duration
}

// RedisConfig carries connection tuning for the review queue client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("REGISTRO_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	workers := 8
	if raw := os.Getenv("REGISTRO_BATCH_WORKERS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			workers = n
		}
	}

	recordTimeout := 5 * time.Second
	if raw := os.Getenv("REGISTRO_RECORD_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			recordTimeout = d
		}
	}

	var brokers []string
	if raw := os.Getenv("REGISTRO_KAFKA_BROKERS"); raw != "" {
		brokers = splitAndTrim(raw)
	}
	topic := os.Getenv("REGISTRO_KAFKA_TOPIC")
	if topic == "" {
		topic = "registro.audit"
	}

	return Server{
		Addr:          addr,
		JWTSigningKey: os.Getenv("REGISTRO_JWT_SIGNING_KEY"),
		PostgresDSN:   os.Getenv("REGISTRO_POSTGRES_DSN"),
		RedisURL:      os.Getenv("REGISTRO_REDIS_URL"),
		KafkaBrokers:  brokers,
		KafkaTopic:    topic,
		PolicyPath:    os.Getenv("REGISTRO_POLICY_PATH"),
		BatchWorkers:  workers,
		RecordTimeout: recordTimeout,
	}
}

// Redis derives the client config from the server config.
func (s Server) Redis() RedisConfig {
	return RedisConfig{
		URL:          s.RedisURL,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// MatchingPolicy is the operator-tunable matching configuration: field
// weights, decision cut-points, and blocking-key composition. It is loaded
// from a TOML file and passed into constructors; nothing reads it globally.
type MatchingPolicy struct {
	Weights struct {
		Name      float64 `toml:"name"`
		BirthDate float64 `toml:"birth_date"`
		Address   float64 `toml:"address"`
	} `toml:"weights"`
	Thresholds struct {
		Match  float64 `toml:"match"`
		Review float64 `toml:"review"`
	} `toml:"thresholds"`
	Blocking struct {
		CandidateCap int `toml:"candidate_cap"`
	} `toml:"blocking"`
}

// DefaultMatchingPolicy mirrors the shipped policy file.
func DefaultMatchingPolicy() MatchingPolicy {
	var p MatchingPolicy
	p.Weights.Name = 0.4
	p.Weights.BirthDate = 0.3
	p.Weights.Address = 0.3
	p.Thresholds.Match = 0.90
	p.Thresholds.Review = 0.75
	p.Blocking.CandidateCap = 500
	return p
}

// LoadMatchingPolicy reads a TOML policy file, falling back to defaults for
// an empty path.
func LoadMatchingPolicy(path string) (MatchingPolicy, error) {
	policy := DefaultMatchingPolicy()
	if path == "" {
		return policy, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("read matching policy: %w", err)
	}
	if err := toml.Unmarshal(raw, &policy); err != nil {
		return policy, fmt.Errorf("parse matching policy: %w", err)
	}
	if policy.Thresholds.Review >= policy.Thresholds.Match {
		return policy, fmt.Errorf("matching policy: review threshold %.2f must be below match threshold %.2f",
			policy.Thresholds.Review, policy.Thresholds.Match)
	}
	return policy, nil
}

func splitAndTrim(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
