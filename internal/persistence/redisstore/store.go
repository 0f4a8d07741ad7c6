// Package redisstore keeps the risk gate's daily state in Redis so a restart
// within the same trading day does not reset loss and cooldown tracking.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/Shoebbirader4/Upstockbot/internal/gates"
)

// Config holds Redis connection and breaker settings
type Config struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"-"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
	Timeout   time.Duration `yaml:"timeout"`
	Enabled   bool          `yaml:"enabled"`

	// Breaker trips after this many consecutive failures and stays open for BreakerTimeout
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
}

// DefaultConfig returns the defaults used when no redis section is configured
func DefaultConfig() Config {
	return Config{
		Addr:            "localhost:6379",
		KeyPrefix:       "upstockbot:risk:",
		TTL:             36 * time.Hour,
		Timeout:         500 * time.Millisecond,
		BreakerFailures: 3,
		BreakerTimeout:  30 * time.Second,
	}
}

// Validate checks the settings that matter when the store is enabled
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Addr == "" {
		return fmt.Errorf("redis addr is required when redis is enabled")
	}
	if c.TTL <= 0 || c.Timeout <= 0 {
		return fmt.Errorf("redis ttl and timeout must be positive")
	}
	if c.BreakerFailures == 0 {
		return fmt.Errorf("breaker_failures must be at least 1")
	}
	return nil
}

// Store persists gates.RiskState snapshots
type Store struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	config  Config
}

// New connects to Redis and verifies the connection
func New(config Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     4,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewWithClient(client, config), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, config Config) *Store {
	defaults := DefaultConfig()
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaults.KeyPrefix
	}
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.BreakerFailures == 0 {
		config.BreakerFailures = defaults.BreakerFailures
	}
	if config.BreakerTimeout <= 0 {
		config.BreakerTimeout = defaults.BreakerTimeout
	}

	failures := config.BreakerFailures
	settings := gobreaker.Settings{
		Name:        "redis-risk-state",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	}

	return &Store{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker(settings),
		config:  config,
	}
}

// DateKey is the key holding the snapshot of one trading day
func (s *Store) DateKey(date string) string {
	return s.config.KeyPrefix + "state:" + date
}

// LatestKey is the key holding the most recent snapshot
func (s *Store) LatestKey() string {
	return s.config.KeyPrefix + "state:latest"
}

// BreakerState reports the circuit breaker state
func (s *Store) BreakerState() string {
	return s.breaker.State().String()
}

// Save writes the snapshot under its date key and the latest key
func (s *Store) Save(ctx context.Context, state gates.RiskState) error {
	if state.Date == "" {
		return fmt.Errorf("risk state has no date")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal risk state: %w", err)
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()

		if err := s.client.Set(ctx, s.DateKey(state.Date), data, s.config.TTL).Err(); err != nil {
			return nil, fmt.Errorf("redis set: %w", err)
		}
		if err := s.client.Set(ctx, s.LatestKey(), data, s.config.TTL).Err(); err != nil {
			return nil, fmt.Errorf("redis set latest: %w", err)
		}
		return nil, nil
	})
	return err
}

// Load returns the latest snapshot. found is false when none is stored.
func (s *Store) Load(ctx context.Context) (state gates.RiskState, found bool, err error) {
	return s.load(ctx, s.LatestKey())
}

// LoadDate returns the snapshot stored for one trading day
func (s *Store) LoadDate(ctx context.Context, date string) (gates.RiskState, bool, error) {
	return s.load(ctx, s.DateKey(date))
}

func (s *Store) load(ctx context.Context, key string) (gates.RiskState, bool, error) {
	out, err := s.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()

		val, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, nil
			}
			return nil, fmt.Errorf("redis get: %w", err)
		}
		return val, nil
	})
	if err != nil {
		return gates.RiskState{}, false, err
	}
	raw, _ := out.([]byte)
	if raw == nil {
		return gates.RiskState{}, false, nil
	}

	var state gates.RiskState
	if err := json.Unmarshal(raw, &state); err != nil {
		return gates.RiskState{}, false, fmt.Errorf("decode risk state %s: %w", key, err)
	}
	return state, true, nil
}

// RestoreGate loads the latest snapshot into the gate. A missing snapshot
// leaves the gate untouched.
func (s *Store) RestoreGate(ctx context.Context, g *gates.RiskGate) (bool, error) {
	state, found, err := s.Load(ctx)
	if err != nil || !found {
		return false, err
	}
	g.Restore(state)
	log.Info().Str("date", state.Date).Int("daily_trades", state.DailyTrades).Float64("daily_pnl", state.DailyPnL).Msg("Risk state restored")
	return true, nil
}

// SaveGate persists the gate's current state
func (s *Store) SaveGate(ctx context.Context, g *gates.RiskGate) error {
	return s.Save(ctx, g.Snapshot())
}

// Close releases the client
func (s *Store) Close() error {
	return s.client.Close()
}
