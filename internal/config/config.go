package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Trickfest/StockfishEmbedded/internal/session"
)

const (
	defaultLimit            = "go movetime 100"
	defaultMaxIterations    = 10
	defaultMoveTimeout      = 10 * time.Second
	defaultGraceTimeout     = 2 * time.Second
	defaultHandshakeTimeout = 5 * time.Second
	defaultPerftDepth       = 5
)

var defaultPositions = []string{"position startpos"}

// Config stores runtime settings loaded from TOML files.
type Config struct {
	Positions           []string
	Limit               string
	Setup               []string
	MaxIterations       int
	MoveTimeout         time.Duration
	GraceTimeout        time.Duration
	HandshakeTimeout    time.Duration
	Delay               time.Duration
	ResyncEachIteration bool
	TimeoutIsFatal      bool
	PerftDepth          int
}

type fileConfig struct {
	Positions           []string `toml:"positions"`
	Limit               *string  `toml:"limit"`
	Setup               []string `toml:"setup"`
	MaxIterations       *int     `toml:"max_iterations"`
	MoveTimeout         *string  `toml:"move_timeout"`
	GraceTimeout        *string  `toml:"grace_timeout"`
	HandshakeTimeout    *string  `toml:"handshake_timeout"`
	Delay               *string  `toml:"delay"`
	ResyncEachIteration *bool    `toml:"resync_each_iteration"`
	TimeoutIsFatal      *bool    `toml:"timeout_is_fatal"`
	PerftDepth          *int     `toml:"perft_depth"`
}

// Load reads config from ~/.sfembed/config.toml and overlays a
// project-local .sfembed/config.toml.
func Load(ctx context.Context) (*Config, error) {
	cfg := defaults()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	workingDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	paths := []string{
		filepath.Join(homeDir, ".sfembed", "config.toml"),
		filepath.Join(workingDir, ".sfembed", "config.toml"),
	}

	for _, path := range paths {
		if err := overlayFromFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	_ = ctx
	return &cfg, nil
}

func defaults() Config {
	return Config{
		Positions:        append([]string(nil), defaultPositions...),
		Limit:            defaultLimit,
		MaxIterations:    defaultMaxIterations,
		MoveTimeout:      defaultMoveTimeout,
		GraceTimeout:     defaultGraceTimeout,
		HandshakeTimeout: defaultHandshakeTimeout,
		PerftDepth:       defaultPerftDepth,
	}
}

func overlayFromFile(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config must not be nil")
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config file %q: %w", path, err)
	}

	var decoded fileConfig
	if _, err := toml.DecodeFile(path, &decoded); err != nil {
		return fmt.Errorf("decode config file %q: %w", path, err)
	}

	if len(decoded.Positions) > 0 {
		cfg.Positions = append([]string(nil), decoded.Positions...)
	}
	if decoded.Limit != nil && strings.TrimSpace(*decoded.Limit) != "" {
		cfg.Limit = strings.TrimSpace(*decoded.Limit)
	}
	if len(decoded.Setup) > 0 {
		cfg.Setup = append([]string(nil), decoded.Setup...)
	}
	if decoded.MaxIterations != nil {
		cfg.MaxIterations = *decoded.MaxIterations
	}
	if decoded.ResyncEachIteration != nil {
		cfg.ResyncEachIteration = *decoded.ResyncEachIteration
	}
	if decoded.TimeoutIsFatal != nil {
		cfg.TimeoutIsFatal = *decoded.TimeoutIsFatal
	}
	if decoded.PerftDepth != nil && *decoded.PerftDepth > 0 {
		cfg.PerftDepth = *decoded.PerftDepth
	}

	return applyDurationOverrides(cfg, decoded, path)
}

func applyDurationOverrides(cfg *Config, decoded fileConfig, path string) error {
	overrides := []struct {
		raw    *string
		key    string
		target *time.Duration
	}{
		{decoded.MoveTimeout, "move_timeout", &cfg.MoveTimeout},
		{decoded.GraceTimeout, "grace_timeout", &cfg.GraceTimeout},
		{decoded.HandshakeTimeout, "handshake_timeout", &cfg.HandshakeTimeout},
		{decoded.Delay, "delay", &cfg.Delay},
	}
	for _, override := range overrides {
		if override.raw == nil {
			continue
		}
		parsed, err := parseDuration(*override.raw, override.key, path)
		if err != nil {
			return err
		}
		*override.target = parsed
	}
	return nil
}

func parseDuration(value, key, path string) (time.Duration, error) {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s in %q: %w", key, path, err)
	}
	return parsed, nil
}

// SessionConfig projects the loaded settings into a session config.
func (c *Config) SessionConfig() session.Config {
	if c == nil {
		return session.Config{}
	}
	return session.Config{
		Positions:           append([]string(nil), c.Positions...),
		Limit:               c.Limit,
		Setup:               append([]string(nil), c.Setup...),
		MaxIterations:       c.MaxIterations,
		MoveTimeout:         c.MoveTimeout,
		GraceTimeout:        c.GraceTimeout,
		HandshakeTimeout:    c.HandshakeTimeout,
		Delay:               c.Delay,
		ResyncEachIteration: c.ResyncEachIteration,
		TimeoutIsFatal:      c.TimeoutIsFatal,
	}
}
