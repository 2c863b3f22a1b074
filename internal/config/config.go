package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Team     TeamConfig     `yaml:"team"`
	Protocol ProtocolConfig `yaml:"protocol"`
	Arena    ArenaConfig    `yaml:"arena"`
	NATS     NATSConfig     `yaml:"nats"`
	Store    StoreConfig    `yaml:"store"`
	Web      WebConfig      `yaml:"web"`
	Report   ReportConfig   `yaml:"report"`
	Log      LogConfig      `yaml:"log"`
}

type TeamConfig struct {
	Name    string   `yaml:"name"`
	Members []string `yaml:"members"`
}

// ProtocolConfig holds the coordination timings. All values are in ticks.
type ProtocolConfig struct {
	TieBreakRange    int     `yaml:"tie_break_range"`
	ElectionWindow   int64   `yaml:"election_window"`
	DistanceTimeout  int64   `yaml:"distance_timeout"`
	RotationInterval int64   `yaml:"rotation_interval"`
	PositionInterval int64   `yaml:"position_interval"`
	TargetFreshness  int64   `yaml:"target_freshness"`
	FollowMin        float64 `yaml:"follow_min"`
	FollowMax        float64 `yaml:"follow_max"`
	MailboxSize      int     `yaml:"mailbox_size"`
}

type ArenaConfig struct {
	Width        float64       `yaml:"width"`
	Height       float64       `yaml:"height"`
	TickInterval time.Duration `yaml:"tick_interval"`
	MaxTicks     int64         `yaml:"max_ticks"`
	SensorRange  float64       `yaml:"sensor_range"`
	EngageRange  float64       `yaml:"engage_range"`
	Hostiles     int           `yaml:"hostiles"`
	HostileHP    int           `yaml:"hostile_hp"`
	Attrition    float64       `yaml:"attrition"`
	Seed         int64         `yaml:"seed"`
	Casualties   []Casualty    `yaml:"casualties"`
}

// Casualty schedules the death of a team member at a given tick.
type Casualty struct {
	Agent string `yaml:"agent"`
	Tick  int64  `yaml:"tick"`
}

type NATSConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Auth    string `yaml:"auth"`
}

type ReportConfig struct {
	Cron string `yaml:"cron"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel returns the configured level, or info if it does not parse.
func (l LogConfig) SlogLevel() slog.Level {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lv
}

func defaults() Config {
	return Config{
		Team: TeamConfig{
			Name:    "alpha",
			Members: []string{"alpha-1", "alpha-2", "alpha-3", "alpha-4", "alpha-5"},
		},
		Protocol: ProtocolConfig{
			TieBreakRange:    1000,
			ElectionWindow:   5,
			DistanceTimeout:  20,
			RotationInterval: 300,
			PositionInterval: 5,
			TargetFreshness:  8,
			FollowMin:        50,
			FollowMax:        100,
			MailboxSize:      256,
		},
		Arena: ArenaConfig{
			Width:        800,
			Height:       600,
			TickInterval: 50 * time.Millisecond,
			SensorRange:  400,
			EngageRange:  300,
			Hostiles:     3,
			HostileHP:    120,
			Seed:         1,
		},
		NATS: NATSConfig{
			Host: "127.0.0.1",
			Port: 4222,
		},
		Store: StoreConfig{
			Path: "data/convoy.db",
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		Report: ReportConfig{
			Cron: "* * * * *",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("CONVOY_CONFIG")
	if path == "" {
		path = "config/convoy.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate rejects configs the protocol cannot run with.
func (c *Config) Validate() error {
	if c.Team.Name == "" {
		return fmt.Errorf("team.name is required")
	}
	if len(c.Team.Members) == 0 {
		return fmt.Errorf("team.members is empty")
	}
	seen := make(map[string]bool, len(c.Team.Members))
	for _, m := range c.Team.Members {
		if m == "" {
			return fmt.Errorf("team.members contains an empty id")
		}
		if strings.ContainsAny(m, ".*> \t\n") {
			return fmt.Errorf("team member %q is not a valid subject token", m)
		}
		if seen[m] {
			return fmt.Errorf("duplicate team member %q", m)
		}
		seen[m] = true
	}
	if c.Protocol.TieBreakRange <= 1 {
		return fmt.Errorf("protocol.tie_break_range must be greater than 1")
	}
	if c.Protocol.ElectionWindow <= 0 || c.Protocol.DistanceTimeout <= 0 {
		return fmt.Errorf("protocol bootstrap windows must be positive")
	}
	if c.Protocol.RotationInterval <= 0 || c.Protocol.PositionInterval <= 0 {
		return fmt.Errorf("protocol intervals must be positive")
	}
	if c.Protocol.TargetFreshness <= 0 {
		return fmt.Errorf("protocol.target_freshness must be positive")
	}
	if c.Protocol.MailboxSize <= 0 {
		return fmt.Errorf("protocol.mailbox_size must be positive")
	}
	if c.Protocol.FollowMin >= c.Protocol.FollowMax {
		return fmt.Errorf("protocol.follow_min must be below follow_max")
	}
	if c.Arena.Width <= 0 || c.Arena.Height <= 0 {
		return fmt.Errorf("arena width and height must be positive")
	}
	if c.Arena.Attrition < 0 || c.Arena.Attrition >= 1 {
		return fmt.Errorf("arena.attrition must be in [0, 1)")
	}
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	for _, cs := range c.Arena.Casualties {
		if !seen[cs.Agent] {
			return fmt.Errorf("casualty references unknown member %q", cs.Agent)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CONVOY_TEAM"); v != "" {
		cfg.Team.Name = v
	}
	if v := os.Getenv("CONVOY_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("CONVOY_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("CONVOY_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("CONVOY_WEB_AUTH"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("CONVOY_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("CONVOY_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Arena.Seed = seed
		}
	}
}
