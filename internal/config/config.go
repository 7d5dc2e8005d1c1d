package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the YAML configuration.
type Config struct {
	Version int          `yaml:"version"`
	Global  GlobalConfig `yaml:"global"`
	API     APIConfig    `yaml:"api"`
	Notify  NotifyConfig `yaml:"notify"`
	Sources []Source     `yaml:"sources"`
	Rules   []Rule       `yaml:"rules"`
	Sinks   []Sink       `yaml:"sinks"`
}

type GlobalConfig struct {
	DBPath        string            `yaml:"db_path"`
	Confirmations map[string]uint64 `yaml:"confirmations"`
	// NewestFirst tells the aggregator the order snapshots arrive in.
	NewestFirst *bool `yaml:"newest_first"`
}

type APIConfig struct {
	Addr             string `yaml:"addr"`
	LeaderboardLimit int    `yaml:"leaderboard_limit"`
	RecentEvents     int    `yaml:"recent_events"`
}

type NotifyConfig struct {
	SeenMax       int      `yaml:"seen_max"`
	SweepInterval string   `yaml:"sweep_interval"`
	IgnoreCallers []string `yaml:"ignore_callers"`
}

type Source struct {
	ID         string   `yaml:"id"`
	Type       string   `yaml:"type"`
	RPCURL     string   `yaml:"rpc_url"`
	Contract   string   `yaml:"contract"`
	Event      string   `yaml:"event"`
	StartBlock string   `yaml:"start_block"`
	ChunkSize  uint64   `yaml:"chunk_size"`
	ABIDirs    []string `yaml:"abi_dirs"`

	AlgodURL   string `yaml:"algod_url"`
	IndexerURL string `yaml:"indexer_url"`
	AppID      uint64 `yaml:"app_id"`
	StateKey   string `yaml:"state_key"`
	StartRound string `yaml:"start_round"`
	MaxRounds  uint64 `yaml:"max_rounds"`
}

type RateLimit struct {
	Capacity  float64 `yaml:"capacity"`
	PerSecond float64 `yaml:"per_second"`
}

type Rule struct {
	ID     string     `yaml:"id"`
	Source string     `yaml:"source"`
	Where  []string   `yaml:"where"`
	Sinks  []string   `yaml:"sinks"`
	Rate   *RateLimit `yaml:"rate,omitempty"`
}

type Sink struct {
	ID         string `yaml:"id"`
	Type       string `yaml:"type"`
	WebhookURL string `yaml:"webhook_url"`
	Template   string `yaml:"template"`
	URL        string `yaml:"url"`
	Method     string `yaml:"method"`
}

// Defaults applied by Load when the file leaves a field empty.
const (
	DefaultDBPath           = "counter-watch.db"
	DefaultEvent            = "CounterChanged(address,uint256,uint256,string)"
	DefaultChunkSize        = 5000
	DefaultMaxRounds        = 10000
	DefaultStateKey         = "counter"
	DefaultSeenMax          = 100
	DefaultSweepInterval    = time.Minute
	DefaultLeaderboardLimit = 10
	DefaultRecentEvents     = 10
)

var envPattern = regexp.MustCompile(`\${([A-Za-z_][A-Za-z0-9_]*)}`)

// Load reads, interpolates env vars, parses YAML, applies defaults and validates.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return Parse(raw)
}

// Parse interpolates env vars in raw YAML, applies defaults and validates.
func Parse(raw []byte) (*Config, error) {
	interpolated, err := interpolateEnv(string(raw))
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func interpolateEnv(input string) (string, error) {
	missing := []string{}
	out := envPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(dedup(missing), ", "))
	}
	return out, nil
}

func (c *Config) applyDefaults() {
	if c.Global.DBPath == "" {
		c.Global.DBPath = DefaultDBPath
	}
	if c.API.LeaderboardLimit <= 0 {
		c.API.LeaderboardLimit = DefaultLeaderboardLimit
	}
	if c.API.RecentEvents <= 0 {
		c.API.RecentEvents = DefaultRecentEvents
	}
	if c.Notify.SeenMax <= 0 {
		c.Notify.SeenMax = DefaultSeenMax
	}
	for i := range c.Sources {
		s := &c.Sources[i]
		s.Type = strings.ToLower(s.Type)
		switch s.Type {
		case "evm":
			if s.Event == "" {
				s.Event = DefaultEvent
			}
			if s.ChunkSize == 0 {
				s.ChunkSize = DefaultChunkSize
			}
		case "algorand":
			if s.StateKey == "" {
				s.StateKey = DefaultStateKey
			}
			if s.MaxRounds == 0 {
				s.MaxRounds = DefaultMaxRounds
			}
		}
	}
}

// NewestFirst reports the configured snapshot order; chain history is newest
// first unless stated otherwise.
func (c *Config) NewestFirst() bool {
	if c.Global.NewestFirst == nil {
		return true
	}
	return *c.Global.NewestFirst
}

// SweepInterval is how often the notification seen-set is checked for eviction.
func (c *Config) SweepInterval() time.Duration {
	if c.Notify.SweepInterval == "" {
		return DefaultSweepInterval
	}
	d, err := time.ParseDuration(c.Notify.SweepInterval)
	if err != nil || d <= 0 {
		return DefaultSweepInterval
	}
	return d
}

// SourceByID returns the configured source with the given id.
func (c *Config) SourceByID(id string) (Source, bool) {
	for _, s := range c.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return Source{}, false
}

// Validate performs small, direct schema checks.
func (c *Config) Validate() error {
	if c.Version == 0 {
		return errors.New("version is required")
	}
	if len(c.Sources) == 0 {
		return errors.New("at least one source is required")
	}
	if c.Notify.SweepInterval != "" {
		if d, err := time.ParseDuration(c.Notify.SweepInterval); err != nil || d <= 0 {
			return fmt.Errorf("notify.sweep_interval %q is not a positive duration", c.Notify.SweepInterval)
		}
	}

	sourceIDs := map[string]struct{}{}
	for _, s := range c.Sources {
		if _, exists := sourceIDs[s.ID]; exists {
			return fmt.Errorf("duplicate source id: %s", s.ID)
		}
		sourceIDs[s.ID] = struct{}{}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("source %s: %w", s.ID, err)
		}
	}

	sinkIDs := map[string]*Sink{}
	for i := range c.Sinks {
		s := &c.Sinks[i]
		if _, exists := sinkIDs[s.ID]; exists {
			return fmt.Errorf("duplicate sink id: %s", s.ID)
		}
		sinkIDs[s.ID] = s
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sink %s: %w", s.ID, err)
		}
	}

	ruleIDs := map[string]struct{}{}
	for _, r := range c.Rules {
		if _, exists := ruleIDs[r.ID]; exists {
			return fmt.Errorf("duplicate rule id: %s", r.ID)
		}
		ruleIDs[r.ID] = struct{}{}
		if err := r.Validate(sourceIDs, sinkIDs); err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
	}

	return nil
}

func (s *Source) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	switch strings.ToLower(s.Type) {
	case "evm":
		if s.RPCURL == "" {
			return errors.New("rpc_url is required for evm sources")
		}
		if s.Contract == "" {
			return errors.New("contract is required for evm sources")
		}
		if !strings.Contains(s.Event, "(") {
			return fmt.Errorf("event %q must be a signature like CounterChanged(address,uint256,uint256,string)", s.Event)
		}
	case "algorand":
		if s.AlgodURL == "" {
			return errors.New("algod_url is required for algorand sources")
		}
		if s.AppID == 0 {
			return errors.New("app_id is required for algorand sources")
		}
	default:
		return fmt.Errorf("unsupported source type: %s", s.Type)
	}
	return nil
}

func (r *Rule) Validate(sourceIDs map[string]struct{}, sinkIDs map[string]*Sink) error {
	if r.ID == "" {
		return errors.New("id is required")
	}
	if r.Source != "" {
		if _, ok := sourceIDs[r.Source]; !ok {
			return fmt.Errorf("unknown source: %s", r.Source)
		}
	}

	if len(r.Sinks) == 0 {
		return errors.New("at least one sink is required")
	}
	for _, sinkID := range r.Sinks {
		if _, ok := sinkIDs[sinkID]; !ok {
			return fmt.Errorf("unknown sink: %s", sinkID)
		}
	}

	if r.Rate != nil {
		if r.Rate.Capacity < 1 || r.Rate.PerSecond <= 0 {
			return errors.New("rate.capacity must be >= 1 and rate.per_second > 0")
		}
	}

	return nil
}

func (s *Sink) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.Type == "" {
		return errors.New("type is required")
	}

	switch strings.ToLower(s.Type) {
	case "slack", "teams":
		if s.WebhookURL == "" {
			return errors.New("webhook_url is required for slack/teams sinks")
		}
	case "webhook":
		if s.URL == "" {
			return errors.New("url is required for webhook sink")
		}
		if s.Method == "" {
			s.Method = "POST"
		}
	default:
		return fmt.Errorf("unsupported sink type: %s", s.Type)
	}
	return nil
}

func dedup(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
