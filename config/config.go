package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	pkgerrors "github.com/c360/reqgateway/errors"
	"github.com/c360/reqgateway/gateway"
	"github.com/c360/reqgateway/pkg/security"
)

// Broker holds the connection settings for the gateway's single NATS
// connection, mirroring the natsclient.ClientOption surface it is built
// from.
type Broker struct {
	URL             string `yaml:"url" json:"url"`
	InstanceID      string `yaml:"instance_id" json:"instance_id"`
	MaxReconnects   int    `yaml:"max_reconnects" json:"max_reconnects"`
	ReconnectWaitMS int    `yaml:"reconnect_wait_ms" json:"reconnect_wait_ms"`
	TimeoutMS       int    `yaml:"timeout_ms" json:"timeout_ms"`
	Username        string `yaml:"username,omitempty" json:"username,omitempty"`
	Password        string `yaml:"password,omitempty" json:"password,omitempty"`
	Token           string `yaml:"token,omitempty" json:"token,omitempty"`
}

// ReconnectWait returns the reconnect wait as a time.Duration, defaulting
// to natsclient's own default when unset.
func (b Broker) ReconnectWait() time.Duration {
	if b.ReconnectWaitMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(b.ReconnectWaitMS) * time.Millisecond
}

// Timeout returns the connect timeout as a time.Duration.
func (b Broker) Timeout() time.Duration {
	if b.TimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(b.TimeoutMS) * time.Millisecond
}

func (b Broker) Validate() error {
	if b.URL == "" {
		return pkgerrors.WrapInvalid(fmt.Errorf("url is required"), "Broker", "Validate", "check url")
	}
	if b.InstanceID == "" {
		return pkgerrors.WrapInvalid(fmt.Errorf("instance_id is required"), "Broker", "Validate", "check instance_id")
	}
	return nil
}

// Sweep holds the Terminator's cadence and deadline.
type Sweep struct {
	CadenceMS  int `yaml:"cadence_ms" json:"cadence_ms"`
	DeadlineMS int `yaml:"deadline_ms" json:"deadline_ms"`
	Workers    int `yaml:"workers" json:"workers"`
}

func (s Sweep) Cadence() time.Duration {
	if s.CadenceMS <= 0 {
		return 2000 * time.Millisecond
	}
	return time.Duration(s.CadenceMS) * time.Millisecond
}

func (s Sweep) Deadline() time.Duration {
	if s.DeadlineMS <= 0 {
		return 15000 * time.Millisecond
	}
	return time.Duration(s.DeadlineMS) * time.Millisecond
}

func (s Sweep) Validate() error {
	if s.DeadlineMS != 0 && s.CadenceMS != 0 && s.DeadlineMS < s.CadenceMS {
		return pkgerrors.WrapInvalid(fmt.Errorf("deadline_ms must be >= cadence_ms"), "Sweep", "Validate", "check deadline")
	}
	return nil
}

// Resolver holds the Entity Resolver's depth bound and sub-fetch timeout.
type Resolver struct {
	MaxDepth          int `yaml:"max_depth" json:"max_depth"`
	SubFetchTimeoutMS int `yaml:"sub_fetch_timeout_ms" json:"sub_fetch_timeout_ms"`
}

func (r Resolver) SubFetchTimeout() time.Duration {
	if r.SubFetchTimeoutMS <= 0 {
		return 15 * time.Second
	}
	return time.Duration(r.SubFetchTimeoutMS) * time.Millisecond
}

// Config is reqgateway's complete startup configuration: the broker
// connection, the HTTP listener, sweep timing, the entity route table,
// and TLS settings.
type Config struct {
	Broker     Broker          `yaml:"broker" json:"broker"`
	ListenAddr string          `yaml:"listen_addr" json:"listen_addr"`
	Sweep      Sweep           `yaml:"sweep" json:"sweep"`
	Resolver   Resolver        `yaml:"resolver" json:"resolver"`
	Gateway    gateway.Config  `yaml:"gateway" json:"gateway"`
	Security   security.Config `yaml:"security" json:"security"`
}

// DefaultConfig returns a Config with the spec's default sweep cadence,
// resolver depth, and an empty route table (the caller must add routes).
func DefaultConfig() Config {
	return Config{
		ListenAddr: ":8080",
		Sweep:      Sweep{CadenceMS: 2000, DeadlineMS: 15000, Workers: 4},
		Resolver:   Resolver{MaxDepth: 2, SubFetchTimeoutMS: 15000},
		Gateway:    gateway.DefaultConfig(),
	}
}

// Validate checks that every section of the config is internally
// consistent. It does not touch the network or the filesystem.
func (c Config) Validate() error {
	if err := c.Broker.Validate(); err != nil {
		return err
	}
	if c.ListenAddr == "" {
		return pkgerrors.WrapInvalid(fmt.Errorf("listen_addr is required"), "Config", "Validate", "check listen_addr")
	}
	if err := c.Sweep.Validate(); err != nil {
		return err
	}
	if c.Resolver.MaxDepth < 0 {
		return pkgerrors.WrapInvalid(fmt.Errorf("resolver.max_depth must be >= 0"), "Config", "Validate", "check resolver depth")
	}
	if err := c.Gateway.Validate(); err != nil {
		return err
	}
	return nil
}

// LoadFile reads and parses a YAML config file, then validates it.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, pkgerrors.WrapFatal(err, "Config", "LoadFile", "read file")
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, pkgerrors.WrapInvalid(err, "Config", "LoadFile", "parse yaml")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SafeConfig is a concurrency-safe holder for a Config, allowing readers
// to fetch an independent snapshot while an update swaps the value under
// lock. Grounded on the teacher's config.SafeConfig: reads clone through a
// JSON round trip so a caller can never observe or mutate the live value.
type SafeConfig struct {
	mu  sync.RWMutex
	cfg Config
}

// NewSafeConfig wraps an already-validated Config.
func NewSafeConfig(cfg Config) *SafeConfig {
	return &SafeConfig{cfg: cfg}
}

// Get returns a deep copy of the current config.
func (s *SafeConfig) Get() (Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneConfig(s.cfg)
}

// Update validates cfg and, if valid, swaps it in atomically.
func (s *SafeConfig) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cloned, err := cloneConfig(cfg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cloned
	s.mu.Unlock()
	return nil
}

func cloneConfig(cfg Config) (Config, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return Config{}, pkgerrors.WrapFatal(err, "SafeConfig", "clone", "marshal config")
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		return Config{}, pkgerrors.WrapFatal(err, "SafeConfig", "clone", "unmarshal config")
	}
	return clone, nil
}
