/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package config loads and validates raftkv's node configuration: the
client-facing HTTP port, the inter-node Raft port, the metrics port,
how this node joins a cluster, storage location, logging, and the
tick cadence that drives election timeouts and heartbeats.

Configuration loads in three layers, each overriding the last: built-in
defaults, a TOML config file, then environment variables.
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

const (
	EnvPort       = "RAFTKV_PORT"
	EnvRole       = "RAFTKV_ROLE"
	EnvLogLevel   = "RAFTKV_LOG_LEVEL"
	EnvLogJSON    = "RAFTKV_LOG_JSON"
	EnvAuthSecret = "RAFTKV_AUTH_SECRET"
)

// Config is a single node's full configuration.
type Config struct {
	NodeID int `mapstructure:"node_id"`

	Port        int `mapstructure:"port"`         // client-facing HTTP API
	RaftPort    int `mapstructure:"raft_port"`     // inter-node Raft RPC
	MetricsPort int `mapstructure:"metrics_port"`  // Prometheus exporter

	// Role controls how this node joins the cluster at startup:
	// "standalone" runs a single-node cluster (mainly for local dev),
	// "seed" bootstraps a fresh multi-node cluster from Peers, "join"
	// names an already-running member in JoinAddr. JoinAddr is
	// validated and stored but never contacted; the peer list always
	// comes from Peers.
	Role     string   `mapstructure:"role"`
	JoinAddr string   `mapstructure:"join_addr"`
	Peers    []string `mapstructure:"peers"`

	DBPath string `mapstructure:"db_path"`

	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	// AuthSecret signs the HMAC used for the httpapi package's bearer
	// tokens. Empty disables authentication.
	AuthSecret string `mapstructure:"auth_secret"`

	ElectionTimeoutLowMs  int `mapstructure:"election_timeout_low_ms"`
	ElectionTimeoutHighMs int `mapstructure:"election_timeout_high_ms"`
	HeartbeatIntervalMs   int `mapstructure:"heartbeat_interval_ms"`

	// Compression names the codec applied to every inter-node message
	// frame before it goes on the wire: "none", "snappy", "lz4", or "zstd".
	Compression string `mapstructure:"compression"`

	ConfigFile string `mapstructure:"-"`
}

// DefaultConfig returns the configuration a freshly installed node
// starts with.
func DefaultConfig() *Config {
	return &Config{
		Port:                  8888,
		RaftPort:              8889,
		MetricsPort:           9999,
		Role:                  "standalone",
		DBPath:                "raftkv.wal",
		LogLevel:              "info",
		LogJSON:               false,
		ElectionTimeoutLowMs:  150,
		ElectionTimeoutHighMs: 300,
		HeartbeatIntervalMs:   50,
		Compression:           "none",
	}
}

var validRoles = map[string]bool{"standalone": true, "seed": true, "join": true}
var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
var validCompression = map[string]bool{"none": true, "snappy": true, "lz4": true, "zstd": true}

// Validate checks the configuration for internally inconsistent or
// out-of-range values. It does not touch the filesystem or network.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.RaftPort <= 0 || c.RaftPort > 65535 {
		return fmt.Errorf("config: raft_port %d out of range", c.RaftPort)
	}
	if c.Port == c.RaftPort {
		return fmt.Errorf("config: port and raft_port must differ, both are %d", c.Port)
	}
	if !validRoles[c.Role] {
		return fmt.Errorf("config: invalid role %q, want one of standalone/seed/join", c.Role)
	}
	if c.Role == "join" && c.JoinAddr == "" {
		return fmt.Errorf("config: role 'join' requires join_addr")
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path must not be empty")
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("config: invalid log_level %q", c.LogLevel)
	}
	if c.Compression != "" && !validCompression[c.Compression] {
		return fmt.Errorf("config: invalid compression %q", c.Compression)
	}
	if c.ElectionTimeoutLowMs > 0 && c.ElectionTimeoutHighMs > 0 && c.ElectionTimeoutLowMs >= c.ElectionTimeoutHighMs {
		return fmt.Errorf("config: election_timeout_low_ms must be less than election_timeout_high_ms")
	}
	return nil
}

// String renders a human-readable summary of the main fields.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "NodeID: %d\n", c.NodeID)
	fmt.Fprintf(&b, "Role: %s\n", c.Role)
	fmt.Fprintf(&b, "Port: %d\n", c.Port)
	fmt.Fprintf(&b, "RaftPort: %d\n", c.RaftPort)
	fmt.Fprintf(&b, "MetricsPort: %d\n", c.MetricsPort)
	fmt.Fprintf(&b, "DBPath: %s\n", c.DBPath)
	fmt.Fprintf(&b, "LogLevel: %s\n", c.LogLevel)
	fmt.Fprintf(&b, "Compression: %s\n", c.Compression)
	return b.String()
}

// ToTOML renders the configuration as a TOML document suitable for
// SaveToFile/LoadFromFile round-tripping.
func (c *Config) ToTOML() string {
	var b strings.Builder
	fmt.Fprintf(&b, "node_id = %d\n", c.NodeID)
	fmt.Fprintf(&b, "role = %q\n", c.Role)
	fmt.Fprintf(&b, "port = %d\n", c.Port)
	fmt.Fprintf(&b, "raft_port = %d\n", c.RaftPort)
	fmt.Fprintf(&b, "metrics_port = %d\n", c.MetricsPort)
	if c.JoinAddr != "" {
		fmt.Fprintf(&b, "join_addr = %q\n", c.JoinAddr)
	}
	if len(c.Peers) > 0 {
		fmt.Fprintf(&b, "peers = [%s]\n", quoteJoin(c.Peers))
	}
	fmt.Fprintf(&b, "db_path = %q\n", c.DBPath)
	fmt.Fprintf(&b, "log_level = %q\n", c.LogLevel)
	fmt.Fprintf(&b, "log_json = %t\n", c.LogJSON)
	fmt.Fprintf(&b, "compression = %q\n", c.Compression)
	return b.String()
}

func quoteJoin(ss []string) string {
	quoted := make([]string, len(ss))
	for i, s := range ss {
		quoted[i] = strconv.Quote(s)
	}
	return strings.Join(quoted, ", ")
}

// SaveToFile writes the configuration as TOML to path, creating any
// missing parent directories.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(c.ToTOML()), 0o644); err != nil {
		return fmt.Errorf("config: write file: %w", err)
	}
	return nil
}

// Manager owns a live Config plus the file it was loaded from, and
// notifies subscribers on Reload.
type Manager struct {
	mu         sync.RWMutex
	v          *viper.Viper
	cfg        *Config
	configFile string
	callbacks  []func(*Config)
}

// NewManager returns a Manager seeded with DefaultConfig.
func NewManager() *Manager {
	return &Manager{v: viper.New(), cfg: DefaultConfig()}
}

// LoadFromFile reads a TOML config file, merges it over the built-in
// defaults, and replaces the current config with the result,
// recording path for future Reload calls.
func (m *Manager) LoadFromFile(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadFromFileLocked(path)
}

func (m *Manager) loadFromFileLocked(path string) error {
	m.v.SetConfigFile(path)
	m.v.SetConfigType("toml")
	if err := m.v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := m.v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	cfg.ConfigFile = path
	m.configFile = path
	m.cfg = cfg
	return nil
}

// LoadFromEnv overlays environment variables on top of the current
// config. Unset variables leave the existing value untouched.
func (m *Manager) LoadFromEnv() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v := os.Getenv(EnvPort); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			m.cfg.Port = p
		}
	}
	if v := os.Getenv(EnvRole); v != "" {
		m.cfg.Role = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		m.cfg.LogLevel = v
	}
	if v := os.Getenv(EnvLogJSON); v != "" {
		m.cfg.LogJSON = v == "true" || v == "1"
	}
	if v := os.Getenv(EnvAuthSecret); v != "" {
		m.cfg.AuthSecret = v
	}
}

// Get returns the current configuration. Callers must not mutate the
// returned pointer's fields.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// OnReload registers fn to be invoked, with the freshly reloaded
// config, every time Reload succeeds.
func (m *Manager) OnReload(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// Reload re-reads the config file this Manager was last loaded from
// and invokes every registered callback.
func (m *Manager) Reload() error {
	m.mu.Lock()
	path := m.configFile
	if path == "" {
		m.mu.Unlock()
		return fmt.Errorf("config: no config file previously loaded")
	}
	if err := m.loadFromFileLocked(path); err != nil {
		m.mu.Unlock()
		return err
	}
	cfg := m.cfg
	callbacks := append([]func(*Config){}, m.callbacks...)
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb(cfg)
	}
	return nil
}

var (
	globalOnce sync.Once
	globalMgr  *Manager
)

// Global returns the process-wide Manager, creating it on first call.
func Global() *Manager {
	globalOnce.Do(func() {
		globalMgr = NewManager()
	})
	return globalMgr
}
