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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Port != 8888 {
		t.Errorf("expected default port 8888, got %d", cfg.Port)
	}
	if cfg.RaftPort != 8889 {
		t.Errorf("expected default raft_port 8889, got %d", cfg.RaftPort)
	}
	if cfg.MetricsPort != 9999 {
		t.Errorf("expected default metrics_port 9999, got %d", cfg.MetricsPort)
	}
	if cfg.Role != "standalone" {
		t.Errorf("expected default role 'standalone', got '%s'", cfg.Role)
	}
	if cfg.DBPath != "raftkv.wal" {
		t.Errorf("expected default db_path 'raftkv.wal', got '%s'", cfg.DBPath)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log_level 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.LogJSON {
		t.Errorf("expected default log_json false, got %v", cfg.LogJSON)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{"valid standalone config", DefaultConfig(), false},
		{
			"valid seed config",
			&Config{Port: 8888, RaftPort: 8889, MetricsPort: 9999, Role: "seed", DBPath: "test.wal", LogLevel: "info"},
			false,
		},
		{
			"valid join config",
			&Config{Port: 8888, RaftPort: 8889, MetricsPort: 9999, Role: "join", JoinAddr: "localhost:8889", DBPath: "test.wal", LogLevel: "info"},
			false,
		},
		{
			"invalid port zero",
			&Config{Port: 0, RaftPort: 8889, MetricsPort: 9999, Role: "standalone", DBPath: "test.wal", LogLevel: "info"},
			true,
		},
		{
			"invalid port too high",
			&Config{Port: 70000, RaftPort: 8889, MetricsPort: 9999, Role: "standalone", DBPath: "test.wal", LogLevel: "info"},
			true,
		},
		{
			"port conflict",
			&Config{Port: 8888, RaftPort: 8888, MetricsPort: 9999, Role: "standalone", DBPath: "test.wal", LogLevel: "info"},
			true,
		},
		{
			"invalid role",
			&Config{Port: 8888, RaftPort: 8889, MetricsPort: 9999, Role: "bogus", DBPath: "test.wal", LogLevel: "info"},
			true,
		},
		{
			"join without join_addr",
			&Config{Port: 8888, RaftPort: 8889, MetricsPort: 9999, Role: "join", JoinAddr: "", DBPath: "test.wal", LogLevel: "info"},
			true,
		},
		{
			"invalid log level",
			&Config{Port: 8888, RaftPort: 8889, MetricsPort: 9999, Role: "standalone", DBPath: "test.wal", LogLevel: "bogus"},
			true,
		},
		{
			"empty db_path",
			&Config{Port: 8888, RaftPort: 8889, MetricsPort: 9999, Role: "standalone", DBPath: "", LogLevel: "info"},
			true,
		},
		{
			"invalid compression",
			&Config{Port: 8888, RaftPort: 8889, MetricsPort: 9999, Role: "standalone", DBPath: "test.wal", LogLevel: "info", Compression: "bogus"},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "raftkv_config_test_*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configContent := `# test configuration
role = "seed"
port = 9000
raft_port = 9001
metrics_port = 9002
db_path = "/tmp/test.wal"
log_level = "debug"
log_json = true
join_addr = "localhost:9999"
`
	configPath := filepath.Join(tmpDir, "raftkv.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	cfg := mgr.Get()
	if cfg.Role != "seed" {
		t.Errorf("expected role 'seed', got '%s'", cfg.Role)
	}
	if cfg.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Port)
	}
	if cfg.RaftPort != 9001 {
		t.Errorf("expected raft_port 9001, got %d", cfg.RaftPort)
	}
	if cfg.MetricsPort != 9002 {
		t.Errorf("expected metrics_port 9002, got %d", cfg.MetricsPort)
	}
	if cfg.DBPath != "/tmp/test.wal" {
		t.Errorf("expected db_path '/tmp/test.wal', got '%s'", cfg.DBPath)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log_level 'debug', got '%s'", cfg.LogLevel)
	}
	if !cfg.LogJSON {
		t.Errorf("expected log_json true, got %v", cfg.LogJSON)
	}
	if cfg.ConfigFile != configPath {
		t.Errorf("expected ConfigFile '%s', got '%s'", configPath, cfg.ConfigFile)
	}
}

func TestLoadFromEnv(t *testing.T) {
	origPort := os.Getenv(EnvPort)
	origRole := os.Getenv(EnvRole)
	origLogLevel := os.Getenv(EnvLogLevel)
	origLogJSON := os.Getenv(EnvLogJSON)
	origAuthSecret := os.Getenv(EnvAuthSecret)
	defer func() {
		os.Setenv(EnvPort, origPort)
		os.Setenv(EnvRole, origRole)
		os.Setenv(EnvLogLevel, origLogLevel)
		os.Setenv(EnvLogJSON, origLogJSON)
		os.Setenv(EnvAuthSecret, origAuthSecret)
	}()

	os.Setenv(EnvPort, "7777")
	os.Setenv(EnvRole, "seed")
	os.Setenv(EnvLogLevel, "debug")
	os.Setenv(EnvLogJSON, "true")
	os.Setenv(EnvAuthSecret, "testsecret")

	mgr := NewManager()
	mgr.LoadFromEnv()
	cfg := mgr.Get()

	if cfg.Port != 7777 {
		t.Errorf("expected port 7777 from env, got %d", cfg.Port)
	}
	if cfg.Role != "seed" {
		t.Errorf("expected role 'seed' from env, got '%s'", cfg.Role)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log_level 'debug' from env, got '%s'", cfg.LogLevel)
	}
	if !cfg.LogJSON {
		t.Errorf("expected log_json true from env, got %v", cfg.LogJSON)
	}
	if cfg.AuthSecret != "testsecret" {
		t.Errorf("expected auth_secret 'testsecret' from env, got '%s'", cfg.AuthSecret)
	}
}

func TestConfigPrecedence(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "raftkv_config_test_*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configContent := `port = 9000
role = "standalone"
db_path = "test.wal"
log_level = "info"
`
	configPath := filepath.Join(tmpDir, "raftkv.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	origPort := os.Getenv(EnvPort)
	defer os.Setenv(EnvPort, origPort)
	os.Setenv(EnvPort, "7777")

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	mgr.LoadFromEnv()

	if cfg := mgr.Get(); cfg.Port != 7777 {
		t.Errorf("expected port 7777 (env override), got %d", cfg.Port)
	}
}

func TestToTOML(t *testing.T) {
	cfg := &Config{
		Port: 8888, RaftPort: 8889, MetricsPort: 9999,
		Role: "seed", JoinAddr: "localhost:9999",
		DBPath: "/var/lib/raftkv/data.wal", LogLevel: "info", LogJSON: false,
	}
	toml := cfg.ToTOML()

	if !strings.Contains(toml, `role = "seed"`) {
		t.Error("TOML output missing role")
	}
	if !strings.Contains(toml, "port = 8888") {
		t.Error("TOML output missing port")
	}
	if !strings.Contains(toml, "raft_port = 8889") {
		t.Error("TOML output missing raft_port")
	}
	if !strings.Contains(toml, `db_path = "/var/lib/raftkv/data.wal"`) {
		t.Error("TOML output missing db_path")
	}
}

func TestSaveToFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "raftkv_config_test_*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := DefaultConfig()
	cfg.Port = 7777
	cfg.Role = "seed"

	configPath := filepath.Join(tmpDir, "subdir", "raftkv.conf")
	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	loaded := mgr.Get()
	if loaded.Port != 7777 {
		t.Errorf("expected port 7777, got %d", loaded.Port)
	}
	if loaded.Role != "seed" {
		t.Errorf("expected role 'seed', got '%s'", loaded.Role)
	}
}

func TestReload(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "raftkv_config_test_*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configContent := `port = 9000
role = "standalone"
db_path = "test.wal"
log_level = "info"
`
	configPath := filepath.Join(tmpDir, "raftkv.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg := mgr.Get(); cfg.Port != 9000 {
		t.Errorf("expected initial port 9000, got %d", cfg.Port)
	}

	reloadCalled := false
	mgr.OnReload(func(c *Config) { reloadCalled = true })

	newContent := `port = 8000
role = "standalone"
db_path = "test.wal"
log_level = "debug"
`
	if err := os.WriteFile(configPath, []byte(newContent), 0644); err != nil {
		t.Fatalf("failed to update config file: %v", err)
	}
	if err := mgr.Reload(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	cfg := mgr.Get()
	if cfg.Port != 8000 {
		t.Errorf("expected reloaded port 8000, got %d", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected reloaded log_level 'debug', got '%s'", cfg.LogLevel)
	}
	if !reloadCalled {
		t.Error("reload callback was not called")
	}
}

func TestGlobalManager(t *testing.T) {
	mgr := Global()
	if mgr == nil {
		t.Fatal("Global() returned nil")
	}
	if mgr2 := Global(); mgr != mgr2 {
		t.Error("Global() returned different instances")
	}
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	str := cfg.String()

	if !strings.Contains(str, "Role:") {
		t.Error("String() missing Role")
	}
	if !strings.Contains(str, "Port:") {
		t.Error("String() missing Port")
	}
	if !strings.Contains(str, "standalone") {
		t.Error("String() missing role value")
	}
}
