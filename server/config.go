// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultListenAddr is where the debug server listens when the config
	// does not say otherwise.
	DefaultListenAddr = "127.0.0.1:4710"
	// DefaultImportTimeout bounds one import call round trip to the host.
	DefaultImportTimeout = 5 * time.Second
)

// Config is the top-level wasmdbg.yaml configuration.
type Config struct {
	// ListenAddr is the address the debug server listens on.
	ListenAddr string `yaml:"listen_addr"`

	// ImportHandler configures the bridge that forwards the debuggee's
	// import calls to a host process. Leaving Target empty means import
	// calls fault the instance.
	ImportHandler ImportHandlerConfig `yaml:"import_handler"`
}

// ImportHandlerConfig configures the import-call bridge.
type ImportHandlerConfig struct {
	// Target is the host process's gRPC address.
	Target string `yaml:"target"`

	// Timeout bounds one import call round trip, in time.ParseDuration
	// syntax (e.g. "5s"). Defaults to DefaultImportTimeout.
	Timeout string `yaml:"timeout"`

	timeout time.Duration
}

// ImportTimeout returns the parsed import call timeout.
func (c *ImportHandlerConfig) ImportTimeout() time.Duration {
	if c.timeout == 0 {
		return DefaultImportTimeout
	}
	return c.timeout
}

// DefaultConfig returns the configuration used when no wasmdbg.yaml exists.
func DefaultConfig() *Config {
	return &Config{ListenAddr: DefaultListenAddr}
}

// LoadConfig reads and parses a wasmdbg.yaml file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses wasmdbg.yaml content from bytes. The path argument is
// used only for error messages.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.ImportHandler.Timeout != "" {
		timeout, err := time.ParseDuration(cfg.ImportHandler.Timeout)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid import_handler.timeout: %w", path, err)
		}
		if timeout <= 0 {
			return nil, fmt.Errorf("%s: import_handler.timeout must be positive", path)
		}
		cfg.ImportHandler.timeout = timeout
	}
	return &cfg, nil
}

// FindConfig searches for wasmdbg.yaml starting from dir and walking up to
// parent directories. It returns the path if found, or an empty string and
// nil error if no config exists.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	for {
		candidate := filepath.Join(dir, "wasmdbg.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		candidate = filepath.Join(dir, "wasmdbg.yml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}
