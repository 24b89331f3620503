// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config provides configuration loading for the scribe service.
//
// Configuration lives in a single YAML file, by default
// ~/.codescribe/codescribe.yaml. A commented default file is written on
// first run so users have something to edit rather than a schema to
// guess at. Loading is a process-wide singleton: the file is read and
// validated exactly once, subsequent calls return the cached value.
//
// Thread Safety:
//
//	Get is safe for concurrent use. Reset exists for tests only.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MaxConfigFileSize caps the config file read at 1MB. A larger file is a
// mistake, not a configuration.
const MaxConfigFileSize = 1024 * 1024

// DefaultFileName is the config file name under the config directory.
const DefaultFileName = "codescribe.yaml"

// Backend selects which AI gateway implementation serves a run.
type Backend string

const (
	BackendOllama Backend = "ollama"
	BackendOpenAI Backend = "openai"
)

// Config is the full CodeScribe configuration surface.
type Config struct {
	// Backend selects the gateway implementation.
	Backend Backend `yaml:"backend" validate:"required,oneof=ollama openai"`

	// BaseURL is the gateway endpoint. For ollama this is the daemon
	// address; for openai it overrides the API base (vLLM, LiteLLM and
	// similar OpenAI-compatible servers).
	BaseURL string `yaml:"base_url" validate:"required,url"`

	// APIKeyEnv names the environment variable holding the API key for
	// openai-compatible backends. The key itself never lives in the file.
	APIKeyEnv string `yaml:"api_key_env"`

	// Model is the model identifier sent on every generation request.
	Model string `yaml:"model" validate:"required"`

	// Container configures the local runtime readiness gate.
	Container ContainerConfig `yaml:"container"`

	// WorkDir is where repositories are cloned and processed. Supports
	// ~ expansion.
	WorkDir string `yaml:"work_dir" validate:"required"`

	// Batch configures workload sizing and retry behavior.
	Batch BatchConfig `yaml:"batch"`

	// Build configures the compile gate.
	Build BuildConfig `yaml:"build"`

	// Visibility lists the accessibility levels eligible for processing.
	Visibility []string `yaml:"visibility" validate:"dive,oneof=public internal protected private"`

	// Health configures readiness polling against the gateway.
	Health HealthConfig `yaml:"health"`

	// Log configures structured logging output.
	Log LogConfig `yaml:"log"`
}

// ContainerConfig describes the local container runtime hosting the
// model server, if any. Leave Engine empty when the gateway is a remote
// or already-running service.
type ContainerConfig struct {
	// Engine is the container CLI, typically "podman" or "docker".
	Engine string `yaml:"engine"`

	// Name is the container name to start if not running.
	Name string `yaml:"name"`

	// StopOnCleanup stops the container after the batch finishes.
	StopOnCleanup bool `yaml:"stop_on_cleanup"`
}

// BatchConfig sizes a documentation batch.
type BatchConfig struct {
	// TargetFiles stops the batch after this many files are modified.
	// Zero means process every admitted file.
	TargetFiles int `yaml:"target_files" validate:"gte=0"`

	// MaxRepairAttempts bounds AI repair rounds after a failed build.
	MaxRepairAttempts int `yaml:"max_repair_attempts" validate:"gte=0,lte=10"`

	// RevertOnFailure discards a file's changes when repairs are
	// exhausted instead of leaving them as a soft warning.
	RevertOnFailure bool `yaml:"revert_on_failure"`

	// AdmissionThreshold overrides the undocumented-ratio a file must
	// exceed to be admitted. Zero means the built-in default.
	AdmissionThreshold float64 `yaml:"admission_threshold" validate:"gte=0,lte=1"`
}

// BuildConfig configures the compile gate.
type BuildConfig struct {
	// Enabled turns the build gate on. Without it, edits ship unverified.
	Enabled bool `yaml:"enabled"`

	// SolutionRef is the path passed to the build tool, relative to the
	// repository root. Empty means build the repository root.
	SolutionRef string `yaml:"solution_ref"`
}

// HealthConfig configures gateway readiness polling.
type HealthConfig struct {
	// Attempts is the number of health probes before giving up.
	Attempts int `yaml:"attempts" validate:"gte=1,lte=60"`

	// DelaySeconds is the pause between probes.
	DelaySeconds int `yaml:"delay_seconds" validate:"gte=1,lte=300"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`

	// Dir enables JSON file logging when set.
	Dir string `yaml:"dir"`
}

// HealthDelay returns the configured inter-probe delay as a duration.
func (h HealthConfig) HealthDelay() time.Duration {
	return time.Duration(h.DelaySeconds) * time.Second
}

// APIKey resolves the API key from the configured environment variable.
// Returns empty when no variable is configured or it is unset.
func (c *Config) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

var (
	loadedConfig *Config
	loadErr      error
	loadOnce     sync.Once
)

// Get loads, validates and caches the configuration from path. An empty
// path means the default location. The file is created with commented
// defaults if it does not exist.
func Get(path string) (*Config, error) {
	loadOnce.Do(func() {
		loadedConfig, loadErr = load(path)
	})
	return loadedConfig, loadErr
}

// Reset clears the cached configuration so the next Get reloads. For
// tests only.
func Reset() {
	loadedConfig = nil
	loadErr = nil
	loadOnce = sync.Once{}
}

// Load reads and validates the configuration at path without touching
// the singleton cache. An empty path means the default location.
func Load(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefault(path); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, MaxConfigFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	cfg.WorkDir = expandPath(cfg.WorkDir)
	cfg.Log.Dir = expandPath(cfg.Log.Dir)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// DefaultPath returns the default config file location,
// ~/.codescribe/codescribe.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".codescribe", DefaultFileName), nil
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Backend: BackendOllama,
		BaseURL: "http://localhost:11434",
		Model:   "qwen2.5-coder:14b",
		WorkDir: "~/.codescribe/work",
		Container: ContainerConfig{
			Engine: "podman",
			Name:   "ollama",
		},
		Batch: BatchConfig{
			TargetFiles:       10,
			MaxRepairAttempts: 2,
			RevertOnFailure:   true,
		},
		Build: BuildConfig{Enabled: true},
		Visibility: []string{
			"public", "internal", "protected",
		},
		Health: HealthConfig{Attempts: 5, DelaySeconds: 3},
		Log:    LogConfig{Level: "info", Dir: "~/.codescribe/logs"},
	}
}

const defaultConfigTemplate = `# CodeScribe configuration.
#
# backend: ollama | openai
#   "openai" works against any OpenAI-compatible server (vLLM, LiteLLM).
backend: ollama
base_url: http://localhost:11434
# api_key_env: OPENAI_API_KEY
model: qwen2.5-coder:14b

container:
  engine: podman
  name: ollama
  stop_on_cleanup: false

work_dir: ~/.codescribe/work

batch:
  target_files: 10
  max_repair_attempts: 2
  revert_on_failure: true
  # admission_threshold: 0.5

build:
  enabled: true
  # solution_ref: src/MySolution.sln

visibility:
  - public
  - internal
  - protected

health:
  attempts: 5
  delay_seconds: 3

log:
  level: info
  dir: ~/.codescribe/logs
`

func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(defaultConfigTemplate), 0640)
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
