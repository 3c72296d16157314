// Package config loads askdb configuration from defaults, a JSON config
// file, and environment variables, in increasing order of precedence.
// Secrets (API keys, tokens) are only ever read from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Server  ServerConfig
	LLM     LLMConfig
	Storage StorageConfig
	GitHub  GitHubConfig
	Agent   AgentConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port  int
	Token string // optional bearer token guarding the REST API
}

type LLMConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

type StorageConfig struct {
	DataDir string
	CSVPath string
}

type GitHubConfig struct {
	Token string
	Repo  string // "owner/name"
}

type AgentConfig struct {
	MaxIterations int
	MaxRows       int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		LLM: LLMConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Agent: AgentConfig{
			MaxIterations: 5,
			MaxRows:       100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "askdb")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "askdb-data"
	}
	return filepath.Join(home, ".local", "share", "askdb")
}

// Load reads configuration from the JSON config file (if present) and the
// ASKDB_* environment variables. Missing secrets are not an error here;
// commands that need the model collaborator call RequireLLM.
func Load() (Config, error) {
	backend, err := newFileBackend(configFilePath())
	if err != nil {
		return Config{}, err
	}
	return loadWith(backend), nil
}

func loadWith(b backend) Config {
	cfg := defaults()
	applyBackend(&cfg, b)
	applyEnvOverrides(&cfg)
	return cfg
}

func configFilePath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "askdb", "config.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("askdb", "config.json")
	}
	return filepath.Join(home, ".config", "askdb", "config.json")
}

// RequireLLM verifies the configuration needed to reach the model
// collaborator is present.
func (c Config) RequireLLM() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("missing required config: API key. Set it via environment variable ASKDB_API_KEY")
	}
	return nil
}
