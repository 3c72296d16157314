package config

import (
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key    string
	typ    keyType
	env    string
	secret bool
	apply  func(cfg *Config, v any)
	value  func(cfg Config) string
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "ASKDB_SERVER_PORT",
		apply: func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		value: func(cfg Config) string { return strconv.Itoa(cfg.Server.Port) },
	},
	{
		key: "server.token", typ: kString, env: "ASKDB_SERVER_TOKEN", secret: true,
		apply: func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		value: func(cfg Config) string { return cfg.Server.Token },
	},
	{
		key: "llm.base_url", typ: kString, env: "ASKDB_LLM_BASE_URL",
		apply: func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		value: func(cfg Config) string { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.model", typ: kString, env: "ASKDB_LLM_MODEL",
		apply: func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		value: func(cfg Config) string { return cfg.LLM.Model },
	},
	{
		key: "llm.api_key", typ: kString, env: "ASKDB_API_KEY", secret: true,
		apply: func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		value: func(cfg Config) string { return cfg.LLM.APIKey },
	},
	{
		key: "storage.data_dir", typ: kString, env: "ASKDB_DATA_DIR",
		apply: func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		value: func(cfg Config) string { return cfg.Storage.DataDir },
	},
	{
		key: "storage.csv_path", typ: kString, env: "ASKDB_CSV_PATH",
		apply: func(cfg *Config, v any) { cfg.Storage.CSVPath = v.(string) },
		value: func(cfg Config) string { return cfg.Storage.CSVPath },
	},
	{
		key: "github.token", typ: kString, env: "ASKDB_GITHUB_TOKEN", secret: true,
		apply: func(cfg *Config, v any) { cfg.GitHub.Token = v.(string) },
		value: func(cfg Config) string { return cfg.GitHub.Token },
	},
	{
		key: "github.repo", typ: kString, env: "ASKDB_GITHUB_REPO",
		apply: func(cfg *Config, v any) { cfg.GitHub.Repo = v.(string) },
		value: func(cfg Config) string { return cfg.GitHub.Repo },
	},
	{
		key: "agent.max_iterations", typ: kInt, env: "ASKDB_MAX_ITERATIONS",
		apply: func(cfg *Config, v any) { cfg.Agent.MaxIterations = v.(int) },
		value: func(cfg Config) string { return strconv.Itoa(cfg.Agent.MaxIterations) },
	},
	{
		key: "agent.max_rows", typ: kInt, env: "ASKDB_MAX_ROWS",
		apply: func(cfg *Config, v any) { cfg.Agent.MaxRows = v.(int) },
		value: func(cfg Config) string { return strconv.Itoa(cfg.Agent.MaxRows) },
	},
	{
		key: "log.level", typ: kString, env: "ASKDB_LOG_LEVEL",
		apply: func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		value: func(cfg Config) string { return cfg.Log.Level },
	},
}

// KeyValue is one resolved configuration entry for display.
type KeyValue struct {
	Key   string
	Value string
}

// ShowAll returns every non-secret configuration key with its resolved value,
// in declaration order.
func ShowAll(cfg Config) []KeyValue {
	var out []KeyValue
	for _, s := range specs {
		if s.secret {
			continue
		}
		out = append(out, KeyValue{Key: s.key, Value: s.value(cfg)})
	}
	return out
}

// applyBackend overlays non-secret values from the config file.
func applyBackend(cfg *Config, b backend) {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			if v, ok := b.GetString(s.key); ok {
				s.apply(cfg, v)
			}
		case kInt:
			if v, ok := b.GetInt(s.key); ok {
				s.apply(cfg, v)
			}
		}
	}
}

// applyEnvOverrides overlays ASKDB_* environment variables; they take
// precedence over file values on all platforms.
func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		v, ok := os.LookupEnv(s.env)
		if !ok || v == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, v)
		case kInt:
			if n, err := strconv.Atoi(v); err == nil {
				s.apply(cfg, n)
			}
		}
	}
}
