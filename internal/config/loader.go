package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/xeipuuv/gojsonschema"
)

// configSchema validates the shape of the config file before unmarshaling.
const configSchema = `{
	"type": "object",
	"properties": {
		"workspace_dir": {"type": "string"},
		"db_path": {"type": "string"},
		"vector_enabled": {"type": "boolean"},
		"embedding": {
			"type": "object",
			"properties": {
				"provider": {"type": "string", "enum": ["openai", "zhipu"]},
				"api_key": {"type": "string"},
				"base_url": {"type": "string"},
				"model": {"type": "string"},
				"batch_size": {"type": "integer", "minimum": 1},
				"max_retries": {"type": "integer", "minimum": 0},
				"timeout_sec": {"type": "number", "exclusiveMinimum": 0}
			}
		},
		"chunking": {
			"type": "object",
			"properties": {
				"tokens": {"type": "integer", "minimum": 1},
				"overlap": {"type": "integer", "minimum": 0}
			}
		},
		"hybrid_search": {
			"type": "object",
			"properties": {
				"vector_weight": {"type": "number", "minimum": 0},
				"text_weight": {"type": "number", "minimum": 0},
				"candidate_multiplier": {"type": "integer", "minimum": 1},
				"min_score": {"type": "number", "minimum": 0, "maximum": 1}
			}
		},
		"embedding_cache": {
			"type": "object",
			"properties": {
				"enabled": {"type": "boolean"},
				"max_entries": {"type": "integer", "minimum": 0}
			}
		},
		"sync": {
			"type": "object",
			"properties": {
				"watch": {"type": "boolean"},
				"watch_debounce_ms": {"type": "integer", "minimum": 0},
				"interval_minutes": {"type": "integer", "minimum": 0},
				"on_search": {"type": "boolean"}
			}
		},
		"short_term": {
			"type": "object",
			"properties": {
				"enabled": {"type": "boolean"},
				"retention_days": {"type": "integer", "minimum": 0},
				"compaction_strategy": {"type": "string", "enum": ["summarize", "archive", "delete"]}
			}
		},
		"logging": {
			"type": "object",
			"properties": {
				"level": {"type": "string"},
				"file": {"type": "string"},
				"console": {"type": "boolean"},
				"pretty": {"type": "boolean"}
			}
		}
	}
}`

// Loader handles configuration loading
type Loader struct {
	configPath   string
	schemaLoader gojsonschema.JSONLoader
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath:   configPath,
		schemaLoader: gojsonschema.NewStringLoader(configSchema),
	}
}

// Load loads the configuration from file, falling back to defaults when the
// file does not exist. Environment variables prefixed with BITWISE_ override
// file values.
func (l *Loader) Load() (*Config, error) {
	configPath := l.configPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".bitwise", "bitwise.json")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := l.validateSchema(raw); err != nil {
		return nil, fmt.Errorf("config schema validation failed: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.SetEnvPrefix("BITWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDerivedDefaults(cfg)
	return cfg, nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.configPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".bitwise", "bitwise.json")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (l *Loader) validateSchema(raw []byte) error {
	result, err := gojsonschema.Validate(l.schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// applyDerivedDefaults fills in paths derived from the workspace directory.
func applyDerivedDefaults(cfg *Config) {
	if cfg.DBPath == "" && cfg.WorkspaceDir != "" {
		cfg.DBPath = filepath.Join(cfg.WorkspaceDir, "memory.db")
	}
	if cfg.Logging.File == "" && cfg.WorkspaceDir != "" {
		cfg.Logging.File = filepath.Join(cfg.WorkspaceDir, "bitwise.log")
	}
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
