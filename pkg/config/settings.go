package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Report backends.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Settings is the content of an arbor settings file (arbor.yaml).
type Settings struct {
	Parameters  map[string]any `mapstructure:"parameters"`
	Parallelism int            `mapstructure:"parallelism"`
	LogLevel    string         `mapstructure:"log_level"`
	MetricsAddr string         `mapstructure:"metrics_addr"`
	Reports     ReportSettings `mapstructure:"reports"`
	// Commands binds node IDs to external executables run as their bodies.
	Commands map[string]CommandSettings `mapstructure:"commands"`
}

// CommandSettings declares the process run for a node.
type CommandSettings struct {
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
}

// ReportSettings selects where run reports are persisted.
type ReportSettings struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	// Retention keeps only the n most recent reports. Zero keeps all of them.
	Retention int `mapstructure:"retention"`
	// Redact lists regular expressions masked in saved reports.
	Redact []string `mapstructure:"redact"`
	// EncryptionKeyEnv names the environment variable holding the base64 AES-256 key
	// reports are encrypted with. Empty disables encryption.
	EncryptionKeyEnv string `mapstructure:"encryption_key_env"`
	// FallbackKeyEnvs name the variables of retired keys still accepted for reading.
	FallbackKeyEnvs []string      `mapstructure:"fallback_key_envs"`
	Redis           RedisSettings `mapstructure:"redis"`
}

// RedisSettings configures the redis report backend.
type RedisSettings struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// DefaultSettings returns the settings used when no file is present.
func DefaultSettings() Settings {
	return Settings{
		Parallelism: 1,
		LogLevel:    "warn",
		Reports: ReportSettings{
			Backend: BackendFile,
			Dir:     ".arbor/reports",
			Redis: RedisSettings{
				Addr:   "localhost:6379",
				Prefix: "arbor:report:",
			},
		},
	}
}

// ConfigurationParameters flattens the parameters section.
func (s Settings) ConfigurationParameters() Parameters {
	return NewParameters(Flatten(s.Parameters))
}

// Load reads a YAML settings file on top of DefaultSettings.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML settings on top of DefaultSettings.
func Parse(data []byte) (Settings, error) {
	settings := DefaultSettings()

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings: %w", err)
	}
	if raw == nil {
		return settings, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &settings,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return Settings{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return Settings{}, fmt.Errorf("invalid settings: %w", err)
	}

	switch settings.Reports.Backend {
	case BackendNone, BackendMemory, BackendFile, BackendRedis:
	default:
		return Settings{}, fmt.Errorf("invalid settings: unknown reports backend %q", settings.Reports.Backend)
	}
	if settings.Reports.Retention < 0 {
		return Settings{}, fmt.Errorf("invalid settings: reports retention cannot be negative")
	}
	if len(settings.Reports.FallbackKeyEnvs) > 0 && settings.Reports.EncryptionKeyEnv == "" {
		return Settings{}, fmt.Errorf("invalid settings: reports fallback keys require an encryption key")
	}
	for id, c := range settings.Commands {
		if c.Command == "" {
			return Settings{}, fmt.Errorf("invalid settings: command for node %q is empty", id)
		}
	}
	if settings.Parallelism < 1 {
		settings.Parallelism = 1
	}
	return settings, nil
}
