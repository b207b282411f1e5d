package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type AudioConfig struct {
	// OutputEnabled opens a local playback device for operator monitoring.
	OutputEnabled bool `yaml:"output_enabled"`
}

type EngineConfig struct {
	FrameRate    int     `yaml:"frame_rate"`
	BreathScale  float64 `yaml:"breath_scale"`
	FidgetScale  float64 `yaml:"fidget_scale"`
	SpeakingDamp float64 `yaml:"speaking_damp"`
	Seed         int64   `yaml:"seed"`
}

type BridgeConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	AllowOrigin string `yaml:"allow_origin"`
}

type SessionConfig struct {
	ID      string `yaml:"id"`
	Profile string `yaml:"profile"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Audio       AudioConfig      `yaml:"audio"`
	Engine      EngineConfig     `yaml:"engine"`
	Bridge      BridgeConfig     `yaml:"bridge"`
	Session     SessionConfig    `yaml:"session"`
}

func Default() Config {
	return Config{
		RuntimeName: "mien-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/mien-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Audio: AudioConfig{
			OutputEnabled: false,
		},
		Engine: EngineConfig{
			FrameRate:    60,
			BreathScale:  1.0,
			FidgetScale:  1.0,
			SpeakingDamp: 0.55,
		},
		Bridge: BridgeConfig{
			Enabled:     true,
			Path:        "/ws/rig",
			AllowOrigin: "",
		},
		Session: SessionConfig{
			Profile: "default",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "MIEN_RUNTIME_NAME")
	overrideString(&cfg.Environment, "MIEN_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "MIEN_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "MIEN_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "MIEN_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "MIEN_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "MIEN_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "MIEN_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "MIEN_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "MIEN_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "MIEN_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "MIEN_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "MIEN_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "MIEN_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "MIEN_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "MIEN_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "MIEN_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "MIEN_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "MIEN_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "MIEN_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "MIEN_EVENT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.Audio.OutputEnabled, "MIEN_AUDIO_OUTPUT_ENABLED")
	overrideInt(&cfg.Engine.FrameRate, "MIEN_ENGINE_FRAME_RATE")
	overrideFloat(&cfg.Engine.BreathScale, "MIEN_ENGINE_BREATH_SCALE")
	overrideFloat(&cfg.Engine.FidgetScale, "MIEN_ENGINE_FIDGET_SCALE")
	overrideFloat(&cfg.Engine.SpeakingDamp, "MIEN_ENGINE_SPEAKING_DAMP")
	overrideBool(&cfg.Bridge.Enabled, "MIEN_BRIDGE_ENABLED")
	overrideString(&cfg.Bridge.Path, "MIEN_BRIDGE_PATH")
	overrideString(&cfg.Bridge.AllowOrigin, "MIEN_BRIDGE_ALLOW_ORIGIN")
	overrideString(&cfg.Session.ID, "MIEN_SESSION_ID")
	overrideString(&cfg.Session.Profile, "MIEN_SESSION_PROFILE")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Engine.FrameRate <= 0 || cfg.Engine.FrameRate > 240 {
		return errors.New("engine.frame_rate must be between 1 and 240")
	}
	if cfg.Engine.BreathScale < 0 || cfg.Engine.FidgetScale < 0 {
		return errors.New("engine scales must be >= 0")
	}
	if cfg.Engine.SpeakingDamp < 0 || cfg.Engine.SpeakingDamp > 1 {
		return errors.New("engine.speaking_damp must be in [0,1]")
	}
	if cfg.Bridge.Enabled && !strings.HasPrefix(cfg.Bridge.Path, "/") {
		return errors.New("bridge.path must start with /")
	}
	return nil
}
