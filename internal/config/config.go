package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Nest Nest `yaml:"nest"`
	HTTP HTTP `yaml:"http"`
	MQTT MQTT `yaml:"mqtt"`
	Log  Log  `yaml:"log"`
}

// Nest holds Nest cloud API and Google auth proxy configuration.
type Nest struct {
	APIBase    string `yaml:"api_base"`
	IssueToken string `yaml:"issue_token"`
	Cookie     string `yaml:"cookie"`
	Region     string `yaml:"region"`
	// Structures restricts which structures are exported. Empty means all.
	Structures []string `yaml:"structures"`
}

// MQTT holds MQTT broker configuration for the Home Assistant bridge.
type MQTT struct {
	Enabled         bool   `yaml:"enabled"`
	Broker          string `yaml:"broker"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	TopicPrefix     string `yaml:"topic_prefix"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	DeviceID        string `yaml:"device_id"`
}

// HTTP holds local HTTP API configuration.
type HTTP struct {
	Addr    string `yaml:"addr"`
	CORSAll bool   `yaml:"cors_allow_all"`
}

// Log holds logging configuration.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() Config {
	return Config{
		Nest: Nest{
			APIBase: "https://home.nest.com",
			Region:  "us",
		},
		HTTP: HTTP{
			Addr: ":8080",
		},
		MQTT: MQTT{
			TopicPrefix:     "nestga",
			DiscoveryPrefix: "homeassistant",
			DeviceID:        "nestga_01",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a YAML file at path, then overlays environment variables.
// If path is empty, only defaults + env vars are used.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
			// file not found is ok, use defaults
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Nest.IssueToken == "" {
		return fmt.Errorf("config: nest.issue_token is required")
	}
	if c.Nest.Cookie == "" {
		return fmt.Errorf("config: nest.cookie is required")
	}
	if c.Nest.Region == "" {
		return fmt.Errorf("config: nest.region is required")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("config: mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

// applyEnv overlays environment variables on top of the config.
// Env vars take precedence over YAML values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("NESTGA_API_BASE"); v != "" {
		cfg.Nest.APIBase = v
	}
	if v := os.Getenv("NESTGA_ISSUE_TOKEN"); v != "" {
		cfg.Nest.IssueToken = v
	}
	if v := os.Getenv("NESTGA_COOKIE"); v != "" {
		cfg.Nest.Cookie = v
	}
	if v := os.Getenv("NESTGA_REGION"); v != "" {
		cfg.Nest.Region = v
	}
	if v := os.Getenv("NESTGA_STRUCTURES"); v != "" {
		cfg.Nest.Structures = splitList(v)
	}
	if v := os.Getenv("NESTGA_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("NESTGA_CORS_ALLOW_ALL"); v != "" {
		cfg.HTTP.CORSAll = parseBool(v)
	}
	if v := os.Getenv("NESTGA_MQTT_ENABLED"); v != "" {
		cfg.MQTT.Enabled = parseBool(v)
	}
	if v := os.Getenv("NESTGA_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("NESTGA_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("NESTGA_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("NESTGA_MQTT_TOPIC_PREFIX"); v != "" {
		cfg.MQTT.TopicPrefix = v
	}
	if v := os.Getenv("NESTGA_MQTT_DISCOVERY_PREFIX"); v != "" {
		cfg.MQTT.DiscoveryPrefix = v
	}
	if v := os.Getenv("NESTGA_MQTT_DEVICE_ID"); v != "" {
		cfg.MQTT.DeviceID = v
	}
	if v := os.Getenv("NESTGA_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("NESTGA_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	b, _ := strconv.ParseBool(s)
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
