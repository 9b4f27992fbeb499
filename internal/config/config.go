package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AaronLay10/SentientRenderer/internal/scenecontrol"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
	StorageNone     = "none"
)

type RendererConfig struct {
	Version  int `yaml:"version"`
	Renderer struct {
		ID             string `yaml:"id"`
		Name           string `yaml:"name"`
		Description    string `yaml:"description"`
		TickIntervalMS int    `yaml:"tick_interval_ms"`
	} `yaml:"renderer"`
	Network struct {
		UIPort int `yaml:"ui_port"`
	} `yaml:"network"`
	MQTT struct {
		TopicPrefix string `yaml:"topic_prefix"`
		ClientID    string `yaml:"client_id"`
	} `yaml:"mqtt"`
	Storage struct {
		Backend    string `yaml:"backend"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"storage"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Scenes   []SceneConfig  `yaml:"scenes"`
}

// InfluxDBConfig configures the state transition time series. The token is
// resolved from SENTIENT_INFLUX_TOKEN, never read from the file.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"-"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"` // seconds
}

// SceneConfig is a scene request applied at startup.
type SceneConfig struct {
	ID          scenecontrol.SceneID               `yaml:"id"`
	State       scenecontrol.SceneState            `yaml:"state"`
	Display     scenecontrol.DisplayHandle         `yaml:"display"`
	Buffer      scenecontrol.OffscreenBufferHandle `yaml:"buffer"`
	RenderOrder int32                              `yaml:"render_order"`
}

// UIPort returns the configured API port, defaulting to 8080 if not set.
func (c *RendererConfig) UIPort() int {
	if c.Network.UIPort == 0 {
		return 8080
	}
	return c.Network.UIPort
}

// TickInterval returns the loop tick interval, defaulting to 16ms.
func (c *RendererConfig) TickInterval() time.Duration {
	if c.Renderer.TickIntervalMS <= 0 {
		return 16 * time.Millisecond
	}
	return time.Duration(c.Renderer.TickIntervalMS) * time.Millisecond
}

// TopicPrefix returns the MQTT topic prefix, defaulting to "sentient/renderer".
func (c *RendererConfig) TopicPrefix() string {
	if c.MQTT.TopicPrefix == "" {
		return "sentient/renderer"
	}
	return c.MQTT.TopicPrefix
}

// ClientID returns the MQTT client id, defaulting to "rendererd-<renderer id>".
func (c *RendererConfig) ClientID() string {
	if c.MQTT.ClientID == "" {
		return "rendererd-" + c.Renderer.ID
	}
	return c.MQTT.ClientID
}

// StorageBackend returns the event store backend, defaulting to postgres.
func (c *RendererConfig) StorageBackend() string {
	if c.Storage.Backend == "" {
		return StoragePostgres
	}
	return c.Storage.Backend
}

// SQLitePath returns the SQLite database path, defaulting to "data/events.db".
func (c *RendererConfig) SQLitePath() string {
	if c.Storage.SQLitePath == "" {
		return "data/events.db"
	}
	return c.Storage.SQLitePath
}

func LoadRendererConfig(path string) (*RendererConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg RendererConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported renderer.yaml version: %d", cfg.Version)
	}
	if cfg.Renderer.ID == "" {
		return nil, fmt.Errorf("renderer.yaml: renderer.id is required")
	}

	switch cfg.StorageBackend() {
	case StoragePostgres, StorageSQLite, StorageNone:
	default:
		return nil, fmt.Errorf("renderer.yaml: unknown storage backend %q", cfg.Storage.Backend)
	}

	for i, s := range cfg.Scenes {
		if s.ID == scenecontrol.InvalidSceneID {
			return nil, fmt.Errorf("renderer.yaml: scenes[%d]: id is required", i)
		}
	}

	return &cfg, nil
}
