package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

type Config struct {
	Job struct {
		Bots                     uint32 `json:"bots"`
		ProxyMode                string `json:"proxy_mode"`
		TaskTimeout              uint32 `json:"task_timeout"` // milliseconds
		ReloadProxiesWhenAllDead bool   `json:"reload_proxies_when_all_dead"`
		EventBuffer              int    `json:"event_buffer"`
	} `json:"job"`

	Proxies struct {
		DefaultType     string `json:"default_type"`
		MaxUsesPerProxy uint32 `json:"max_uses_per_proxy"`
		ReloadTimer     Timer  `json:"reload_timer"`
		RedisEnabled    bool   `json:"redis_enabled"`
		RedisKey        string `json:"redis_key"`
	} `json:"proxies"`

	Output struct {
		HitsDirectory string   `json:"hits_directory"`
		Statuses      []string `json:"statuses"`

		Database struct {
			Enabled    bool   `json:"enabled"`
			Driver     string `json:"driver"`
			DSN        string `json:"dsn"`
			BatchSize  int    `json:"batch_size"`
			FlushTimer Timer  `json:"flush_timer"`
		} `json:"database"`

		Redis struct {
			Enabled bool   `json:"enabled"`
			URL     string `json:"url"`
			Key     string `json:"key"`
			Channel string `json:"channel"`
		} `json:"redis"`
	} `json:"output"`
}

type Timer struct {
	Days    uint32 `json:"days"`
	Hours   uint32 `json:"hours"`
	Minutes uint32 `json:"minutes"`
	Seconds uint32 `json:"seconds"`
}

func (t Timer) IsZero() bool {
	return t.Days == 0 && t.Hours == 0 && t.Minutes == 0 && t.Seconds == 0
}

const DefaultSettingsFilePath = "data/settings.json"

var (
	//go:embed default_settings.json
	defaultConfig []byte

	configValue atomic.Value
	configMu    sync.Mutex
)

func init() {
	cfg, err := DefaultConfig()
	if err != nil {
		log.Error("Error parsing embedded default settings", "error", err)
		cfg = Config{}
	}
	configValue.Store(cfg)
}

// DefaultConfig returns the embedded default settings.
func DefaultConfig() (Config, error) {
	var cfg Config
	if err := json.Unmarshal(defaultConfig, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ReadSettings loads the settings file at path, writing the embedded defaults
// there first when it does not exist yet.
func ReadSettings(path string) error {
	if path == "" {
		path = DefaultSettingsFilePath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		log.Warn("Settings file not found, creating with default configuration", "path", path)

		if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
			return err
		}
		if err := os.WriteFile(path, defaultConfig, 0o644); err != nil {
			return err
		}
		data = defaultConfig
	}

	newConfig, err := DefaultConfig()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &newConfig); err != nil {
		return err
	}

	if err := applyConfigUpdate(newConfig, configUpdateOptions{source: "file"}); err != nil {
		return err
	}

	log.Debug("Settings file loaded successfully", "path", path)
	return nil
}

func SetConfig(newConfig Config) {
	if err := applyConfigUpdate(newConfig, configUpdateOptions{source: "local"}); err != nil {
		log.Error("Error applying configuration update", "error", err)
	}
}

// SaveConfig stores newConfig and persists it to path.
func SaveConfig(path string, newConfig Config) error {
	return applyConfigUpdate(newConfig, configUpdateOptions{persistPath: path, source: "save"})
}

type configUpdateOptions struct {
	persistPath string
	source      string
}

func applyConfigUpdate(newConfig Config, opts configUpdateOptions) error {
	configMu.Lock()
	defer configMu.Unlock()

	configValue.Store(newConfig)

	var errs []error

	if opts.persistPath != "" {
		data, err := json.MarshalIndent(newConfig, "", "  ")
		if err != nil {
			errs = append(errs, err)
		} else if err := os.WriteFile(opts.persistPath, data, 0o644); err != nil {
			errs = append(errs, err)
		}
	}

	if opts.source != "" {
		log.Debug("Configuration applied", "source", opts.source)
	} else {
		log.Debug("Configuration applied")
	}

	return errors.Join(errs...)
}

func GetConfig() Config {
	return configValue.Load().(Config)
}

// TaskTimeout is the per-task timeout; zero in the settings means 10 seconds.
func (c Config) TaskTimeout() time.Duration {
	if c.Job.TaskTimeout == 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Job.TaskTimeout) * time.Millisecond
}
