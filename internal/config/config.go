package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global config.toml.
type Config struct {
	DefaultInstance string `toml:"default_instance"`
	Daemon          Daemon `toml:"daemon"`
}

// Daemon holds the tunables of a running wabotd instance.
type Daemon struct {
	HTTPAddr          string   `toml:"http_addr"`
	Endpoint          string   `toml:"endpoint"`
	DedupCapacity     int      `toml:"dedup_capacity"`
	TxLogCapacity     int      `toml:"txlog_capacity"`
	SettleDelay       Duration `toml:"settle_delay"`
	SyncTimeout       Duration `toml:"sync_timeout"`
	SwitchStepDelay   Duration `toml:"switch_step_delay"`
	ReconnectAttempts int      `toml:"reconnect_attempts"`
	ReconnectBackoff  Duration `toml:"reconnect_backoff"`
	BlastInterval     Duration `toml:"blast_interval"`
	AIModel           string   `toml:"ai_model"`
	AITemperature     float32  `toml:"ai_temperature"`
	ResyncSchedule    string   `toml:"resync_schedule"`
}

// Duration is a time.Duration that decodes from TOML strings like "1500ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Defaults returns the daemon settings used when config.toml is silent.
func Defaults() Daemon {
	return Daemon{
		HTTPAddr:          "127.0.0.1:4010",
		Endpoint:          "whatsmeow:",
		DedupCapacity:     300,
		TxLogCapacity:     8,
		SettleDelay:       Duration{3 * time.Second},
		SyncTimeout:       Duration{20 * time.Second},
		SwitchStepDelay:   Duration{1500 * time.Millisecond},
		ReconnectAttempts: 5,
		ReconnectBackoff:  Duration{time.Second},
		BlastInterval:     Duration{time.Second},
		AIModel:           "gemini-2.5-flash",
		AITemperature:     0.4,
	}
}

// WithDefaults fills every zero field of d from Defaults.
func (d Daemon) WithDefaults() Daemon {
	def := Defaults()
	if d.HTTPAddr == "" {
		d.HTTPAddr = def.HTTPAddr
	}
	if d.Endpoint == "" {
		d.Endpoint = def.Endpoint
	}
	if d.DedupCapacity <= 0 {
		d.DedupCapacity = def.DedupCapacity
	}
	if d.TxLogCapacity <= 0 {
		d.TxLogCapacity = def.TxLogCapacity
	}
	if d.SettleDelay.Duration <= 0 {
		d.SettleDelay = def.SettleDelay
	}
	if d.SyncTimeout.Duration <= 0 {
		d.SyncTimeout = def.SyncTimeout
	}
	if d.SwitchStepDelay.Duration <= 0 {
		d.SwitchStepDelay = def.SwitchStepDelay
	}
	if d.ReconnectAttempts <= 0 {
		d.ReconnectAttempts = def.ReconnectAttempts
	}
	if d.ReconnectBackoff.Duration <= 0 {
		d.ReconnectBackoff = def.ReconnectBackoff
	}
	if d.BlastInterval.Duration <= 0 {
		d.BlastInterval = def.BlastInterval
	}
	if d.AIModel == "" {
		d.AIModel = def.AIModel
	}
	if d.AITemperature <= 0 {
		d.AITemperature = def.AITemperature
	}
	return d
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault reads config from path; a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = &Config{}, nil
	}
	if err != nil {
		return nil, err
	}
	cfg.Daemon = cfg.Daemon.WithDefaults()
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
