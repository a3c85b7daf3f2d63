// Package config loads the slcand configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roffe/slcan"
	"github.com/roffe/slcan/adapter"
	"github.com/roffe/slcan/pkg/line"
)

type Config struct {
	// Line is the host side the engine is served on.
	Line LineConfig `yaml:"line"`
	// Bus is the CAN transport the engine drives.
	Bus    BusConfig    `yaml:"bus"`
	Device DeviceConfig `yaml:"device"`
	Debug  bool         `yaml:"debug"`
}

type LineConfig struct {
	Port     string `yaml:"port"` // serial port, * prompts for one
	Baudrate int    `yaml:"baudrate"`
	Listen   string `yaml:"listen"` // websocket address, replaces the serial port when set
}

type BusConfig struct {
	Adapter   string `yaml:"adapter"`
	Interface string `yaml:"interface"`
	Port      string `yaml:"port"`
	Baudrate  int    `yaml:"baudrate"`
}

type DeviceConfig struct {
	Version      string        `yaml:"version"`
	Serial       uint16        `yaml:"serial"`
	RxTimeout    time.Duration `yaml:"rx_timeout"`
	TxTimeout    time.Duration `yaml:"tx_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

func Default() *Config {
	return &Config{
		Line: LineConfig{
			Baudrate: line.DefaultBaudrate,
		},
		Bus: BusConfig{
			Adapter:  "Virtual",
			Baudrate: line.DefaultBaudrate,
		},
		Device: DeviceConfig{
			Version:      slcan.DefaultVersion,
			Serial:       slcan.DefaultSerial,
			RxTimeout:    0,
			TxTimeout:    100 * time.Millisecond,
			PollInterval: slcan.DefaultPollInterval,
		},
	}
}

// Load reads a YAML file over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("[config] no config at %s, using defaults", path)
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Line.Baudrate < 0 || c.Bus.Baudrate < 0 {
		return errors.New("baudrate must not be negative")
	}
	if c.Device.RxTimeout < 0 || c.Device.TxTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	if len(c.Device.Version) > slcan.MaxLineLength-3 {
		return fmt.Errorf("version %q is too long", c.Device.Version)
	}
	if c.Device.Serial > 9999 {
		return fmt.Errorf("serial %d does not fit in four digits", c.Device.Serial)
	}
	return nil
}

func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Engine returns the engine settings, events go to onEvent.
func (c *Config) Engine(onEvent func(slcan.Event)) *slcan.Config {
	serial := c.Device.Serial
	return &slcan.Config{
		Version:      c.Device.Version,
		Serial:       &serial,
		RxTimeout:    c.Device.RxTimeout,
		TxTimeout:    c.Device.TxTimeout,
		PollInterval: c.Device.PollInterval,
		Debug:        c.Debug,
		OnEvent:      onEvent,
	}
}

func (c *Config) Adapter(onEvent func(slcan.Event)) *adapter.Config {
	return &adapter.Config{
		Debug:        c.Debug,
		Port:         c.Bus.Port,
		PortBaudrate: c.Bus.Baudrate,
		Interface:    c.Bus.Interface,
		OnEvent:      onEvent,
	}
}
