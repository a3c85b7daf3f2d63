// Package adapter holds the CAN bus transports an slcan engine can drive.
// Transports register themselves in init and are created by name.
package adapter

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roffe/slcan"
)

var ErrUnknownAdapter = errors.New("unknown adapter")

type Config struct {
	Debug bool
	// Port and PortBaudrate are used by adapters that sit on a serial port.
	Port         string
	PortBaudrate int
	// Interface names the host CAN interface, e.g. can0.
	Interface string
	OnEvent   func(slcan.Event)
}

type AdapterInfo struct {
	Name               string
	Description        string
	RequiresSerialPort bool
	New                func(*Config) (slcan.Bus, error)
}

func (a *AdapterInfo) String() string {
	return fmt.Sprintf("%s | %s, requires serial port: %v", a.Name, a.Description, a.RequiresSerialPort)
}

var adapterMap = make(map[string]*AdapterInfo)

func Register(adapter *AdapterInfo) error {
	key := strings.ToLower(adapter.Name)
	if _, found := adapterMap[key]; found {
		return fmt.Errorf("adapter %s already registered", adapter.Name)
	}
	adapterMap[key] = adapter
	return nil
}

// New creates the named adapter, the name is matched case insensitive.
func New(name string, cfg *Config) (slcan.Bus, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.OnEvent == nil {
		cfg.OnEvent = slcan.LogEvent
	}
	adapter, found := adapterMap[strings.ToLower(name)]
	if !found {
		return nil, fmt.Errorf("%w %q", ErrUnknownAdapter, name)
	}
	return adapter.New(cfg)
}

func ListAdapterNames() []string {
	var out []string
	for _, adapter := range adapterMap {
		out = append(out, adapter.Name)
	}
	sort.Strings(out)
	return out
}

func ListAdapters() []AdapterInfo {
	var out []AdapterInfo
	for _, name := range ListAdapterNames() {
		out = append(out, *adapterMap[strings.ToLower(name)])
	}
	return out
}
