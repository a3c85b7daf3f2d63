package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/roffe/slcan"
)

// BaseAdapter carries the open state, receive queue and acceptance filter
// shared by the bus implementations.
type BaseAdapter struct {
	name string
	cfg  *Config

	mu     sync.RWMutex
	open   bool
	busCfg slcan.BusConfig
	recv   chan *slcan.CANFrame
	close  chan struct{}
}

func NewBaseAdapter(name string, cfg *Config) *BaseAdapter {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.OnEvent == nil {
		cfg.OnEvent = slcan.LogEvent
	}
	return &BaseAdapter{
		name: name,
		cfg:  cfg,
		recv: make(chan *slcan.CANFrame, 1024),
	}
}

func (base *BaseAdapter) Name() string {
	return base.name
}

// start marks the bus open and returns a channel closed by stop.
func (base *BaseAdapter) start(cfg slcan.BusConfig) (<-chan struct{}, error) {
	base.mu.Lock()
	defer base.mu.Unlock()
	if base.open {
		return nil, slcan.ErrBusOpen
	}
	// frames left from a previous session are not delivered
	for len(base.recv) > 0 {
		<-base.recv
	}
	base.open = true
	base.busCfg = cfg
	base.close = make(chan struct{})
	return base.close, nil
}

func (base *BaseAdapter) stop() error {
	base.mu.Lock()
	defer base.mu.Unlock()
	if !base.open {
		return slcan.ErrBusClosed
	}
	base.open = false
	close(base.close)
	return nil
}

func (base *BaseAdapter) isOpen() bool {
	base.mu.RLock()
	defer base.mu.RUnlock()
	return base.open
}

func (base *BaseAdapter) config() slcan.BusConfig {
	base.mu.RLock()
	defer base.mu.RUnlock()
	return base.busCfg
}

// deliver queues a received frame if it passes the acceptance filter.
func (base *BaseAdapter) deliver(frame *slcan.CANFrame) bool {
	base.mu.RLock()
	open, filter := base.open, base.busCfg.Filter
	base.mu.RUnlock()
	if !open || !filter.Match(frame) {
		return false
	}
	select {
	case base.recv <- frame:
		return true
	default:
		base.SetError(slcan.ErrDroppedFrame)
		return false
	}
}

func (base *BaseAdapter) Receive(ctx context.Context, timeout time.Duration) (*slcan.CANFrame, error) {
	base.mu.RLock()
	open, closed := base.open, base.close
	base.mu.RUnlock()
	if !open {
		return nil, slcan.ErrBusClosed
	}
	select {
	case frame := <-base.recv:
		return frame, nil
	default:
	}
	if timeout <= 0 {
		return nil, slcan.ErrRxTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case frame := <-base.recv:
		return frame, nil
	case <-closed:
		return nil, slcan.ErrBusClosed
	case <-timer.C:
		return nil, slcan.ErrRxTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (base *BaseAdapter) SetError(err error) {
	base.cfg.OnEvent(slcan.Event{Type: slcan.EventTypeError, Details: base.name + ": " + err.Error()})
}

func (base *BaseAdapter) warn(msg string) {
	base.cfg.OnEvent(slcan.Event{Type: slcan.EventTypeWarning, Details: base.name + ": " + msg})
}

func (base *BaseAdapter) info(msg string) {
	base.cfg.OnEvent(slcan.Event{Type: slcan.EventTypeInfo, Details: base.name + ": " + msg})
}

func (base *BaseAdapter) debug(msg string) {
	if base.cfg.Debug {
		base.cfg.OnEvent(slcan.Event{Type: slcan.EventTypeDebug, Details: base.name + ": " + msg})
	}
}
