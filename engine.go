package slcan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultVersion      = "1"
	DefaultSerial       = 2208
	DefaultPollInterval = 5 * time.Millisecond
	// DefaultRelayWait bounds each receive of the relay goroutine in Run.
	DefaultRelayWait = 50 * time.Millisecond
)

type Config struct {
	// Version is reported by the V command, without the V.
	Version string
	// Serial is reported by the N command as four BCD digits. Nil reports
	// DefaultSerial, zero is a valid serial.
	Serial *uint16
	// RxTimeout bounds the bus receive of each Poll. Zero polls the bus
	// without waiting.
	RxTimeout time.Duration
	// TxTimeout bounds how long a send command waits for the bus.
	TxTimeout time.Duration
	// PollInterval is how often Run checks a line that cannot notify.
	PollInterval time.Duration
	Debug        bool
	// Clock is used for frame timestamps.
	Clock   func() time.Time
	OnEvent func(Event)
}

func (c *Config) withDefaults() *Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.Version == "" {
		out.Version = DefaultVersion
	}
	if out.Serial == nil {
		serial := uint16(DefaultSerial)
		out.Serial = &serial
	}
	if out.PollInterval <= 0 {
		out.PollInterval = DefaultPollInterval
	}
	if out.Clock == nil {
		out.Clock = time.Now
	}
	if out.OnEvent == nil {
		out.OnEvent = LogEvent
	}
	return &out
}

func (c *Config) debug(msg string) {
	c.OnEvent(Event{Type: EventTypeDebug, Details: msg})
}

func (c *Config) error(err error) {
	c.OnEvent(Event{Type: EventTypeError, Details: err.Error()})
}

// Engine ties a line, a bus and the protocol state together.
type Engine struct {
	cfg    *Config
	line   Line
	bus    Bus
	framer LineFramer
	disp   *Dispatcher
	stats  counters
	start  time.Time
	outBuf []byte
}

func New(line Line, bus Bus, cfg *Config) *Engine {
	e := &Engine{
		cfg:    cfg.withDefaults(),
		line:   line,
		bus:    bus,
		outBuf: make([]byte, 0, 64),
	}
	e.start = e.cfg.Clock()
	e.disp = newDispatcher(bus, line, e.cfg, &e.stats)
	return e
}

// Session returns the protocol state. It must not be called concurrently
// with Poll or Run.
func (e *Engine) Session() Session {
	return e.disp.Session()
}

func (e *Engine) Stats() Stats {
	return e.stats.snapshot()
}

// Poll runs one cycle: every byte the line has available goes through the
// framer and dispatcher, then the bus gets one receive attempt bounded by
// RxTimeout and a received frame is relayed to the line.
func (e *Engine) Poll(ctx context.Context) error {
	if err := e.drainLine(ctx); err != nil {
		return err
	}
	frame, err := e.bus.Receive(ctx, e.cfg.RxTimeout)
	if err != nil {
		if errors.Is(err, ErrRxTimeout) || errors.Is(err, ErrBusClosed) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.stats.errors.Add(1)
		e.cfg.error(&BusError{Op: "receive", Err: err})
		return nil
	}
	e.relay(frame)
	return nil
}

// busFrame is a received frame tagged with the close count at receive time.
type busFrame struct {
	frame  *CANFrame
	closes uint64
}

// Run serves the line until ctx is cancelled or the line fails. Bus receive
// runs on its own goroutine so a quiet bus never delays command handling.
func (e *Engine) Run(ctx context.Context) error {
	frames := make(chan busFrame, 128)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.receiveLoop(gctx, frames)
	})
	g.Go(func() error {
		return e.serve(gctx, frames)
	})
	err := g.Wait()
	if e.disp.session.Open {
		e.disp.session.Open = false
		if cerr := e.bus.Close(); cerr != nil {
			e.cfg.error(&BusError{Op: "close", Err: cerr})
		}
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (e *Engine) receiveLoop(ctx context.Context, frames chan<- busFrame) error {
	wait := e.cfg.RxTimeout
	if wait <= 0 {
		wait = DefaultRelayWait
	}
	for ctx.Err() == nil {
		closes := e.disp.closes.Load()
		frame, err := e.bus.Receive(ctx, wait)
		switch {
		case err == nil:
			select {
			case frames <- busFrame{frame: frame, closes: closes}:
			case <-ctx.Done():
				return ctx.Err()
			default:
				e.stats.dropped.Add(1)
				e.cfg.error(ErrDroppedFrame)
			}
		case errors.Is(err, ErrRxTimeout):
		case errors.Is(err, ErrBusClosed):
			select {
			case <-time.After(e.cfg.PollInterval):
			case <-ctx.Done():
			}
		case ctx.Err() != nil:
		default:
			e.stats.errors.Add(1)
			e.cfg.error(&BusError{Op: "receive", Err: err})
			select {
			case <-time.After(e.cfg.PollInterval):
			case <-ctx.Done():
			}
		}
	}
	return ctx.Err()
}

func (e *Engine) serve(ctx context.Context, frames <-chan busFrame) error {
	var ready <-chan struct{}
	notifier, canNotify := e.line.(Notifier)
	if canNotify {
		ready = notifier.Ready()
	}
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := e.drainLine(ctx); err != nil {
			return err
		}
		if canNotify {
			if err := notifier.Err(); err != nil && e.line.Available() == 0 {
				return fmt.Errorf("line closed: %w", err)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rx := <-frames:
			// frames received before the last close are not relayed,
			// even when the session was reopened since
			if e.disp.session.Open && rx.closes == e.disp.closes.Load() {
				e.relay(rx.frame)
			}
		case <-ready:
		case <-ticker.C:
		}
	}
}

func (e *Engine) drainLine(ctx context.Context) error {
	for n := e.line.Available(); n > 0; n-- {
		b, err := e.line.ReadByte()
		if err != nil {
			return fmt.Errorf("failed to read line: %w", err)
		}
		cmd, err := e.framer.Feed(b)
		if err != nil {
			e.stats.overflows.Add(1)
			e.stats.nacks.Add(1)
			if _, werr := e.line.Write(nack); werr != nil {
				e.cfg.error(fmt.Errorf("failed to write nack: %w", werr))
			}
			if e.cfg.Debug {
				e.cfg.debug(err.Error())
			}
			continue
		}
		if cmd == nil {
			continue
		}
		if e.cfg.Debug {
			e.cfg.debug("<< " + string(cmd))
		}
		if err := e.disp.Dispatch(ctx, cmd); err != nil {
			e.report(err)
		}
	}
	return nil
}

// report routes dispatch errors: bus failures are always logged, protocol
// errors only in debug mode since the NACK already told the host.
func (e *Engine) report(err error) {
	var busErr *BusError
	if errors.As(err, &busErr) {
		e.stats.errors.Add(1)
		e.cfg.error(err)
		return
	}
	if e.cfg.Debug {
		e.cfg.debug(err.Error())
	}
}

// uptime is the millisecond timestamp of relayed frames.
func (e *Engine) uptime() uint16 {
	ms := e.cfg.Clock().Sub(e.start).Milliseconds()
	return uint16(ms % timestampModulo)
}

func (e *Engine) relay(frame *CANFrame) {
	session := e.disp.session
	if session.Timestamp {
		frame.Timestamp = e.uptime()
	}
	e.outBuf = AppendFrame(e.outBuf[:0], frame, session.format())
	if _, err := e.line.Write(e.outBuf); err != nil {
		e.stats.errors.Add(1)
		e.cfg.error(fmt.Errorf("failed to write frame: %w", err))
		return
	}
	e.stats.rxFrames.Add(1)
	if e.cfg.Debug {
		e.cfg.debug("<< " + frame.String())
	}
}
