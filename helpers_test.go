package slcan

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"
)

// memLine is a Line backed by two buffers.
type memLine struct {
	in  bytes.Buffer
	out bytes.Buffer
}

func (m *memLine) Available() int              { return m.in.Len() }
func (m *memLine) ReadByte() (byte, error)     { return m.in.ReadByte() }
func (m *memLine) Write(p []byte) (int, error) { return m.out.Write(p) }

func (m *memLine) feed(s string) { m.in.WriteString(s) }

// take returns and clears everything written so far.
func (m *memLine) take() string {
	s := m.out.String()
	m.out.Reset()
	return s
}

type busCall struct {
	op    string
	cfg   BusConfig
	frame *CANFrame
}

// fakeBus records calls and hands out queued frames.
type fakeBus struct {
	mu      sync.Mutex
	calls   []busCall
	open    bool
	rx      []*CANFrame
	openErr  error
	sendErr  error
	closeErr error
	recvErr  error
}

func (b *fakeBus) Open(_ context.Context, cfg BusConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, busCall{op: "open", cfg: cfg})
	if b.openErr != nil {
		return b.openErr
	}
	b.open = true
	return nil
}

func (b *fakeBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, busCall{op: "close"})
	b.open = false
	return b.closeErr
}

func (b *fakeBus) Send(_ context.Context, f *CANFrame, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, busCall{op: "send", frame: f.Clone()})
	if !b.open {
		return ErrBusClosed
	}
	return b.sendErr
}

func (b *fakeBus) Receive(ctx context.Context, timeout time.Duration) (*CANFrame, error) {
	b.mu.Lock()
	if !b.open {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	if b.recvErr != nil {
		err := b.recvErr
		b.mu.Unlock()
		return nil, err
	}
	if len(b.rx) > 0 {
		f := b.rx[0]
		b.rx = b.rx[1:]
		b.mu.Unlock()
		return f, nil
	}
	b.mu.Unlock()
	if timeout > 0 {
		select {
		case <-time.After(timeout):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, ErrRxTimeout
}

func (b *fakeBus) queue(f *CANFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rx = append(b.rx, f)
}

func (b *fakeBus) ops() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, c := range b.calls {
		out = append(out, c.op)
	}
	return out
}

func (b *fakeBus) sent() []*CANFrame {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*CANFrame
	for _, c := range b.calls {
		if c.op == "send" {
			out = append(out, c.frame)
		}
	}
	return out
}

// fakeClock advances only when told to.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

var errBoom = errors.New("boom")

func discardEvents(Event) {}

// eventLog collects events for later inspection.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) errors() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.events {
		if e.Type == EventTypeError {
			out = append(out, e.Details)
		}
	}
	return out
}

func newTestEngine() (*Engine, *memLine, *fakeBus, *fakeClock) {
	line := &memLine{}
	bus := &fakeBus{}
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	e := New(line, bus, &Config{Clock: clock.Now, OnEvent: discardEvents})
	return e, line, bus, clock
}

// exchange feeds input, runs one poll and returns what was written.
func exchange(e *Engine, line *memLine, input string) string {
	line.feed(input)
	if err := e.Poll(context.Background()); err != nil {
		panic(err)
	}
	return line.take()
}
