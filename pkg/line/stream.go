// Package line provides the host side transports the slcan engine is served
// over: serial ports, websockets and any other byte stream.
package line

import (
	"errors"
	"io"
	"sync"
)

// ErrEmpty is returned by ReadByte when nothing is buffered.
var ErrEmpty = errors.New("no data available")

// Stream adapts an io.ReadWriteCloser to slcan.Line and slcan.Notifier.
// A reader goroutine moves incoming bytes into a buffer so the engine can
// drain it without blocking.
type Stream struct {
	rwc io.ReadWriteCloser

	mu   sync.Mutex
	data []byte
	off  int
	err  error

	wmu       sync.Mutex
	ready     chan struct{}
	closeOnce sync.Once
}

func NewStream(rwc io.ReadWriteCloser) *Stream {
	s := &Stream{
		rwc:   rwc,
		data:  make([]byte, 0, 256),
		ready: make(chan struct{}, 1),
	}
	go s.readLoop()
	return s
}

func (s *Stream) readLoop() {
	readBuffer := make([]byte, 64)
	for {
		n, err := s.rwc.Read(readBuffer)
		if n > 0 {
			s.mu.Lock()
			if s.off > 0 && s.off == len(s.data) {
				s.data, s.off = s.data[:0], 0
			}
			s.data = append(s.data, readBuffer[:n]...)
			s.mu.Unlock()
			s.signal()
		}
		if err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			s.signal()
			return
		}
	}
}

func (s *Stream) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *Stream) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data) - s.off
}

func (s *Stream) ReadByte() (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.off >= len(s.data) {
		if s.err != nil {
			return 0, s.err
		}
		return 0, ErrEmpty
	}
	b := s.data[s.off]
	s.off++
	if s.off == len(s.data) {
		s.data, s.off = s.data[:0], 0
	}
	return b, nil
}

func (s *Stream) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.rwc.Write(p)
}

// Ready is signaled when bytes arrive or the underlying reader fails.
func (s *Stream) Ready() <-chan struct{} {
	return s.ready
}

// Err returns the error that stopped the reader.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.rwc.Close()
	})
	return err
}
