package slcan

import (
	"errors"
	"fmt"
)

var (
	ErrBufferOverflow    = errors.New("command buffer overflow")
	ErrBusClosed         = errors.New("bus is closed")
	ErrBusOpen           = errors.New("bus is already open")
	ErrRxTimeout         = errors.New("receive timeout")
	ErrTxTimeout         = errors.New("timeout sending frame")
	ErrInvalidDLC        = errors.New("invalid data length")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrDroppedFrame      = errors.New("incoming channel full")
	ErrUnknownCommand    = errors.New("unknown command")
	ErrNotOpen           = errors.New("channel not open")
)

// ProtocolError is a malformed or unrecognized command. It is answered with NACK
// and leaves the session untouched.
type ProtocolError struct {
	Verb   byte
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("command %q: %s", e.Verb, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func protocolError(verb byte, reason string, err error) error {
	return &ProtocolError{Verb: verb, Reason: reason, Err: err}
}

// BusError is a failure reported by the bus transport.
type BusError struct {
	Op  string
	Err error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("bus %s: %v", e.Op, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}
