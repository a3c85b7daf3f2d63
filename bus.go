package slcan

import (
	"context"
	"time"
)

// BusConfig carries the session settings a bus needs when it is opened.
type BusConfig struct {
	Bitrate Bitrate
	Filter  AcceptanceFilter
}

// Bus is the CAN controller side of the engine.
//
// Implementations must be safe for concurrent use: Engine.Run receives on
// one goroutine while opening, closing and sending on another.
type Bus interface {
	// Open starts the controller with the given settings.
	Open(ctx context.Context, cfg BusConfig) error
	// Close stops the controller. Receive returns ErrBusClosed afterwards.
	Close() error
	// Send queues a frame for transmission, waiting at most timeout for room.
	Send(ctx context.Context, frame *CANFrame, timeout time.Duration) error
	// Receive waits at most timeout for a frame. A timeout of zero polls.
	// It returns ErrRxTimeout when nothing arrived in time.
	Receive(ctx context.Context, timeout time.Duration) (*CANFrame, error)
}
