// Package slcan implements the device side of the SLCAN (Lawicel) ASCII
// protocol: a host talks to the Engine over a serial line and the Engine
// controls and observes a CAN bus on its behalf.
package slcan

const (
	CR  = 0x0D
	LF  = 0x0A
	BEL = 0x07

	// MaxLineLength is the command buffer capacity, terminator included.
	MaxLineLength = 32

	// MaxDLC is the largest data length code of a classical CAN frame.
	MaxDLC = 8

	// timestamps wrap every minute
	timestampModulo = 60000
)

var (
	ack  = []byte{'Z', CR}
	nack = []byte{BEL}
)
