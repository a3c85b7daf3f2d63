package slcan

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

const (
	maxStandardID = 0x7FF
	maxExtendedID = 0x1FFFFFFF
)

type CANFrame struct {
	Identifier uint32
	Extended   bool
	RTR        bool
	// DLC is the declared length. Data frames carry DLC bytes in Data,
	// remote frames carry no payload.
	DLC       uint8
	Data      []byte
	Timestamp uint16
}

// NewFrame creates a standard data frame and copies the data slice
func NewFrame(identifier uint32, data []byte) *CANFrame {
	d := make([]byte, len(data))
	copy(d, data)
	return &CANFrame{
		Identifier: identifier,
		DLC:        uint8(len(d)),
		Data:       d,
	}
}

// NewExtendedFrame creates an extended data frame and copies the data slice
func NewExtendedFrame(identifier uint32, data []byte) *CANFrame {
	frame := NewFrame(identifier, data)
	frame.Extended = true
	return frame
}

// NewRemoteFrame creates a remote transmission request asking for dlc bytes
func NewRemoteFrame(identifier uint32, dlc uint8, extended bool) *CANFrame {
	return &CANFrame{
		Identifier: identifier,
		Extended:   extended,
		RTR:        true,
		DLC:        dlc,
	}
}

// Validate checks identifier range and length consistency.
func (f *CANFrame) Validate() error {
	if f.DLC > MaxDLC {
		return fmt.Errorf("%w: %d", ErrInvalidDLC, f.DLC)
	}
	if !f.RTR && len(f.Data) != int(f.DLC) {
		return fmt.Errorf("%w: dlc %d with %d data bytes", ErrInvalidDLC, f.DLC, len(f.Data))
	}
	limit := uint32(maxStandardID)
	if f.Extended {
		limit = maxExtendedID
	}
	if f.Identifier > limit {
		return fmt.Errorf("%w: 0x%X", ErrInvalidIdentifier, f.Identifier)
	}
	return nil
}

// Clone returns a deep copy of the frame
func (f *CANFrame) Clone() *CANFrame {
	c := *f
	if f.Data != nil {
		c.Data = make([]byte, len(f.Data))
		copy(c.Data, f.Data)
	}
	return &c
}

var (
	yellow = color.New(color.FgHiBlue).SprintfFunc()
	red    = color.New(color.FgRed).SprintfFunc()
	green  = color.New(color.FgGreen).SprintfFunc()
)

func (f *CANFrame) idString() string {
	if f.Extended {
		return fmt.Sprintf("0x%08X", f.Identifier)
	}
	return fmt.Sprintf("0x%03X", f.Identifier)
}

func (f *CANFrame) kind() string {
	switch {
	case f.RTR && f.Extended:
		return "<R> || "
	case f.RTR:
		return "<r> || "
	case f.Extended:
		return "<T> || "
	default:
		return "<t> || "
	}
}

func (f *CANFrame) hexView() string {
	var hexView strings.Builder
	for i, b := range f.Data {
		hexView.WriteString(fmt.Sprintf("%02X", b))
		if i != len(f.Data)-1 {
			hexView.WriteString(" ")
		}
	}
	return fmt.Sprintf("%-23s", hexView.String())
}

func (f *CANFrame) binView() string {
	var binView strings.Builder
	for i, b := range f.Data {
		binView.WriteString(fmt.Sprintf("%08b", b))
		if i != len(f.Data)-1 {
			binView.WriteString(" ")
		}
	}
	return fmt.Sprintf("%-72s", binView.String())
}

func (f *CANFrame) String() string {
	var out strings.Builder
	out.WriteString(f.kind())
	out.WriteString(f.idString() + " || ")
	out.WriteString(strconv.Itoa(int(f.DLC)) + " || ")
	out.WriteString(f.hexView())
	out.WriteString(" || ")
	out.WriteString(f.binView())
	out.WriteString(" || ")
	out.WriteString(onlyPrintable(f.Data))
	return out.String()
}

// ColorString is String with terminal colors, used for debug dumps.
func (f *CANFrame) ColorString() string {
	var out strings.Builder
	out.WriteString(f.kind())
	out.WriteString(green(f.idString()) + " || ")
	out.WriteString(strconv.Itoa(int(f.DLC)) + " || ")
	out.WriteString(f.hexView())
	out.WriteString(" || ")
	out.WriteString(red(f.binView()))
	out.WriteString(" || ")
	out.WriteString(yellow(onlyPrintable(f.Data)))
	return out.String()
}

func onlyPrintable(data []byte) string {
	var out strings.Builder
	for _, b := range data {
		if b < 32 || b > 126 {
			out.WriteString("·")
		} else {
			out.WriteByte(b)
		}
	}
	return out.String()
}
