package adapter

import (
	"go.einride.tech/can"

	"github.com/roffe/slcan"
)

func toEinride(f *slcan.CANFrame) can.Frame {
	frame := can.Frame{
		ID:         f.Identifier,
		Length:     f.DLC,
		IsRemote:   f.RTR,
		IsExtended: f.Extended,
	}
	copy(frame.Data[:], f.Data)
	return frame
}

func fromEinride(f can.Frame) *slcan.CANFrame {
	if f.IsRemote {
		return slcan.NewRemoteFrame(f.ID, f.Length, f.IsExtended)
	}
	n := f.Length
	if n > slcan.MaxDLC {
		n = slcan.MaxDLC
	}
	if f.IsExtended {
		return slcan.NewExtendedFrame(f.ID, f.Data[:n])
	}
	return slcan.NewFrame(f.ID, f.Data[:n])
}
