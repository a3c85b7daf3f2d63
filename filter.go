package slcan

// AcceptanceFilter is a single code/mask filter in the SJA1000 layout. A set
// mask bit means "don't care".
//
// Standard frames are compared on bits 31..21 (identifier) and 20 (RTR).
// Standard data frames also compare their first data byte on bits 15..8
// and their second on bits 7..0, a byte the frame does not carry always
// matches. Extended frames are compared on bits 31..3 (identifier) and
// 2 (RTR).
type AcceptanceFilter struct {
	Code uint32
	Mask uint32
}

// AcceptAll passes every frame.
var AcceptAll = AcceptanceFilter{Code: 0, Mask: 0xFFFFFFFF}

const (
	standardCompareBits = 0xFFF00000
	extendedCompareBits = 0xFFFFFFFC
)

func filterValue(f *CANFrame) (value, compared uint32) {
	var rtr uint32
	if f.RTR {
		rtr = 1
	}
	if f.Extended {
		return f.Identifier<<3 | rtr<<2, extendedCompareBits
	}
	value, compared = f.Identifier<<21|rtr<<20, standardCompareBits
	if f.RTR {
		return value, compared
	}
	if len(f.Data) > 0 {
		value |= uint32(f.Data[0]) << 8
		compared |= 0x0000FF00
	}
	if len(f.Data) > 1 {
		value |= uint32(f.Data[1])
		compared |= 0x000000FF
	}
	return value, compared
}

// Match reports whether the frame passes the filter.
func (af AcceptanceFilter) Match(f *CANFrame) bool {
	value, compared := filterValue(f)
	return (value^af.Code)&^af.Mask&compared == 0
}
