package slcan

import "fmt"

// FrameFormat controls the optional parts of a relayed frame line.
type FrameFormat struct {
	// Timestamp appends four hex digits of the frame timestamp.
	Timestamp bool
	// LineFeed appends LF after the CR.
	LineFeed bool
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// parseHex reads exactly len(b) hex digits.
func parseHex(b []byte) (uint32, bool) {
	if len(b) == 0 {
		return 0, false
	}
	var v uint32
	for _, c := range b {
		n, ok := hexValue(c)
		if !ok {
			return 0, false
		}
		v = v<<4 | uint32(n)
	}
	return v, true
}

// helper converts a 0..15 value to its ASCII hex nibble
func nybbleToHex(n byte) byte {
	if n < 10 {
		return '0' + n
	}
	return 'A' + (n - 10)
}

func appendHex(dst []byte, v uint32, digits int) []byte {
	for shift := (digits - 1) * 4; shift >= 0; shift -= 4 {
		dst = append(dst, nybbleToHex(byte(v>>shift)&0xF))
	}
	return dst
}

func frameVerb(extended, rtr bool) byte {
	switch {
	case extended && rtr:
		return 'R'
	case rtr:
		return 'r'
	case extended:
		return 'T'
	default:
		return 't'
	}
}

// DecodeCommand turns the arguments of a t, T, r or R command into a frame.
//
// The identifier is 3 (standard) or 8 (extended) hex digits followed by one
// hex DLC digit. Data frames then carry up to DLC pairs of hex digits; a
// short or malformed payload ends the payload early, leaving the remaining
// bytes zero, instead of failing the command.
func DecodeCommand(verb byte, args []byte) (*CANFrame, error) {
	var extended, rtr bool
	switch verb {
	case 't':
	case 'T':
		extended = true
	case 'r':
		rtr = true
	case 'R':
		extended, rtr = true, true
	default:
		return nil, protocolError(verb, "not a frame command", ErrUnknownCommand)
	}

	idLen := 3
	if extended {
		idLen = 8
	}
	if len(args) < idLen+1 {
		return nil, protocolError(verb, "frame too short", nil)
	}
	id, ok := parseHex(args[:idLen])
	if !ok {
		return nil, protocolError(verb, fmt.Sprintf("bad identifier %q", args[:idLen]), ErrInvalidIdentifier)
	}
	dlc, ok := hexValue(args[idLen])
	if !ok || dlc > MaxDLC {
		return nil, protocolError(verb, fmt.Sprintf("bad length %q", args[idLen]), ErrInvalidDLC)
	}

	frame := &CANFrame{
		Identifier: id,
		Extended:   extended,
		RTR:        rtr,
		DLC:        dlc,
	}
	if !rtr {
		frame.Data = make([]byte, dlc)
		payload := args[idLen+1:]
		for i := 0; i < int(dlc) && len(payload) >= 2; i, payload = i+1, payload[2:] {
			v, ok := parseHex(payload[:2])
			if !ok {
				break
			}
			frame.Data[i] = byte(v)
		}
	}
	if err := frame.Validate(); err != nil {
		return nil, protocolError(verb, "invalid frame", err)
	}
	return frame, nil
}

// AppendCommand appends the t, T, r or R command that transmits the frame,
// terminated by CR.
func AppendCommand(dst []byte, f *CANFrame) []byte {
	dst = appendFrameBody(dst, f)
	return append(dst, CR)
}

// AppendFrame appends the line relaying a received frame to the host.
//
// The DLC is written as a decimal digit, which for 0..8 is the same
// character as the hex digit hosts expect.
func AppendFrame(dst []byte, f *CANFrame, format FrameFormat) []byte {
	dst = appendFrameBody(dst, f)
	if format.Timestamp {
		dst = appendHex(dst, uint32(f.Timestamp), 4)
	}
	dst = append(dst, CR)
	if format.LineFeed {
		dst = append(dst, LF)
	}
	return dst
}

func appendFrameBody(dst []byte, f *CANFrame) []byte {
	dst = append(dst, frameVerb(f.Extended, f.RTR))
	if f.Extended {
		dst = appendHex(dst, f.Identifier, 8)
	} else {
		dst = appendHex(dst, f.Identifier, 3)
	}
	dst = append(dst, '0'+f.DLC%10)
	if f.RTR {
		return dst
	}
	for i := 0; i < int(f.DLC) && i < len(f.Data); i++ {
		dst = append(dst, nybbleToHex(f.Data[i]>>4), nybbleToHex(f.Data[i]&0xF))
	}
	return dst
}

// ParseFrameLine decodes a frame line as relayed to the host, with or
// without a trailing timestamp and line terminators.
func ParseFrameLine(line []byte) (*CANFrame, error) {
	for len(line) > 0 && (line[len(line)-1] == CR || line[len(line)-1] == LF) {
		line = line[:len(line)-1]
	}
	if len(line) == 0 {
		return nil, fmt.Errorf("empty frame line")
	}
	verb := line[0]
	frame, err := DecodeCommand(verb, line[1:])
	if err != nil {
		return nil, err
	}
	idLen := 3
	if frame.Extended {
		idLen = 8
	}
	rest := line[1+idLen+1:]
	if !frame.RTR {
		if len(rest) < 2*int(frame.DLC) {
			return nil, fmt.Errorf("%w: line %q shorter than dlc %d", ErrInvalidDLC, line, frame.DLC)
		}
		if _, ok := parseHex(rest[:2*int(frame.DLC)]); !ok && frame.DLC > 0 {
			return nil, fmt.Errorf("failed to decode frame body: %q", rest[:2*int(frame.DLC)])
		}
		rest = rest[2*int(frame.DLC):]
	}
	switch len(rest) {
	case 0:
	case 4:
		ts, ok := parseHex(rest)
		if !ok {
			return nil, fmt.Errorf("failed to decode timestamp: %q", rest)
		}
		frame.Timestamp = uint16(ts)
	default:
		return nil, fmt.Errorf("trailing data in frame line %q", line)
	}
	return frame, nil
}
