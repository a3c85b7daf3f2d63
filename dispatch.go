package slcan

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/albenik/bcd"
)

type reply int

const (
	replyNone reply = iota
	replyAck
	replyNack
)

func (r reply) String() string {
	switch r {
	case replyAck:
		return "ACK"
	case replyNack:
		return "NACK"
	default:
		return "none"
	}
}

type commandHandler func(ctx context.Context, args []byte) (reply, error)

// Dispatcher parses terminated commands, applies them to the session and the
// bus and answers with ACK or NACK.
type Dispatcher struct {
	cfg      *Config
	bus      Bus
	out      io.Writer
	session  Session
	handlers map[byte]commandHandler
	stats    *counters
	// closes counts session closes, frames received under an older count
	// belong to a closed session.
	closes atomic.Uint64
}

func NewDispatcher(bus Bus, out io.Writer, cfg *Config) *Dispatcher {
	return newDispatcher(bus, out, cfg.withDefaults(), new(counters))
}

func newDispatcher(bus Bus, out io.Writer, cfg *Config, stats *counters) *Dispatcher {
	d := &Dispatcher{
		cfg:     cfg,
		bus:     bus,
		out:     out,
		session: DefaultSession(),
		stats:   stats,
	}
	d.handlers = map[byte]commandHandler{
		'O': d.open,
		'C': d.close,
		't': d.send('t'),
		'T': d.send('T'),
		'r': d.send('r'),
		'R': d.send('R'),
		'Z': d.timestamp,
		'M': d.acceptance(false),
		'm': d.acceptance(true),
		'S': d.bitrate,
		'F': d.flags,
		'V': d.version,
		'N': d.serial,
		'h': d.help,
		'l': d.toggleCR,
	}
	return d
}

// Session returns a copy of the current session state.
func (d *Dispatcher) Session() Session {
	return d.session
}

// Dispatch executes one command, given without its terminator, and writes
// the reply. The returned error describes why a command was NACKed or a
// transport failure that did not change the reply; it is informational.
func (d *Dispatcher) Dispatch(ctx context.Context, line []byte) error {
	var (
		r   = replyNack
		err error
	)
	if len(line) == 0 {
		err = protocolError(CR, "empty command", ErrUnknownCommand)
	} else if h, ok := d.handlers[line[0]]; ok {
		r, err = h(ctx, line[1:])
	} else {
		err = protocolError(line[0], "no such command", ErrUnknownCommand)
	}

	switch r {
	case replyAck:
		d.stats.acks.Add(1)
		if _, werr := d.out.Write(ack); werr != nil {
			return errors.Join(err, fmt.Errorf("failed to write ack: %w", werr))
		}
	case replyNack:
		d.stats.nacks.Add(1)
		if _, werr := d.out.Write(nack); werr != nil {
			return errors.Join(err, fmt.Errorf("failed to write nack: %w", werr))
		}
	}
	return err
}

func (d *Dispatcher) open(ctx context.Context, _ []byte) (reply, error) {
	if d.session.Open {
		return replyAck, nil
	}
	if err := d.bus.Open(ctx, d.session.BusConfig()); err != nil {
		return replyNack, &BusError{Op: "open", Err: err}
	}
	d.session.Open = true
	return replyAck, nil
}

func (d *Dispatcher) close(_ context.Context, _ []byte) (reply, error) {
	if !d.session.Open {
		return replyAck, nil
	}
	d.session.Open = false
	d.closes.Add(1)
	if err := d.bus.Close(); err != nil {
		return replyNack, &BusError{Op: "close", Err: err}
	}
	return replyAck, nil
}

func (d *Dispatcher) send(verb byte) commandHandler {
	return func(ctx context.Context, args []byte) (reply, error) {
		if !d.session.Open {
			return replyNack, protocolError(verb, "send while closed", ErrNotOpen)
		}
		frame, err := DecodeCommand(verb, args)
		if err != nil {
			return replyNack, err
		}
		if err := d.bus.Send(ctx, frame, d.cfg.TxTimeout); err != nil {
			return replyNack, &BusError{Op: "send", Err: err}
		}
		d.stats.txFrames.Add(1)
		if d.cfg.Debug {
			d.cfg.debug(">> " + frame.String())
		}
		return replyAck, nil
	}
}

func (d *Dispatcher) timestamp(_ context.Context, args []byte) (reply, error) {
	if len(args) == 0 {
		return replyNack, protocolError('Z', "missing argument", nil)
	}
	switch args[0] {
	case '0':
		d.session.Timestamp = false
	case '1':
		d.session.Timestamp = true
	default:
		return replyNack, protocolError('Z', fmt.Sprintf("bad argument %q", args[0]), nil)
	}
	return replyAck, nil
}

// acceptance sets the filter code (M) or mask (m). Changes only take effect
// while the channel is closed, but the command is acknowledged either way.
func (d *Dispatcher) acceptance(mask bool) commandHandler {
	verb := byte('M')
	if mask {
		verb = 'm'
	}
	return func(_ context.Context, args []byte) (reply, error) {
		if len(args) < 8 {
			return replyNack, protocolError(verb, "expected 8 hex digits", nil)
		}
		v, ok := parseHex(args[:8])
		if !ok {
			return replyNack, protocolError(verb, fmt.Sprintf("bad value %q", args[:8]), nil)
		}
		if d.session.Open {
			return replyAck, nil
		}
		if mask {
			d.session.AcceptanceMask = v
		} else {
			d.session.AcceptanceCode = v
		}
		return replyAck, nil
	}
}

// bitrate selects a speed profile. While open the command is silently
// ignored, no reply is sent.
func (d *Dispatcher) bitrate(_ context.Context, args []byte) (reply, error) {
	if d.session.Open {
		return replyNone, nil
	}
	if len(args) == 0 {
		return replyNack, protocolError('S', "missing argument", nil)
	}
	br, ok := ParseBitrate(args[0])
	if !ok {
		return replyNack, protocolError('S', fmt.Sprintf("unknown profile %q", args[0]), nil)
	}
	d.session.Bitrate = br
	return replyAck, nil
}

// TODO: report the SJA1000 style status byte once buses expose error counters.
func (d *Dispatcher) flags(_ context.Context, _ []byte) (reply, error) {
	return replyAck, nil
}

func (d *Dispatcher) version(_ context.Context, _ []byte) (reply, error) {
	if _, err := io.WriteString(d.out, "V"+d.cfg.Version); err != nil {
		return replyNone, err
	}
	return replyAck, nil
}

func (d *Dispatcher) serial(_ context.Context, _ []byte) (reply, error) {
	if _, err := io.WriteString(d.out, "N"+serialString(*d.cfg.Serial)); err != nil {
		return replyNone, err
	}
	return replyAck, nil
}

// serialString renders the serial as four BCD digits, 2208 -> "2208".
func serialString(serial uint16) string {
	return strings.ToUpper(hex.EncodeToString(bcd.FromUint16(serial)))
}

func (d *Dispatcher) toggleCR(_ context.Context, _ []byte) (reply, error) {
	d.session.CREcho = !d.session.CREcho
	return replyNack, nil
}

func (d *Dispatcher) help(_ context.Context, _ []byte) (reply, error) {
	if _, err := io.WriteString(d.out, helpText(d.session)); err != nil {
		return replyNone, err
	}
	return replyNack, nil
}

func helpText(s Session) string {
	onOff := func(b bool) string {
		if b {
			return "ON"
		}
		return "OFF"
	}
	var sb strings.Builder
	writeln := func(a ...string) {
		for _, s := range a {
			sb.WriteString(s)
		}
		sb.WriteString("\r\n")
	}
	writeln()
	writeln("slcan")
	writeln()
	writeln("O\t=\tStart slcan")
	writeln("C\t=\tStop slcan")
	writeln("t\t=\tSend std frame")
	writeln("r\t=\tSend std rtr frame")
	writeln("T\t=\tSend ext frame")
	writeln("R\t=\tSend ext rtr frame")
	writeln("Z0\t=\tTimestamp Off")
	if s.Timestamp {
		writeln("Z1\t=\tTimestamp On  ON")
	} else {
		writeln("Z1\t=\tTimestamp On")
	}
	for _, br := range Bitrates() {
		writeln(br.Command(), "\t=\tSpeed ", br.String())
	}
	writeln("Mxxxxxxxx\t=\tAcceptance code")
	writeln("mxxxxxxxx\t=\tAcceptance mask")
	writeln("F\t=\tFlags        N/A")
	writeln("N\t=\tSerial No")
	writeln("V\t=\tVersion")
	writeln("-----EXTENSIONS-----")
	writeln("h\t=\tHelp")
	writeln("l\t=\tToggle CR ", onOff(s.CREcho))
	status := fmt.Sprintf("CAN_SPEED:\t%dbps", s.Bitrate.BitsPerSecond())
	if s.Timestamp {
		status += "\tT"
	}
	status += "\t" + onOff(s.Open)
	writeln(status)
	writeln(fmt.Sprintf("FILTER:\t%08X/%08X", s.AcceptanceCode, s.AcceptanceMask))
	return sb.String()
}
