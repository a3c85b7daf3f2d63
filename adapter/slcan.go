package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"

	"github.com/roffe/slcan"
	"github.com/roffe/slcan/pkg/line"
)

func init() {
	if err := Register(&AdapterInfo{
		Name:               "SLCan",
		Description:        "Lawicel/SLCAN USB adapter",
		RequiresSerialPort: true,
		New:                NewSLCan,
	}); err != nil {
		panic(err)
	}
}

const slcanCommandTimeout = 500 * time.Millisecond

var (
	errNoReply  = errors.New("no reply from adapter")
	errRejected = errors.New("adapter rejected command")
)

// SLCan bridges to an upstream Lawicel compatible adapter on a serial port.
type SLCan struct {
	*BaseAdapter
	dial func(ctx context.Context) (io.ReadWriteCloser, error)

	// mu keeps one command in flight so replies can be matched
	mu      sync.Mutex
	port    io.ReadWriteCloser
	replies chan error
}

func NewSLCan(cfg *Config) (slcan.Bus, error) {
	if cfg.Port == "" {
		return nil, errors.New("SLCan requires a serial port")
	}
	return newSLCan(cfg, func(ctx context.Context) (io.ReadWriteCloser, error) {
		return line.OpenPort(ctx, cfg.Port, cfg.PortBaudrate)
	}), nil
}

func newSLCan(cfg *Config, dial func(context.Context) (io.ReadWriteCloser, error)) *SLCan {
	return &SLCan{
		BaseAdapter: NewBaseAdapter("SLCan", cfg),
		dial:        dial,
		replies:     make(chan error, 1),
	}
}

func (sl *SLCan) Open(ctx context.Context, cfg slcan.BusConfig) error {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	closed, err := sl.start(cfg)
	if err != nil {
		return err
	}
	port, err := sl.dial(ctx)
	if err != nil {
		sl.stop()
		return err
	}
	sl.port = port
	go sl.recvManager(port, closed)

	if err := sl.handshake(ctx, cfg); err != nil {
		sl.stop()
		port.Close()
		return err
	}
	return nil
}

func (sl *SLCan) handshake(ctx context.Context, cfg slcan.BusConfig) error {
	// the adapter may still be open from an earlier session
	if err := sl.command(ctx, "C"); err != nil {
		sl.debug("close before open: " + err.Error())
	}
	if err := sl.must(ctx, cfg.Bitrate.Command()); err != nil {
		return err
	}
	if cfg.Filter != slcan.AcceptAll {
		for _, cmd := range []string{
			fmt.Sprintf("M%08X", cfg.Filter.Code),
			fmt.Sprintf("m%08X", cfg.Filter.Mask),
		} {
			// frames are filtered in software as well
			if err := sl.must(ctx, cmd); err != nil {
				sl.warn(fmt.Sprintf("hardware filter not set: %v", err))
			}
		}
	}
	return sl.must(ctx, "O")
}

// must runs a command and retries it while the adapter stays silent.
func (sl *SLCan) must(ctx context.Context, cmd string) error {
	err := retry.Do(func() error {
		return sl.command(ctx, cmd)
	},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(20*time.Millisecond),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, errNoReply)
		}),
		retry.OnRetry(func(n uint, err error) {
			sl.debug(fmt.Sprintf("retry #%d %s: %v", n+1, cmd, err))
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return nil
}

func (sl *SLCan) command(ctx context.Context, cmd string) error {
	return sl.exchange(ctx, []byte(cmd+"\r"), slcanCommandTimeout)
}

func (sl *SLCan) exchange(ctx context.Context, out []byte, timeout time.Duration) error {
	select {
	case <-sl.replies:
	default:
	}
	if _, err := sl.port.Write(out); err != nil {
		return fmt.Errorf("failed to write to com port: %w", err)
	}
	sl.debug(">> " + strings.TrimRight(string(out), "\r"))

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-sl.replies:
		return err
	case <-timer.C:
		return errNoReply
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (sl *SLCan) Close() error {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if !sl.isOpen() {
		return slcan.ErrBusClosed
	}
	if err := sl.command(context.Background(), "C"); err != nil {
		sl.debug("close: " + err.Error())
	}
	sl.stop()
	return sl.port.Close()
}

func (sl *SLCan) Send(ctx context.Context, frame *slcan.CANFrame, timeout time.Duration) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if !sl.isOpen() {
		return slcan.ErrBusClosed
	}
	if timeout <= 0 {
		timeout = slcanCommandTimeout
	}
	err := sl.exchange(ctx, slcan.AppendCommand(nil, frame), timeout)
	if errors.Is(err, errNoReply) {
		return slcan.ErrTxTimeout
	}
	return err
}

func (sl *SLCan) reply(err error) {
	select {
	case sl.replies <- err:
	default:
	}
}

func (sl *SLCan) recvManager(port io.Reader, closed <-chan struct{}) {
	buff := make([]byte, 0, 64)
	readBuffer := make([]byte, 64)
	for {
		n, err := port.Read(readBuffer)
		if err != nil {
			select {
			case <-closed:
			default:
				sl.SetError(fmt.Errorf("failed to read com port: %w", err))
			}
			return
		}
		buff = sl.parse(buff, readBuffer[:n])
	}
}

func (sl *SLCan) parse(buff, data []byte) []byte {
	for _, b := range data {
		switch b {
		case slcan.BEL:
			sl.reply(errRejected)
			buff = buff[:0]
		case slcan.CR:
			sl.handleLine(buff)
			buff = buff[:0]
		case slcan.LF:
		default:
			if len(buff) == cap(buff) {
				sl.SetError(fmt.Errorf("line too long: %q", buff))
				buff = buff[:0]
			}
			buff = append(buff, b)
		}
	}
	return buff
}

func (sl *SLCan) handleLine(msg []byte) {
	if len(msg) == 0 || string(msg) == "z" || string(msg) == "Z" {
		sl.reply(nil)
		return
	}
	switch msg[0] {
	case 't', 'T', 'r', 'R':
		frame, err := slcan.ParseFrameLine(msg)
		if err != nil {
			sl.SetError(fmt.Errorf("failed to decode frame %q: %w", msg, err))
			return
		}
		if sl.deliver(frame) {
			sl.debug("<< " + frame.String())
		}
	case 'F':
		sl.reply(nil)
		if err := decodeStatus(msg); err != nil {
			sl.SetError(fmt.Errorf("CAN status error: %w", err))
		}
	case 'V', 'N':
		sl.reply(nil)
		sl.info(strings.TrimSuffix(string(msg), "Z"))
	default:
		sl.info("Unknown>> " + string(msg))
	}
}

var statusFlags = [...]string{
	"CAN receive FIFO queue full",
	"CAN transmit FIFO queue full",
	"error warning (EI)",
	"data overrun (DOI)",
	"",
	"error passive (EPI)",
	"arbitration lost (ALI)",
	"bus error (BEI)",
}

// decodeStatus reads the SJA1000 style status byte of an F reply.
func decodeStatus(msg []byte) error {
	if len(msg) < 3 {
		return fmt.Errorf("invalid status reply %q", msg)
	}
	v, err := strconv.ParseUint(string(msg[1:3]), 16, 8)
	if err != nil {
		return fmt.Errorf("invalid status reply %q", msg)
	}
	var set []string
	for i, flag := range statusFlags {
		if flag != "" && v&(1<<i) != 0 {
			set = append(set, flag)
		}
	}
	if len(set) > 0 {
		return errors.New(strings.Join(set, ", "))
	}
	return nil
}
