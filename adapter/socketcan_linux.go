package adapter

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.einride.tech/can/pkg/candevice"
	"go.einride.tech/can/pkg/socketcan"

	"github.com/roffe/slcan"
)

func init() {
	if err := Register(&AdapterInfo{
		Name:               "SocketCAN",
		Description:        "Linux SocketCAN interface",
		RequiresSerialPort: false,
		New:                NewSocketCAN,
	}); err != nil {
		panic(err)
	}
}

type SocketCAN struct {
	*BaseAdapter
	iface string

	mu   sync.Mutex
	d    *candevice.Device
	conn net.Conn
	tx   *socketcan.Transmitter
}

// NewSocketCAN drives Config.Interface, or the first CAN interface of the
// host when none is given.
func NewSocketCAN(cfg *Config) (slcan.Bus, error) {
	iface := cfg.Interface
	if iface == "" {
		devs := FindDevices()
		if len(devs) == 0 {
			return nil, fmt.Errorf("no CAN interfaces found")
		}
		iface = devs[0]
	}
	return &SocketCAN{
		BaseAdapter: NewBaseAdapter("SocketCAN "+iface, cfg),
		iface:       iface,
	}, nil
}

func (a *SocketCAN) Open(ctx context.Context, cfg slcan.BusConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	closed, err := a.start(cfg)
	if err != nil {
		return err
	}
	if err := a.setup(ctx, cfg); err != nil {
		a.stop()
		return err
	}
	go a.recvManager(a.conn, closed)
	return nil
}

func (a *SocketCAN) setup(ctx context.Context, cfg slcan.BusConfig) error {
	d, err := candevice.New(a.iface)
	if err != nil {
		return err
	}
	if up, err := d.IsUp(); err == nil && up {
		if err := d.SetDown(); err != nil {
			return fmt.Errorf("failed to bring %s down: %w", a.iface, err)
		}
	}
	// virtual interfaces have no bitrate
	if err := d.SetBitrate(uint32(cfg.Bitrate.BitsPerSecond())); err != nil {
		a.warn(fmt.Sprintf("could not set bitrate on %s: %v", a.iface, err))
	}
	if err := d.SetUp(); err != nil {
		return fmt.Errorf("failed to bring %s up: %w", a.iface, err)
	}
	conn, err := socketcan.DialContext(ctx, "can", a.iface)
	if err != nil {
		d.SetDown()
		return err
	}
	a.d = d
	a.conn = conn
	a.tx = socketcan.NewTransmitter(conn)
	return nil
}

func (a *SocketCAN) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.stop(); err != nil {
		return err
	}
	var errs []string
	if err := a.conn.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := a.d.SetDown(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close %s: %s", a.iface, strings.Join(errs, ", "))
	}
	return nil
}

func (a *SocketCAN) Send(ctx context.Context, frame *slcan.CANFrame, timeout time.Duration) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.isOpen() {
		return slcan.ErrBusClosed
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := a.tx.TransmitFrame(ctx, toEinride(frame)); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return slcan.ErrTxTimeout
		}
		return err
	}
	a.debug(">> " + frame.String())
	return nil
}

func (a *SocketCAN) recvManager(conn net.Conn, closed <-chan struct{}) {
	rx := socketcan.NewReceiver(conn)
	for rx.Receive() {
		if rx.HasErrorFrame() {
			a.debug(fmt.Sprintf("error frame: %v", rx.ErrorFrame()))
			continue
		}
		frame := fromEinride(rx.Frame())
		if a.deliver(frame) {
			a.debug("<< " + frame.String())
		}
	}
	select {
	case <-closed:
	default:
		if err := rx.Err(); err != nil {
			a.SetError(fmt.Errorf("receive failed: %w", err))
		}
	}
}

// FindDevices lists the host network interfaces that look like CAN
// interfaces.
func FindDevices() (dev []string) {
	iFaces, _ := net.Interfaces()
	for _, i := range iFaces {
		if strings.Contains(i.Name, "can") {
			dev = append(dev, i.Name)
		}
	}
	return
}
