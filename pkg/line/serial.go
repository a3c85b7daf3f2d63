package line

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// DefaultBaudrate is used when no port speed is configured.
const DefaultBaudrate = 115200

// OpenPort opens a serial port 8N1 and clears any stale data in it. Opening
// is retried since USB CDC devices often show up before they accept opens.
func OpenPort(ctx context.Context, name string, baudrate int) (serial.Port, error) {
	if baudrate <= 0 {
		baudrate = DefaultBaudrate
	}
	mode := &serial.Mode{
		BaudRate: baudrate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	var p serial.Port
	err := retry.Do(func() error {
		var err error
		p, err = serial.Open(name, mode)
		return err
	},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.RetryIf(func(err error) bool {
			var portError *serial.PortError
			return !errors.As(err, &portError) || portError.Code() != serial.PortNotFound
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("retry #%d opening %s: %v", n+1, name, err)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open com port %q: %w", name, err)
	}
	if err := p.ResetInputBuffer(); err != nil {
		p.Close()
		return nil, err
	}
	if err := p.ResetOutputBuffer(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// OpenSerial opens a serial port and wraps it in a Stream.
func OpenSerial(ctx context.Context, name string, baudrate int) (*Stream, error) {
	p, err := OpenPort(ctx, name, baudrate)
	if err != nil {
		return nil, err
	}
	return NewStream(p), nil
}

// Ports lists the serial ports of the host with their USB details.
func Ports() ([]*enumerator.PortDetails, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	sort.Slice(ports, func(i, j int) bool {
		return ports[i].Name < ports[j].Name
	})
	return ports, nil
}

func PortNames() ([]string, error) {
	ports, err := Ports()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ports))
	for _, p := range ports {
		names = append(names, p.Name)
	}
	return names, nil
}

// FindPort resolves a port name against the ports present on the host.
func FindPort(name string) (*enumerator.PortDetails, error) {
	if runtime.GOOS == "windows" {
		name = strings.ToUpper(name)
	}
	ports, err := Ports()
	if err != nil {
		return nil, err
	}
	if len(ports) == 0 {
		return nil, errors.New("no serial ports found")
	}
	for _, p := range ports {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("port %q not found", name)
}

// Describe formats a port the way the ports command lists it.
func Describe(p *enumerator.PortDetails) string {
	if !p.IsUSB {
		return p.Name
	}
	s := fmt.Sprintf("%s  USB ID %s:%s", p.Name, p.VID, p.PID)
	if p.SerialNumber != "" {
		s += "  serial " + p.SerialNumber
	}
	if p.Product != "" {
		s += "  " + p.Product
	}
	return s
}
