package cmd

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/roffe/slcan"
)

func eventPrinter(debug bool) func(slcan.Event) {
	tty := isTerminal(os.Stderr)
	return func(evt slcan.Event) {
		if evt.Type == slcan.EventTypeDebug && !debug {
			return
		}
		msg := evt.String()
		if tty {
			switch evt.Type {
			case slcan.EventTypeError:
				msg = color.RedString(msg)
			case slcan.EventTypeWarning:
				msg = color.YellowString(msg)
			}
		}
		log.Output(2, msg)
	}
}

// tapBus prints the frames passing through a bus.
type tapBus struct {
	slcan.Bus
	colors bool
}

func newTapBus(bus slcan.Bus, colors bool) *tapBus {
	return &tapBus{Bus: bus, colors: colors}
}

func (t *tapBus) dump(dir string, f *slcan.CANFrame) {
	if t.colors {
		log.Println(dir, f.ColorString())
		return
	}
	log.Println(dir, f.String())
}

func (t *tapBus) Send(ctx context.Context, f *slcan.CANFrame, timeout time.Duration) error {
	if err := t.Bus.Send(ctx, f, timeout); err != nil {
		return err
	}
	t.dump(">>", f)
	return nil
}

func (t *tapBus) Receive(ctx context.Context, timeout time.Duration) (*slcan.CANFrame, error) {
	f, err := t.Bus.Receive(ctx, timeout)
	if err != nil {
		return nil, err
	}
	t.dump("<<", f)
	return f, nil
}
