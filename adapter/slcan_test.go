package adapter

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roffe/slcan"
	"github.com/roffe/slcan/pkg/line"
)

// rejectingBus fails every open so the engine answers O with BEL.
type rejectingBus struct {
	*Virtual
}

func (rejectingBus) Open(context.Context, slcan.BusConfig) error {
	return errors.New("controller offline")
}

// serveEngine runs an slcan engine on one end of a pipe and returns an
// SLCan adapter wired to the other end.
func serveEngine(t *testing.T, bus slcan.Bus) *SLCan {
	t.Helper()
	host, device := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	stream := line.NewStream(device)
	engine := slcan.New(stream, bus, &slcan.Config{
		RxTimeout: 10 * time.Millisecond,
		OnEvent:   discard,
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		engine.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		stream.Close()
		host.Close()
		<-done
	})

	return newSLCan(&Config{OnEvent: discard}, func(context.Context) (io.ReadWriteCloser, error) {
		return host, nil
	})
}

func TestSLCanAgainstEngine(t *testing.T) {
	ctx := context.Background()
	network := NewVirtualNetwork()
	device := network.Node(&Config{OnEvent: discard})
	peer := openNode(t, network, at(slcan.Bitrate500k))

	sl := serveEngine(t, device)
	require.NoError(t, sl.Open(ctx, at(slcan.Bitrate500k)))
	assert.True(t, device.isOpen())
	assert.Equal(t, slcan.Bitrate500k, device.config().Bitrate)

	// host to bus
	require.NoError(t, sl.Send(ctx, slcan.NewExtendedFrame(0x18DAF110, []byte{0x02, 0x10, 0x03}), time.Second))
	got, err := peer.Receive(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x18DAF110), got.Identifier)
	assert.True(t, got.Extended)
	assert.Equal(t, []byte{0x02, 0x10, 0x03}, got.Data)

	// bus to host
	require.NoError(t, peer.Send(ctx, slcan.NewRemoteFrame(0x7E8, 8, false), 0))
	got, err = sl.Receive(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, slcan.NewRemoteFrame(0x7E8, 8, false), got)

	require.NoError(t, sl.Close())
	require.Eventually(t, func() bool {
		return !device.isOpen()
	}, time.Second, time.Millisecond)
}

func TestSLCanHardwareFilter(t *testing.T) {
	ctx := context.Background()
	network := NewVirtualNetwork()
	device := network.Node(&Config{OnEvent: discard})
	peer := openNode(t, network, at(slcan.Bitrate125k))

	filter := slcan.AcceptanceFilter{Code: 0x123 << 21, Mask: 0x001FFFFF}
	sl := serveEngine(t, device)
	require.NoError(t, sl.Open(ctx, slcan.BusConfig{Bitrate: slcan.Bitrate125k, Filter: filter}))
	defer sl.Close()
	assert.Equal(t, filter, device.config().Filter)

	require.NoError(t, peer.Send(ctx, slcan.NewFrame(0x124, nil), 0))
	require.NoError(t, peer.Send(ctx, slcan.NewFrame(0x123, []byte{1}), 0))
	got, err := sl.Receive(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x123), got.Identifier)
}

func TestSLCanOpenRejected(t *testing.T) {
	device := rejectingBus{NewVirtualNetwork().Node(&Config{OnEvent: discard})}
	sl := serveEngine(t, device)

	err := sl.Open(context.Background(), at(slcan.Bitrate500k))
	require.ErrorIs(t, err, errRejected)
	assert.False(t, sl.isOpen())
}

func TestSLCanClosed(t *testing.T) {
	sl := newSLCan(&Config{OnEvent: discard}, nil)
	assert.ErrorIs(t, sl.Send(context.Background(), slcan.NewFrame(1, nil), 0), slcan.ErrBusClosed)
	assert.ErrorIs(t, sl.Close(), slcan.ErrBusClosed)
}

func TestDecodeStatus(t *testing.T) {
	assert.NoError(t, decodeStatus([]byte("F00")))
	assert.EqualError(t, decodeStatus([]byte("F01")), "CAN receive FIFO queue full")
	assert.EqualError(t, decodeStatus([]byte("FA0")), "error passive (EPI), bus error (BEI)")
	assert.Error(t, decodeStatus([]byte("F")))
	assert.Error(t, decodeStatus([]byte("FZZ")))
}
