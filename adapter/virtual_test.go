package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roffe/slcan"
)

func openNode(t *testing.T, n *VirtualNetwork, cfg slcan.BusConfig) *Virtual {
	t.Helper()
	v := n.Node(&Config{OnEvent: discard})
	require.NoError(t, v.Open(context.Background(), cfg))
	t.Cleanup(func() { v.Close() })
	return v
}

func at(br slcan.Bitrate) slcan.BusConfig {
	return slcan.BusConfig{Bitrate: br, Filter: slcan.AcceptAll}
}

func TestVirtualDelivery(t *testing.T) {
	ctx := context.Background()
	n := NewVirtualNetwork()
	a := openNode(t, n, at(slcan.Bitrate500k))
	b := openNode(t, n, at(slcan.Bitrate500k))

	sent := slcan.NewFrame(0x123, []byte{1, 2, 3})
	require.NoError(t, a.Send(ctx, sent, 0))

	got, err := b.Receive(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, sent, got)
	assert.NotSame(t, sent, got)

	_, err = a.Receive(ctx, 0)
	assert.ErrorIs(t, err, slcan.ErrRxTimeout)
}

func TestVirtualBitrateMismatch(t *testing.T) {
	ctx := context.Background()
	n := NewVirtualNetwork()
	a := openNode(t, n, at(slcan.Bitrate500k))
	b := openNode(t, n, at(slcan.Bitrate250k))

	require.NoError(t, a.Send(ctx, slcan.NewFrame(0x1, nil), 0))
	_, err := b.Receive(ctx, 10*time.Millisecond)
	assert.ErrorIs(t, err, slcan.ErrRxTimeout)
}

func TestVirtualAcceptanceFilter(t *testing.T) {
	ctx := context.Background()
	n := NewVirtualNetwork()
	a := openNode(t, n, at(slcan.Bitrate125k))
	b := openNode(t, n, slcan.BusConfig{
		Bitrate: slcan.Bitrate125k,
		Filter:  slcan.AcceptanceFilter{Code: 0x7E8 << 21, Mask: 0x001FFFFF},
	})

	require.NoError(t, a.Send(ctx, slcan.NewFrame(0x7E0, nil), 0))
	require.NoError(t, a.Send(ctx, slcan.NewFrame(0x7E8, []byte{0xAA}), 0))

	got, err := b.Receive(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x7E8), got.Identifier)

	_, err = b.Receive(ctx, 0)
	assert.ErrorIs(t, err, slcan.ErrRxTimeout)
}

func TestVirtualClosed(t *testing.T) {
	ctx := context.Background()
	v := NewVirtualNetwork().Node(&Config{OnEvent: discard})

	assert.ErrorIs(t, v.Send(ctx, slcan.NewFrame(0x1, nil), 0), slcan.ErrBusClosed)
	_, err := v.Receive(ctx, 0)
	assert.ErrorIs(t, err, slcan.ErrBusClosed)
	assert.ErrorIs(t, v.Close(), slcan.ErrBusClosed)

	require.NoError(t, v.Open(ctx, at(slcan.Bitrate10k)))
	assert.ErrorIs(t, v.Open(ctx, at(slcan.Bitrate10k)), slcan.ErrBusOpen)
	require.NoError(t, v.Close())
}

func TestVirtualReceiveUnblocksOnClose(t *testing.T) {
	v := openNode(t, NewVirtualNetwork(), at(slcan.Bitrate1M))
	go func() {
		time.Sleep(20 * time.Millisecond)
		v.Close()
	}()
	_, err := v.Receive(context.Background(), 5*time.Second)
	assert.ErrorIs(t, err, slcan.ErrBusClosed)
}

func TestVirtualSendValidates(t *testing.T) {
	v := openNode(t, NewVirtualNetwork(), at(slcan.Bitrate1M))
	err := v.Send(context.Background(), slcan.NewFrame(0x800, nil), 0)
	assert.ErrorIs(t, err, slcan.ErrInvalidIdentifier)
}

func TestVirtualInject(t *testing.T) {
	v := openNode(t, NewVirtualNetwork(), slcan.BusConfig{
		Bitrate: slcan.Bitrate500k,
		Filter:  slcan.AcceptanceFilter{Code: 0x100 << 21, Mask: 0x001FFFFF},
	})
	assert.False(t, v.Inject(slcan.NewFrame(0x101, nil)))
	assert.True(t, v.Inject(slcan.NewFrame(0x100, nil)))

	got, err := v.Receive(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x100), got.Identifier)
}

func TestVirtualReopenDropsStaleFrames(t *testing.T) {
	ctx := context.Background()
	v := NewVirtualNetwork().Node(&Config{OnEvent: discard})
	require.NoError(t, v.Open(ctx, at(slcan.Bitrate500k)))
	v.Inject(slcan.NewFrame(0x1, nil))
	require.NoError(t, v.Close())

	require.NoError(t, v.Open(ctx, at(slcan.Bitrate500k)))
	defer v.Close()
	_, err := v.Receive(ctx, 0)
	assert.ErrorIs(t, err, slcan.ErrRxTimeout)
}
