package slcan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameValidate(t *testing.T) {
	require.NoError(t, NewFrame(0x7FF, make([]byte, 8)).Validate())
	require.NoError(t, NewExtendedFrame(0x1FFFFFFF, nil).Validate())
	require.NoError(t, NewRemoteFrame(0x1, 8, false).Validate())

	assert.ErrorIs(t, NewFrame(0x800, nil).Validate(), ErrInvalidIdentifier)
	assert.ErrorIs(t, NewExtendedFrame(0x20000000, nil).Validate(), ErrInvalidIdentifier)
	assert.ErrorIs(t, NewFrame(0x1, make([]byte, 9)).Validate(), ErrInvalidDLC)
	assert.ErrorIs(t, (&CANFrame{Identifier: 1, DLC: 2, Data: []byte{1}}).Validate(), ErrInvalidDLC)
}

func TestFrameCopiesData(t *testing.T) {
	data := []byte{1, 2, 3}
	f := NewFrame(0x100, data)
	data[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, f.Data)

	c := f.Clone()
	c.Data[1] = 9
	assert.Equal(t, []byte{1, 2, 3}, f.Data)
}

func TestFrameString(t *testing.T) {
	s := NewFrame(0x123, []byte("AB")).String()
	assert.Contains(t, s, "<t> || 0x123 || 2 || 41 42")
	assert.Contains(t, s, "01000001 01000010")
	assert.Contains(t, s, "|| AB")

	assert.Contains(t, NewRemoteFrame(0x1234, 0, true).String(), "<R> || 0x00001234 || 0 || ")
}

func TestSerialString(t *testing.T) {
	assert.Equal(t, "2208", serialString(2208))
	assert.Equal(t, "0001", serialString(1))
}

func TestBitrateFromKbit(t *testing.T) {
	br, err := BitrateFromKbit(500)
	require.NoError(t, err)
	assert.Equal(t, Bitrate500k, br)
	assert.Equal(t, "S6", br.Command())

	_, err = BitrateFromKbit(615.384)
	assert.Error(t, err)
}
