package line

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitAvailable(t *testing.T, s *Stream, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.Available() >= n
	}, time.Second, time.Millisecond)
}

func TestStreamRead(t *testing.T) {
	local, remote := net.Pipe()
	s := NewStream(local)
	defer s.Close()

	_, err := s.ReadByte()
	assert.ErrorIs(t, err, ErrEmpty)

	go remote.Write([]byte("S6\r"))
	select {
	case <-s.Ready():
	case <-time.After(time.Second):
		t.Fatal("stream never signaled ready")
	}
	waitAvailable(t, s, 3)

	var got []byte
	for s.Available() > 0 {
		b, err := s.ReadByte()
		require.NoError(t, err)
		got = append(got, b)
	}
	assert.Equal(t, "S6\r", string(got))
	assert.NoError(t, s.Err())
}

func TestStreamWrite(t *testing.T) {
	local, remote := net.Pipe()
	s := NewStream(local)
	defer s.Close()

	done := make(chan []byte)
	go func() {
		buf := make([]byte, 8)
		n, _ := io.ReadFull(remote, buf[:2])
		done <- buf[:n]
	}()
	n, err := s.Write([]byte("Z\r"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "Z\r", string(<-done))
}

func TestStreamKeepsDataAfterError(t *testing.T) {
	local, remote := net.Pipe()
	s := NewStream(local)
	defer s.Close()

	_, err := remote.Write([]byte("C\r"))
	require.NoError(t, err)
	waitAvailable(t, s, 2)
	require.NoError(t, remote.Close())

	require.Eventually(t, func() bool {
		return s.Err() != nil
	}, time.Second, time.Millisecond)
	assert.Equal(t, 2, s.Available())

	b, err := s.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('C'), b)
	_, err = s.ReadByte()
	require.NoError(t, err)

	_, err = s.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}
