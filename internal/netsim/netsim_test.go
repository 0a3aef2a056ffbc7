package netsim

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLossyPacketConnDropsAccordingToLossRate(t *testing.T) {
	server, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	raw, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	lossy := NewLossyPacketConn(raw, 1.0, 0)
	defer lossy.Close()

	n, err := lossy.WriteTo([]byte("dropped"), server.LocalAddr())
	require.NoError(t, err)
	assert.Equal(t, len("dropped"), n, "WriteTo reports full write even when the packet is silently dropped")

	server.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 64)
	_, _, err = server.ReadFrom(buf)
	assert.Error(t, err, "a 100% loss rate must mean the server never sees the datagram")
}

func TestLossyPacketConnDeliversWithoutLoss(t *testing.T) {
	server, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	raw, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	lossy := NewLossyPacketConn(raw, 0.0, 0)
	defer lossy.Close()

	_, err = lossy.WriteTo([]byte("hello"), server.LocalAddr())
	require.NoError(t, err)

	server.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 64)
	n, _, err := server.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestLossyPacketConnDelaysByLatency(t *testing.T) {
	server, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	raw, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	lossy := NewLossyPacketConn(raw, 0.0, 150*time.Millisecond)
	defer lossy.Close()

	start := time.Now()
	_, err = lossy.WriteTo([]byte("delayed"), server.LocalAddr())
	require.NoError(t, err)

	server.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 64)
	_, _, err = server.ReadFrom(buf)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestSetLossRateAdjustsAtRuntime(t *testing.T) {
	raw, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	lossy := NewLossyPacketConn(raw, 0.0, 0)
	defer lossy.Close()

	lossy.SetLossRate(1.0)
	lossy.mu.Lock()
	rate := lossy.lossRate
	lossy.mu.Unlock()
	assert.Equal(t, 1.0, rate)
}
