// Package netsim wraps a net.PacketConn with configurable loss and latency
// so beacon tests can exercise the listener's tolerance of a noisy LAN.
// Adapted from the loss/latency injector the teacher repo used for its QUIC
// transport tests.
package netsim

import (
	"math/rand"
	"net"
	"sync"
	"time"
)

// LossyPacketConn drops or delays outbound datagrams according to a
// configurable loss rate and fixed latency. Inbound reads pass through
// untouched — loss/latency on a real link shows up on the wire, i.e. on
// send, and duplicating it on the receive side would double-count it.
type LossyPacketConn struct {
	net.PacketConn

	mu       sync.Mutex
	lossRate float64
	latency  time.Duration
	rng      *rand.Rand
}

// NewLossyPacketConn wraps conn with the given loss rate (0.0-1.0) and fixed
// outbound latency.
func NewLossyPacketConn(conn net.PacketConn, lossRate float64, latency time.Duration) *LossyPacketConn {
	return &LossyPacketConn{
		PacketConn: conn,
		lossRate:   lossRate,
		latency:    latency,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetLossRate adjusts the drop probability at runtime.
func (c *LossyPacketConn) SetLossRate(rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lossRate = rate
}

// WriteTo drops or delays p before handing it to the underlying conn.
func (c *LossyPacketConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	loss := c.lossRate
	lat := c.latency
	roll := c.rng.Float64()
	c.mu.Unlock()

	if roll < loss {
		return len(p), nil // silently dropped, as a lossy link would
	}

	if lat > 0 {
		data := make([]byte, len(p))
		copy(data, p)
		go func() {
			time.Sleep(lat)
			_, _ = c.PacketConn.WriteTo(data, addr)
		}()
		return len(p), nil
	}

	return c.PacketConn.WriteTo(p, addr)
}
