package beacon

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"

	"golang.org/x/net/ipv4"

	"github.com/aircode-dev/aircode/internal/codephrase"
	"github.com/aircode-dev/aircode/pkg/protocol"
)

// maxDatagramSize is generous headroom over a typical BeaconPayload's
// marshaled size; anything larger is rejected outright.
const maxDatagramSize = 8192

// Listener joins the multicast group and surfaces verified Devices.
type Listener struct {
	phrase    string
	ownSessID string
	conn      *net.UDPConn
	pktConn   *ipv4.PacketConn
}

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	Phrase       string
	Group        string // defaults to DefaultGroup
	GroupPort    int    // defaults to DefaultPort
	OwnSessionID string // beacons carrying this session id are ignored
}

// NewListener binds the multicast port with address-reuse enabled and joins
// the group on every available multicast-capable interface.
func NewListener(cfg ListenerConfig) (*Listener, error) {
	group := cfg.Group
	if group == "" {
		group = DefaultGroup
	}
	groupPort := cfg.GroupPort
	if groupPort == 0 {
		groupPort = DefaultPort
	}

	lc := net.ListenConfig{Control: reuseAddrControl}
	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", groupPort))
	if err != nil {
		return nil, fmt.Errorf("beacon: bind multicast port %d (already in use?): %w", groupPort, err)
	}

	udpConn := pc.(*net.UDPConn)
	pktConn := ipv4.NewPacketConn(udpConn)

	groupIP := net.ParseIP(group)
	joined := false
	ifaces, err := net.Interfaces()
	if err == nil {
		for _, iface := range ifaces {
			if iface.Flags&net.FlagMulticast == 0 || iface.Flags&net.FlagUp == 0 {
				continue
			}
			if err := pktConn.JoinGroup(&iface, &net.UDPAddr{IP: groupIP}); err == nil {
				joined = true
			}
		}
	}
	if !joined {
		if err := pktConn.JoinGroup(nil, &net.UDPAddr{IP: groupIP}); err != nil {
			_ = udpConn.Close()
			return nil, fmt.Errorf("beacon: join multicast group %s: %w", group, err)
		}
	}

	return &Listener{
		phrase:    cfg.Phrase,
		ownSessID: cfg.OwnSessionID,
		conn:      udpConn,
		pktConn:   pktConn,
	}, nil
}

// Close releases the socket. It does not call LeaveGroup before closing;
// the group memberships taken in NewListener are not explicitly dropped.
func (l *Listener) Close() error {
	return l.conn.Close()
}

// Listen returns immediately; a background goroutine delivers each verified
// Device to the returned channel until ctx is canceled or the socket is
// closed, and then closes the channel.
func (l *Listener) Listen(ctx context.Context) <-chan Device {
	out := make(chan Device)

	go func() {
		defer close(out)

		go func() {
			<-ctx.Done()
			_ = l.conn.Close()
		}()

		buf := make([]byte, maxDatagramSize)
		for {
			n, addr, err := l.conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			dev, ok := l.handleDatagram(buf[:n], addr)
			if !ok {
				continue
			}
			select {
			case out <- dev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func (l *Listener) handleDatagram(raw []byte, from *net.UDPAddr) (Device, bool) {
	msg, err := protocol.DecodeBeaconMessage(raw)
	if err != nil {
		// Malformed datagram, not a beacon at all: silently discard.
		return Device{}, false
	}

	if !verifyHMAC(l.phrase, msg.Data, msg.HMAC) {
		log.Printf("beacon: Warning: dropped beacon from %s with invalid HMAC (wrong code phrase or spoofed envelope)", from.IP)
		return Device{}, false
	}

	payload, err := protocol.DecodeBeaconPayload(msg.Data)
	if err != nil {
		return Device{}, false
	}

	if !payload.CliMode {
		return Device{}, false
	}
	if l.ownSessID != "" && payload.CliSessionID == l.ownSessID {
		return Device{}, false
	}
	if payload.CodeHash != codephrase.Hash(l.phrase) {
		return Device{}, false
	}

	host := from.IP.String()
	if strings.Contains(host, "%") {
		host = strings.SplitN(host, "%", 2)[0]
	}

	return Device{
		Alias:       payload.Alias,
		Fingerprint: payload.Fingerprint,
		Host:        host,
		Port:        payload.Port,
		Scheme:      payload.Protocol,
	}, true
}
