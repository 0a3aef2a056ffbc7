package beacon

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aircode-dev/aircode/internal/codephrase"
	"github.com/aircode-dev/aircode/pkg/protocol"
)

// BroadcastInterval is the cadence spec §4.4 mandates between beacons.
const BroadcastInterval = 500 * time.Millisecond

// BroadcasterConfig describes the identity a Broadcaster announces.
type BroadcasterConfig struct {
	Phrase      string
	Alias       string
	Fingerprint string
	Port        int
	UseHTTPS    bool
	Group       string // defaults to DefaultGroup
	GroupPort   int    // defaults to DefaultPort
}

// Broadcaster emits one authenticated BeaconMessage every 500ms until
// stopped.
type Broadcaster struct {
	cfg       BroadcasterConfig
	conn      *net.UDPConn
	groupAddr *net.UDPAddr
	sessionID string
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
}

// NewBroadcaster binds an ephemeral UDP socket for sending to the multicast
// group. It does not start broadcasting until Start is called.
func NewBroadcaster(cfg BroadcasterConfig) (*Broadcaster, error) {
	group := cfg.Group
	if group == "" {
		group = DefaultGroup
	}
	groupPort := cfg.GroupPort
	if groupPort == 0 {
		groupPort = DefaultPort
	}

	groupAddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", group, groupPort))
	if err != nil {
		return nil, fmt.Errorf("beacon: resolve group address: %w", err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("beacon: bind broadcast socket: %w", err)
	}

	return &Broadcaster{
		cfg:       cfg,
		conn:      conn,
		groupAddr: groupAddr,
		sessionID: uuid.NewString(),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Start emits beacons on a 500ms timer until Stop is called. It blocks the
// calling goroutine for that whole time, so call it with `go`.
func (b *Broadcaster) Start() {
	defer close(b.doneCh)

	ticker := time.NewTicker(BroadcastInterval)
	defer ticker.Stop()

	b.emit()
	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.emit()
		}
	}
}

func (b *Broadcaster) emit() {
	scheme := "http"
	if b.cfg.UseHTTPS {
		scheme = "https"
	}

	payload := protocol.BeaconPayload{
		Alias:        b.cfg.Alias,
		Version:      protocol.Version,
		DeviceModel:  "CLI",
		DeviceType:   "headless",
		Fingerprint:  b.cfg.Fingerprint,
		Port:         b.cfg.Port,
		Protocol:     scheme,
		Announce:     true,
		CodeHash:     codephrase.Hash(b.cfg.Phrase),
		CliSessionID: b.sessionID,
		CliMode:      true,
	}

	envelope, err := signEnvelope(b.cfg.Phrase, payload)
	if err != nil {
		return
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		return
	}

	_, _ = b.conn.WriteToUDP(raw, b.groupAddr)
}

// Stop cancels the broadcast timer and closes the socket. It blocks until
// the Start goroutine has returned.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	<-b.doneCh
	_ = b.conn.Close()
}
