package beacon

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aircode-dev/aircode/internal/netsim"
	"github.com/aircode-dev/aircode/pkg/protocol"
)

func TestSignEnvelopeRoundTrips(t *testing.T) {
	payload := protocol.BeaconPayload{
		Alias:        "laptop",
		Fingerprint:  "deadbeef",
		Port:         53317,
		Protocol:     "https",
		CodeHash:     "abc123",
		CliSessionID: "sess-1",
		CliMode:      true,
	}

	env, err := signEnvelope("swift-ocean", payload)
	require.NoError(t, err)
	assert.NotEmpty(t, env.Data)
	assert.NotEmpty(t, env.HMAC)

	assert.True(t, verifyHMAC("swift-ocean", env.Data, env.HMAC))
	assert.False(t, verifyHMAC("wrong-phrase", env.Data, env.HMAC))
}

func TestVerifyHMACRejectsTamperedData(t *testing.T) {
	payload := protocol.BeaconPayload{Alias: "laptop"}
	env, err := signEnvelope("swift-ocean", payload)
	require.NoError(t, err)

	tampered := env.Data + " "
	assert.False(t, verifyHMAC("swift-ocean", tampered, env.HMAC))
}

func TestVerifyHMACRejectsMalformedHex(t *testing.T) {
	assert.False(t, verifyHMAC("swift-ocean", "{}", "not-hex"))
	assert.False(t, verifyHMAC("swift-ocean", "{}", ""))
}

func TestDeviceAddrJoinsHostPort(t *testing.T) {
	d := Device{Host: "192.168.1.5", Port: 53317}
	assert.Equal(t, "192.168.1.5:53317", d.Addr())
}

func TestHandleDatagramAcceptsMatchingPhraseAndRejectsMismatch(t *testing.T) {
	l := &Listener{phrase: "swift-ocean", ownSessID: "self"}

	payload := protocol.BeaconPayload{
		Alias:        "phone",
		Fingerprint:  "cafef00d",
		Port:         9999,
		Protocol:     "https",
		CodeHash:     hashFor(t, "swift-ocean"),
		CliSessionID: "other-session",
		CliMode:      true,
	}
	env, err := signEnvelope("swift-ocean", payload)
	require.NoError(t, err)
	raw := mustMarshal(t, env)

	from := udpAddr(t, "10.0.0.9", 53317)
	dev, ok := l.handleDatagram(raw, from)
	require.True(t, ok)
	assert.Equal(t, "phone", dev.Alias)
	assert.Equal(t, "10.0.0.9", dev.Host)
	assert.Equal(t, 9999, dev.Port)

	wrongPhraseEnv, err := signEnvelope("other-phrase", payload)
	require.NoError(t, err)
	_, ok = l.handleDatagram(mustMarshal(t, wrongPhraseEnv), from)
	assert.False(t, ok, "beacon signed with a different phrase must be rejected")
}

func TestHandleDatagramIgnoresOwnSession(t *testing.T) {
	l := &Listener{phrase: "swift-ocean", ownSessID: "self-session"}

	payload := protocol.BeaconPayload{
		CodeHash:     hashFor(t, "swift-ocean"),
		CliSessionID: "self-session",
		CliMode:      true,
	}
	env, err := signEnvelope("swift-ocean", payload)
	require.NoError(t, err)

	_, ok := l.handleDatagram(mustMarshal(t, env), udpAddr(t, "127.0.0.1", 1))
	assert.False(t, ok, "a device must never surface its own beacon as a peer")
}

func TestHandleDatagramRejectsNonCliBeacons(t *testing.T) {
	l := &Listener{phrase: "swift-ocean"}

	payload := protocol.BeaconPayload{
		CodeHash: hashFor(t, "swift-ocean"),
		CliMode:  false,
	}
	env, err := signEnvelope("swift-ocean", payload)
	require.NoError(t, err)

	_, ok := l.handleDatagram(mustMarshal(t, env), udpAddr(t, "127.0.0.1", 1))
	assert.False(t, ok)
}

// TestHandleDatagramRejectsSpoofedHMAC covers scenario 6 from the
// testable-properties section: an envelope with the correct codeHash but a
// random hmac must be dropped by handleDatagram (the listener logs
// a Warning line and keeps listening; the caller never contacts the sender).
func TestHandleDatagramRejectsSpoofedHMAC(t *testing.T) {
	l := &Listener{phrase: "swift-ocean", ownSessID: "self"}

	payload := protocol.BeaconPayload{
		Alias:        "attacker-phone",
		CodeHash:     hashFor(t, "swift-ocean"),
		CliSessionID: "other-session",
		CliMode:      true,
	}
	env, err := signEnvelope("swift-ocean", payload)
	require.NoError(t, err)
	env.HMAC = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	raw := mustMarshal(t, env)

	dev, ok := l.handleDatagram(raw, udpAddr(t, "10.0.0.66", 53317))
	assert.False(t, ok, "a spoofed hmac must never surface a Device to contact")
	assert.Empty(t, dev.Alias)
}

// TestListenerToleratesLossyLink sends repeated beacons over a conn with a
// 70% drop rate, the way a real sender re-announces every BroadcastInterval
// regardless of loss, and checks the listener still surfaces a verified
// Device once enough retries get through.
func TestListenerToleratesLossyLink(t *testing.T) {
	recvConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer recvConn.Close()

	sendConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	lossy := netsim.NewLossyPacketConn(sendConn, 0.7, 0)
	defer lossy.Close()

	payload := protocol.BeaconPayload{
		Alias:        "flaky-phone",
		Fingerprint:  "feedface",
		Port:         9999,
		Protocol:     "https",
		CodeHash:     hashFor(t, "swift-ocean"),
		CliSessionID: "remote-session",
		CliMode:      true,
	}
	env, err := signEnvelope("swift-ocean", payload)
	require.NoError(t, err)
	raw := mustMarshal(t, env)

	l := &Listener{phrase: "swift-ocean", ownSessID: "local-session"}

	received := make(chan Device, 1)
	go func() {
		buf := make([]byte, maxDatagramSize)
		for {
			recvConn.SetReadDeadline(time.Now().Add(3 * time.Second))
			n, from, err := recvConn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if dev, ok := l.handleDatagram(buf[:n], from); ok {
				received <- dev
				return
			}
		}
	}()

	for i := 0; i < 30; i++ {
		_, err := lossy.WriteTo(raw, recvConn.LocalAddr())
		require.NoError(t, err)
	}

	select {
	case dev := <-received:
		assert.Equal(t, "flaky-phone", dev.Alias)
	case <-time.After(3 * time.Second):
		t.Fatal("listener never surfaced a device despite 30 retries over a 70%-loss link")
	}
}
