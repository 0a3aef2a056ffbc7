// Package beacon implements aircode's authenticated multicast discovery
// protocol: a sender-side broadcaster that announces itself every 500ms,
// and a receiver-side listener that verifies each announcement's HMAC
// before surfacing it as a candidate peer.
package beacon

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net"
	"strconv"

	"github.com/aircode-dev/aircode/pkg/protocol"
)

// DefaultGroup is the IPv4 multicast group aircode announces on.
const DefaultGroup = "224.0.0.167"

// DefaultPort is the UDP port both broadcaster and listener use.
const DefaultPort = 53317

// Device is a verified candidate peer surfaced by the Listener.
type Device struct {
	Alias       string
	Fingerprint string
	Host        string
	Port        int
	Scheme      string
}

// Addr returns the host:port the transfer client should dial.
func (d Device) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// computeHMAC returns HMAC-SHA256(key=phrase, msg=data) as raw bytes.
func computeHMAC(phrase, data string) []byte {
	mac := hmac.New(sha256.New, []byte(phrase))
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

// verifyHMAC constant-time compares the envelope's hex-encoded hmac against
// the expected HMAC over the envelope's raw data string.
func verifyHMAC(phrase, data, hexHMAC string) bool {
	expected := computeHMAC(phrase, data)
	got, err := hex.DecodeString(hexHMAC)
	if err != nil || len(got) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare(got, expected) == 1
}

// signEnvelope builds a BeaconMessage whose HMAC is computed over the exact
// JSON string emitted for payload.
func signEnvelope(phrase string, payload protocol.BeaconPayload) (protocol.BeaconMessage, error) {
	data, err := protocol.EncodeBeaconPayload(payload)
	if err != nil {
		return protocol.BeaconMessage{}, err
	}
	mac := computeHMAC(phrase, data)
	return protocol.BeaconMessage{Data: data, HMAC: hex.EncodeToString(mac)}, nil
}
