package beacon

import (
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aircode-dev/aircode/internal/codephrase"
)

func hashFor(t *testing.T, phrase string) string {
	t.Helper()
	return codephrase.Hash(phrase)
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func udpAddr(t *testing.T, ip string, port int) *net.UDPAddr {
	t.Helper()
	return &net.UDPAddr{IP: net.ParseIP(ip), Port: port}
}
