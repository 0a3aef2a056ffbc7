package transferserver

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aircode-dev/aircode/internal/catalog"
	"github.com/aircode-dev/aircode/internal/identity"
	"github.com/aircode-dev/aircode/pkg/protocol"
)

func proofFor(phrase, timestamp, fingerprint string) string {
	mac := hmac.New(sha256.New, []byte(phrase))
	mac.Write([]byte(timestamp + ":" + fingerprint))
	return hex.EncodeToString(mac.Sum(nil))
}

func startTestServer(t *testing.T, cfg Config) (*Server, *http.Client, string, func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Serve(ctx, ln) }()

	client := &http.Client{
		Transport: &http.Transport{TLSClientConfig: identity.ClientTLSConfig(cfg.Identity.Fingerprint)},
		Timeout:   5 * time.Second,
	}

	base := "https://" + ln.Addr().String()
	return srv, client, base, func() {
		cancel()
		_ = ln.Close()
	}
}

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))
	cat, err := catalog.Scan([]string{path})
	require.NoError(t, err)
	return cat
}

func TestHandleInfoReturnsDeviceMetadata(t *testing.T) {
	id, err := identity.New()
	require.NoError(t, err)
	cat := newTestCatalog(t)

	_, client, base, stop := startTestServer(t, Config{Identity: id, Catalog: cat, Phrase: "swift-ocean", Alias: "sender-cli"})
	defer stop()

	resp, err := client.Get(base + protocol.APIPrefix + "/info")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var info protocol.InfoResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "sender-cli", info.Alias)
	assert.Equal(t, id.Fingerprint, info.Fingerprint)
	assert.True(t, info.Download)
}

func TestPrepareUploadSignalsBarrierOnceAndRejectsBadProof(t *testing.T) {
	id, err := identity.New()
	require.NoError(t, err)
	cat := newTestCatalog(t)

	srv, client, base, stop := startTestServer(t, Config{Identity: id, Catalog: cat, Phrase: "swift-ocean", Alias: "sender-cli"})
	defer stop()

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	good := protocol.PrepareUploadRequest{
		Info:  protocol.DeviceInfo{Alias: "receiver", Fingerprint: "clientfp"},
		Files: map[string]protocol.FileDescriptor{},
		CliAuth: &protocol.CliAuth{
			Timestamp: ts,
			Proof:     proofFor("swift-ocean", ts, id.Fingerprint),
		},
	}

	body, err := json.Marshal(good)
	require.NoError(t, err)

	resp, err := client.Post(base+protocol.APIPrefix+"/prepare-upload", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed protocol.PrepareUploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	assert.NotEmpty(t, parsed.SessionID)
	assert.Len(t, parsed.Files, 1)

	select {
	case <-srv.ConnectedBarrier():
	case <-time.After(time.Second):
		t.Fatal("connected barrier did not fire")
	}

	// A second prepare-upload must return the same session and not re-signal.
	resp2, err := client.Post(base+protocol.APIPrefix+"/prepare-upload", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp2.Body.Close()
	var parsed2 protocol.PrepareUploadResponse
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&parsed2))
	assert.Equal(t, parsed.SessionID, parsed2.SessionID)

	// Wrong proof must be rejected with 403.
	bad := good
	bad.CliAuth = &protocol.CliAuth{Timestamp: ts, Proof: "00"}
	badBody, _ := json.Marshal(bad)
	resp3, err := client.Post(base+protocol.APIPrefix+"/prepare-upload", "application/json", bytes.NewReader(badBody))
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp3.StatusCode)
}

// Scenario 5 from the testable-properties section: a captured /prepare-upload
// replayed 10 minutes later must be rejected with 401 and, unlike a
// legitimate handshake, must never advance the connected barrier.
func TestPrepareUploadRejectsExpiredTimestamp(t *testing.T) {
	id, err := identity.New()
	require.NoError(t, err)
	cat := newTestCatalog(t)

	srv, client, base, stop := startTestServer(t, Config{Identity: id, Catalog: cat, Phrase: "swift-ocean", Alias: "sender-cli"})
	defer stop()

	staleTs := strconv.FormatInt(time.Now().Add(-10*time.Minute).UnixMilli(), 10)
	req := protocol.PrepareUploadRequest{
		Info:  protocol.DeviceInfo{Alias: "receiver"},
		Files: map[string]protocol.FileDescriptor{},
		CliAuth: &protocol.CliAuth{
			Timestamp: staleTs,
			Proof:     proofFor("swift-ocean", staleTs, id.Fingerprint),
		},
	}
	body, _ := json.Marshal(req)

	resp, err := client.Post(base+protocol.APIPrefix+"/prepare-upload", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	select {
	case <-srv.ConnectedBarrier():
		t.Fatal("a replayed, expired handshake must not advance the connected barrier")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDownloadRejectsUnknownSession(t *testing.T) {
	id, err := identity.New()
	require.NoError(t, err)
	cat := newTestCatalog(t)

	_, client, base, stop := startTestServer(t, Config{Identity: id, Catalog: cat, Phrase: "swift-ocean", Alias: "sender-cli"})
	defer stop()

	resp, err := client.Get(base + protocol.APIPrefix + "/download?sessionId=nope&fileId=nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDownloadStreamsExactBytesAndFiresCompletionBarrier(t *testing.T) {
	id, err := identity.New()
	require.NoError(t, err)
	cat := newTestCatalog(t)

	srv, client, base, stop := startTestServer(t, Config{Identity: id, Catalog: cat, Phrase: "swift-ocean", Alias: "sender-cli"})
	defer stop()

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req := protocol.PrepareUploadRequest{
		Info:  protocol.DeviceInfo{Alias: "receiver"},
		Files: map[string]protocol.FileDescriptor{},
		CliAuth: &protocol.CliAuth{
			Timestamp: ts,
			Proof:     proofFor("swift-ocean", ts, id.Fingerprint),
		},
	}
	body, _ := json.Marshal(req)
	resp, err := client.Post(base+protocol.APIPrefix+"/prepare-upload", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	var parsed protocol.PrepareUploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	resp.Body.Close()

	var fileID string
	for id := range parsed.Files {
		fileID = id
	}
	require.NotEmpty(t, fileID)

	dlResp, err := client.Get(base + protocol.APIPrefix + "/download?sessionId=" + parsed.SessionID + "&fileId=" + fileID)
	require.NoError(t, err)
	defer dlResp.Body.Close()
	assert.Equal(t, http.StatusOK, dlResp.StatusCode)

	data, err := io.ReadAll(dlResp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	select {
	case <-srv.CompleteBarrier():
	case <-time.After(2 * time.Second):
		t.Fatal("completion barrier did not fire after all files delivered")
	}
}
