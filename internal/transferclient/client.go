// Package transferclient implements the receiver-side flow: pinned-TLS
// handshake against a beacon-discovered peer, manifest confirmation, and
// the per-file sink pipeline that writes downloaded bytes to disk.
package transferclient

import (
	"bufio"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aircode-dev/aircode/internal/aircodeerr"
	"github.com/aircode-dev/aircode/internal/beacon"
	"github.com/aircode-dev/aircode/internal/codephrase"
	"github.com/aircode-dev/aircode/internal/identity"
	"github.com/aircode-dev/aircode/pkg/protocol"
)

// Progress is emitted once per file, after it finishes writing.
type Progress struct {
	Name string
	Size uint64
}

// Config bundles everything a Client needs to run one receive.
type Config struct {
	Phrase     string // canonical code phrase
	OutputDir  string
	AutoAccept bool
	ClientFP   string // this client's own identity fingerprint, sent as info.fingerprint
	Prompter   Prompter
	OnStatus   func(string)
	OnProgress func(Progress)
}

// Client drives one receive against a single discovered peer.
type Client struct {
	cfg  Config
	http *http.Client
	sink *sink
}

// New constructs a Client pinned to peer's certificate fingerprint.
func New(cfg Config, peer beacon.Device) (*Client, error) {
	s, err := newSink(cfg.OutputDir, cfg.Prompter)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{TLSClientConfig: identity.ClientTLSConfig(peer.Fingerprint)}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Transport: transport, Timeout: 0},
		sink: s,
	}, nil
}

func (c *Client) status(msg string) {
	if c.cfg.OnStatus != nil {
		c.cfg.OnStatus(msg)
	}
}

// Run performs the handshake, confirmation prompt, and per-file downloads
// against peer, reachable over baseURL (e.g. "https://192.168.1.5:53317").
func (c *Client) Run(ctx context.Context, baseURL string, peerFingerprint string) error {
	manifest, sessionID, err := c.handshake(ctx, baseURL, peerFingerprint)
	if err != nil {
		return err
	}

	if len(manifest) == 0 {
		return nil
	}

	if !c.cfg.AutoAccept {
		ok, err := c.confirm(manifest)
		if err != nil {
			return err
		}
		if !ok {
			return &aircodeerr.User{Msg: "declined at confirmation prompt"}
		}
	}

	ids := orderedIDs(manifest)
	for _, id := range ids {
		desc := manifest[id]
		if err := c.downloadOne(ctx, baseURL, sessionID, desc); err != nil {
			return err
		}
		if c.cfg.OnProgress != nil {
			c.cfg.OnProgress(Progress{Name: desc.Name, Size: desc.Size})
		}
	}
	return nil
}

func orderedIDs(manifest map[string]protocol.FileDescriptor) []string {
	ids := make([]string, 0, len(manifest))
	for id := range manifest {
		ids = append(ids, id)
	}
	// Deterministic order isn't guaranteed by map iteration; fall back to
	// the descriptor's own id as a stable sort key.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}

func (c *Client) handshake(ctx context.Context, baseURL, peerFingerprint string) (map[string]protocol.FileDescriptor, string, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	proof := computeProof(c.cfg.Phrase, now, peerFingerprint)

	req := protocol.PrepareUploadRequest{
		Info: protocol.DeviceInfo{
			Alias:       "aircode-cli",
			Version:     protocol.Version,
			DeviceModel: "CLI",
			DeviceType:  "headless",
			Fingerprint: c.cfg.ClientFP,
		},
		Files:   map[string]protocol.FileDescriptor{},
		CliAuth: &protocol.CliAuth{Timestamp: now, Proof: proof},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, "", fmt.Errorf("transferclient: encode handshake request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+protocol.APIPrefix+"/prepare-upload", strings.NewReader(string(body)))
	if err != nil {
		return nil, "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, "", &aircodeerr.TLS{Msg: "handshake request failed", Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, "", &aircodeerr.Auth{Msg: "authentication expired or missing"}
	case http.StatusForbidden:
		return nil, "", &aircodeerr.Auth{Msg: "proof mismatch"}
	case http.StatusTooManyRequests:
		return nil, "", &aircodeerr.Protocol{Msg: "rate limited by peer"}
	default:
		return nil, "", &aircodeerr.Protocol{Msg: fmt.Sprintf("unexpected status %d from prepare-upload", resp.StatusCode)}
	}

	var parsed protocol.PrepareUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, "", &aircodeerr.Protocol{Msg: "malformed prepare-upload response", Err: err}
	}
	return parsed.Files, parsed.SessionID, nil
}

func (c *Client) confirm(manifest map[string]protocol.FileDescriptor) (bool, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Receive %d file(s)? [Y/n]: ", len(manifest))
	for _, id := range orderedIDs(manifest) {
		fmt.Fprintf(&b, "\n  %s (%d bytes)", manifest[id].Name, manifest[id].Size)
	}
	answer, err := c.sink.ask(b.String())
	if err != nil {
		return false, nil
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "" || answer == "y" || answer == "yes", nil
}

func (c *Client) downloadOne(ctx context.Context, baseURL, sessionID string, desc protocol.FileDescriptor) error {
	target, err := c.sink.resolvePath(desc.Name)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s%s/download?sessionId=%s&fileId=%s", baseURL, protocol.APIPrefix, sessionID, desc.ID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &aircodeerr.Transfer{Msg: "download request failed", Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		return &aircodeerr.Protocol{Msg: "session rejected by peer"}
	case http.StatusNotFound:
		return &aircodeerr.Protocol{Msg: fmt.Sprintf("peer no longer has file %q", desc.Name)}
	default:
		return &aircodeerr.Protocol{Msg: fmt.Sprintf("unexpected status %d downloading %q", resp.StatusCode, desc.Name)}
	}

	c.status(fmt.Sprintf("Receiving %s...", desc.Name))
	return writeStream(target, desc.Size, bufio.NewReader(resp.Body))
}

// computeProof mirrors transferserver's proof derivation so client and
// server agree on the same HMAC without sharing a package.
func computeProof(phrase, timestamp, fingerprint string) string {
	mac := hmac.New(sha256.New, []byte(codephrase.Normalize(phrase)))
	mac.Write([]byte(timestamp + ":" + fingerprint))
	return hex.EncodeToString(mac.Sum(nil))
}
