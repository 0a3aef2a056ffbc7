// Package protocol owns the wire formats aircode's sender and receiver
// exchange: the multicast beacon envelope and the HTTPS JSON bodies under
// /api/localsend/v2. Beacon datagrams are decoded here; the HTTP handlers
// and client decode request and response bodies directly into these typed
// structs, so no package works on raw JSON maps.
package protocol

import (
	"encoding/json"
	"fmt"
)

// APIPrefix is the HTTP path prefix every transfer endpoint lives under.
const APIPrefix = "/api/localsend/v2"

// Version is the wire-format version both the beacon payload and the
// /info response advertise.
const Version = "2.0"

// FileType is the coarse category FileCatalog assigns by extension.
type FileType string

const (
	FileTypeImage FileType = "image"
	FileTypeVideo FileType = "video"
	FileTypePDF   FileType = "pdf"
	FileTypeText  FileType = "text"
	FileTypeAPK   FileType = "apk"
	FileTypeOther FileType = "other"
)

// FileMetadata carries optional filesystem timestamps for a FileDescriptor.
type FileMetadata struct {
	Modified *int64 `json:"modified,omitempty"`
	Accessed *int64 `json:"accessed,omitempty"`
}

// FileDescriptor describes a single file offered by the sender's catalog.
type FileDescriptor struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Size     uint64        `json:"size"`
	FileType FileType      `json:"fileType"`
	Metadata *FileMetadata `json:"metadata,omitempty"`
}

// DeviceInfo is the public metadata a peer exposes on /info and embeds in
// the prepare-upload handshake.
type DeviceInfo struct {
	Alias       string `json:"alias"`
	Version     string `json:"version"`
	DeviceModel string `json:"deviceModel"`
	DeviceType  string `json:"deviceType"`
	Fingerprint string `json:"fingerprint"`
	Port        int    `json:"port,omitempty"`
	Protocol    string `json:"protocol,omitempty"`
	Download    bool   `json:"download"`
}

// CliAuth is the proof-of-phrase block attached to prepare-upload.
type CliAuth struct {
	Timestamp string `json:"timestamp"`
	Proof     string `json:"proof"`
}

// PrepareUploadRequest is the body POSTed to /prepare-upload.
type PrepareUploadRequest struct {
	Info    DeviceInfo                `json:"info"`
	Files   map[string]FileDescriptor `json:"files"`
	CliAuth *CliAuth                  `json:"cliAuth"`
}

// PrepareUploadResponse is returned on a successful handshake.
type PrepareUploadResponse struct {
	SessionID string                    `json:"sessionId"`
	Files     map[string]FileDescriptor `json:"files"`
}

// InfoResponse is returned by GET /info.
type InfoResponse struct {
	Alias       string `json:"alias"`
	Version     string `json:"version"`
	DeviceModel string `json:"deviceModel"`
	DeviceType  string `json:"deviceType"`
	Fingerprint string `json:"fingerprint"`
	Download    bool   `json:"download"`
}

// BeaconPayload is the inner, HMAC-signed content of a BeaconMessage.
type BeaconPayload struct {
	Alias        string `json:"alias"`
	Version      string `json:"version"`
	DeviceModel  string `json:"deviceModel"`
	DeviceType   string `json:"deviceType"`
	Fingerprint  string `json:"fingerprint"`
	Port         int    `json:"port"`
	Protocol     string `json:"protocol"`
	Announce     bool   `json:"announce"`
	CodeHash     string `json:"codeHash"`
	CliSessionID string `json:"cliSessionId"`
	CliMode      bool   `json:"cliMode"`
}

// BeaconMessage is the outer multicast envelope. Data holds the exact JSON
// string the HMAC was computed over — callers MUST verify against this raw
// string, never against a reserialization of the parsed payload.
type BeaconMessage struct {
	Data string `json:"data"`
	HMAC string `json:"hmac"`
}

// EncodeBeaconPayload marshals payload and returns the raw JSON string (to
// be HMAC-signed and sent verbatim), so callers never reserialize.
func EncodeBeaconPayload(payload BeaconPayload) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode beacon payload: %w", err)
	}
	return string(b), nil
}

// DecodeBeaconMessage parses the outer envelope only, without touching the
// inner Data string — the caller verifies the HMAC before ever unmarshaling
// Data into a BeaconPayload.
func DecodeBeaconMessage(raw []byte) (BeaconMessage, error) {
	var msg BeaconMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return BeaconMessage{}, err
	}
	if msg.Data == "" || msg.HMAC == "" {
		return BeaconMessage{}, fmt.Errorf("beacon envelope missing data or hmac")
	}
	return msg, nil
}

// DecodeBeaconPayload parses the inner payload string. Call only after HMAC
// verification has succeeded.
func DecodeBeaconPayload(data string) (BeaconPayload, error) {
	var p BeaconPayload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return BeaconPayload{}, err
	}
	return p, nil
}
