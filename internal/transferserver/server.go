// Package transferserver implements the sender-side HTTPS endpoints under
// /api/localsend/v2: manifest handshake, per-IP rate limiting, and the
// one-shot "receiver connected" / "transfer complete" barriers the send
// orchestrator awaits.
package transferserver

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/aircode-dev/aircode/internal/aircodeerr"
	"github.com/aircode-dev/aircode/internal/catalog"
	"github.com/aircode-dev/aircode/internal/codephrase"
	"github.com/aircode-dev/aircode/internal/identity"
	"github.com/aircode-dev/aircode/pkg/protocol"
)

const authWindow = 5 * time.Minute
const completionGrace = 500 * time.Millisecond

// Config bundles everything a Server needs to serve a single transfer.
type Config struct {
	Identity *identity.Identity
	Catalog  *catalog.Catalog
	Phrase   string // canonical code phrase
	Alias    string
}

// Server is aircode's sender-side HTTPS endpoint. One Server serves exactly
// one transfer session's worth of files.
type Server struct {
	cfg Config

	rate *rateLimiter

	mu       sync.Mutex
	sess     *session
	signaled bool

	connectedBarrier *barrier
	completeBarrier  *barrier

	httpServer *http.Server
}

// New constructs a Server bound to cfg. It does not start listening.
func New(cfg Config) *Server {
	return &Server{
		cfg:              cfg,
		rate:             newRateLimiter(),
		connectedBarrier: newBarrier(),
		completeBarrier:  newBarrier(),
	}
}

// ConnectedBarrier fires the moment the first valid /prepare-upload lands.
func (s *Server) ConnectedBarrier() <-chan struct{} { return s.connectedBarrier.Done() }

// CompleteBarrier fires once every catalog file has been delivered, plus a
// 500ms network-buffer flush grace.
func (s *Server) CompleteBarrier() <-chan struct{} { return s.completeBarrier.Done() }

// Serve starts accepting TLS connections on ln until ctx is canceled. It
// blocks until the listener is closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	tlsCfg, err := s.cfg.Identity.ServerTLSConfig()
	if err != nil {
		return &aircodeerr.TLS{Msg: "build server TLS config", Err: err}
	}

	mux := http.NewServeMux()
	mux.HandleFunc(protocol.APIPrefix+"/info", s.handleInfo)
	mux.HandleFunc(protocol.APIPrefix+"/prepare-upload", s.handlePrepareUpload)
	mux.HandleFunc(protocol.APIPrefix+"/download", s.handleDownload)
	mux.HandleFunc("/", http.NotFound)

	s.httpServer = &http.Server{
		Handler:   recoverMiddleware(mux),
		TLSConfig: tlsCfg,
	}

	tlsLn := tls.NewListener(ln, tlsCfg)

	go func() {
		<-ctx.Done()
		_ = s.httpServer.Close()
	}()

	err = s.httpServer.Serve(tlsLn)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("transferserver: recovered panic in handler: %v", rec)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) bool {
	if !s.rate.Allow(clientIP(r), time.Now()) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		log.Printf("transferserver: rate limit exceeded for %s", clientIP(r))
		return true
	}
	return false
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if s.rateLimited(w, r) {
		return
	}
	resp := protocol.InfoResponse{
		Alias:       s.cfg.Alias,
		Version:     protocol.Version,
		DeviceModel: "CLI",
		DeviceType:  "headless",
		Fingerprint: s.cfg.Identity.Fingerprint,
		Download:    true,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePrepareUpload(w http.ResponseWriter, r *http.Request) {
	if s.rateLimited(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req protocol.PrepareUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	if req.CliAuth == nil || req.CliAuth.Timestamp == "" || req.CliAuth.Proof == "" {
		http.Error(w, "authentication missing", http.StatusUnauthorized)
		return
	}

	if !withinWindow(req.CliAuth.Timestamp) {
		http.Error(w, "authentication expired", http.StatusUnauthorized)
		return
	}

	expected := computeProof(s.cfg.Phrase, req.CliAuth.Timestamp, s.cfg.Identity.Fingerprint)
	if !constantTimeHexEqual(expected, req.CliAuth.Proof) {
		log.Printf("transferserver: Warning: proof mismatch from %s", clientIP(r))
		http.Error(w, "proof mismatch", http.StatusForbidden)
		return
	}

	s.mu.Lock()
	if s.sess == nil {
		s.sess = &session{id: newSessionID()}
	}
	sess := s.sess
	firstSignal := !s.signaled
	s.signaled = true
	s.mu.Unlock()

	if firstSignal {
		s.connectedBarrier.Signal()
	}

	resp := protocol.PrepareUploadResponse{
		SessionID: sess.id,
		Files:     filesResponse(s.cfg.Catalog),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if s.rateLimited(w, r) {
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	fileID := r.URL.Query().Get("fileId")

	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()

	if sess == nil || !sess.matches(sessionID) {
		http.Error(w, "unknown session", http.StatusForbidden)
		return
	}

	if !s.cfg.Catalog.Has(fileID) {
		http.Error(w, "unknown file", http.StatusNotFound)
		return
	}

	rc, name, err := s.cfg.Catalog.Open(fileID)
	if err != nil {
		http.Error(w, "read failed", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	desc := s.cfg.Catalog.Descriptors()[fileID]

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.FormatUint(desc.Size, 10))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		return
	}

	if sess.deliver(fileID, s.cfg.Catalog.Len()) {
		time.AfterFunc(completionGrace, s.completeBarrier.Signal)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withinWindow(timestampMs string) bool {
	ms, err := strconv.ParseInt(timestampMs, 10, 64)
	if err != nil {
		return false
	}
	ts := time.UnixMilli(ms)
	diff := time.Since(ts)
	if diff < 0 {
		diff = -diff
	}
	return diff <= authWindow
}

// computeProof returns HMAC-SHA256(canonical_phrase, "timestamp:fingerprint")
// as lowercase hex.
func computeProof(phrase, timestamp, fingerprint string) string {
	mac := hmac.New(sha256.New, []byte(codephrase.Normalize(phrase)))
	mac.Write([]byte(timestamp + ":" + fingerprint))
	return hex.EncodeToString(mac.Sum(nil))
}

func constantTimeHexEqual(expectedHex, gotHex string) bool {
	expected, err1 := hex.DecodeString(expectedHex)
	got, err2 := hex.DecodeString(gotHex)
	if err1 != nil || err2 != nil || len(expected) != len(got) {
		return false
	}
	return subtle.ConstantTimeCompare(expected, got) == 1
}
