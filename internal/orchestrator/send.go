// Package orchestrator wires the code-phrase, identity, catalog, beacon,
// and transfer components into the two end-to-end flows a user invokes:
// sending a set of paths, and receiving into a destination directory.
package orchestrator

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aircode-dev/aircode/internal/aircodeerr"
	"github.com/aircode-dev/aircode/internal/beacon"
	"github.com/aircode-dev/aircode/internal/catalog"
	"github.com/aircode-dev/aircode/internal/codephrase"
	"github.com/aircode-dev/aircode/internal/identity"
	"github.com/aircode-dev/aircode/internal/transferserver"
)

// DefaultPortRangeStart and DefaultPortRangeEnd bound the spec's auto-port
// probe, [53317, 53417).
const (
	DefaultPortRangeStart = 53317
	DefaultPortRangeEnd   = 53417
)

// DefaultDiscoverTimeout is the spec's default "discover + connect"
// wall-clock deadline.
const DefaultDiscoverTimeout = 300 * time.Second

// SendConfig configures one send.
type SendConfig struct {
	Paths          []string
	Port           int    // 0 selects an available port in the range below
	PortRangeStart int    // defaults to DefaultPortRangeStart if zero
	PortRangeEnd   int    // defaults to DefaultPortRangeEnd if zero
	Phrase         string // empty generates a fresh one
	Alias          string
	Timeout        time.Duration // defaults to DefaultDiscoverTimeout if zero

	OnPhraseReady func(phrase string)
	OnStatus      func(string)
	OnFileSent    func(name string, index, total int)
}

func (c SendConfig) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultDiscoverTimeout
}

func (c SendConfig) status(msg string) {
	if c.OnStatus != nil {
		c.OnStatus(msg)
	}
}

// Send scans cfg.Paths, stands up a TransferServer and Beacon broadcaster,
// waits for a receiver to connect within cfg.Timeout, then waits for the
// completion barrier before returning.
func Send(ctx context.Context, cfg SendConfig) error {
	cat, err := catalog.Scan(cfg.Paths)
	if err != nil {
		return &aircodeerr.Config{Msg: "no files found", Err: err}
	}

	id, err := identity.New()
	if err != nil {
		return &aircodeerr.TLS{Msg: "generate identity", Err: err}
	}

	phrase := cfg.Phrase
	if phrase == "" {
		phrase, err = codephrase.Generate(nil)
		if err != nil {
			return &aircodeerr.Config{Msg: "generate code phrase", Err: err}
		}
	}
	phrase = codephrase.Normalize(phrase)
	if !codephrase.Validate(phrase) {
		return &aircodeerr.Config{Msg: fmt.Sprintf("invalid code phrase %q", phrase)}
	}
	if cfg.OnPhraseReady != nil {
		cfg.OnPhraseReady(phrase)
	}

	start, end := cfg.PortRangeStart, cfg.PortRangeEnd
	if start == 0 {
		start = DefaultPortRangeStart
	}
	if end == 0 {
		end = DefaultPortRangeEnd
	}

	port := cfg.Port
	if port == 0 {
		port, err = findAvailablePort(start, end)
		if err != nil {
			return &aircodeerr.Discovery{Msg: "no available port in range", Err: err}
		}
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return &aircodeerr.Discovery{Msg: fmt.Sprintf("bind port %d", port), Err: err}
	}

	srv := transferserver.New(transferserver.Config{
		Identity: id,
		Catalog:  cat,
		Phrase:   phrase,
		Alias:    cfg.Alias,
	})

	serveCtx, cancelServe := context.WithCancel(ctx)
	defer cancelServe()

	g, gctx := errgroup.WithContext(serveCtx)
	g.Go(func() error {
		return srv.Serve(gctx, ln)
	})

	bc, err := beacon.NewBroadcaster(beacon.BroadcasterConfig{
		Phrase:      phrase,
		Alias:       cfg.Alias,
		Fingerprint: id.Fingerprint,
		Port:        port,
		UseHTTPS:    true,
	})
	if err != nil {
		cancelServe()
		_ = g.Wait()
		return &aircodeerr.Discovery{Msg: "start beacon broadcaster", Err: err}
	}
	go bc.Start()
	defer bc.Stop()

	cfg.status(fmt.Sprintf("Waiting for receiver (timeout: %s)...", cfg.timeout()))

	var sendErr error
	select {
	case <-srv.ConnectedBarrier():
		cfg.status("Receiver connected! Transferring...")
	case <-time.After(cfg.timeout()):
		sendErr = &aircodeerr.Discovery{Msg: "timed out waiting for a receiver"}
	case <-ctx.Done():
		sendErr = ctx.Err()
	}

	if sendErr == nil {
		select {
		case <-srv.CompleteBarrier():
			cfg.status("Transfer complete.")
			reportDelivered(cfg, cat)
		case <-ctx.Done():
			sendErr = ctx.Err()
		}
	}

	cancelServe()
	_ = g.Wait()
	return sendErr
}

func reportDelivered(cfg SendConfig, cat *catalog.Catalog) {
	if cfg.OnFileSent == nil {
		return
	}
	descs := cat.Descriptors()
	ids := cat.OrderedIDs()
	for i, id := range ids {
		cfg.OnFileSent(descs[id].Name, i+1, len(ids))
	}
}

// findAvailablePort probes ports in [start, end) by binding and immediately
// closing, per spec §4.7's "bind-and-close probe."
func findAvailablePort(start, end int) (int, error) {
	for port := start; port < end; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			continue
		}
		_ = ln.Close()
		return port, nil
	}
	return 0, fmt.Errorf("no available port in [%d, %d)", start, end)
}
