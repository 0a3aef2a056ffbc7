package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/aircode-dev/aircode/internal/aircodeerr"
	"github.com/aircode-dev/aircode/internal/beacon"
	"github.com/aircode-dev/aircode/internal/codephrase"
	"github.com/aircode-dev/aircode/internal/identity"
	"github.com/aircode-dev/aircode/internal/transferclient"
)

// ReceiveConfig configures one receive.
type ReceiveConfig struct {
	Phrase     string
	OutputDir  string
	AutoAccept bool
	Timeout    time.Duration // defaults to DefaultDiscoverTimeout if zero

	Prompter transferclient.Prompter
	OnStatus func(string)
	OnFile   func(name string, size uint64)
}

func (c ReceiveConfig) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultDiscoverTimeout
}

func (c ReceiveConfig) status(msg string) {
	if c.OnStatus != nil {
		c.OnStatus(msg)
	}
}

// Receive validates cfg.Phrase, listens for the first verified beacon
// within cfg.Timeout, then runs the full TransferClient flow against that
// peer.
func Receive(ctx context.Context, cfg ReceiveConfig) error {
	phrase := codephrase.Normalize(cfg.Phrase)
	if !codephrase.Validate(phrase) {
		return &aircodeerr.Config{Msg: fmt.Sprintf("invalid code phrase %q", cfg.Phrase)}
	}

	listener, err := beacon.NewListener(beacon.ListenerConfig{Phrase: phrase})
	if err != nil {
		return &aircodeerr.Discovery{Msg: "start beacon listener", Err: err}
	}
	defer listener.Close()

	listenCtx, cancelListen := context.WithTimeout(ctx, cfg.timeout())
	defer cancelListen()

	cfg.status(fmt.Sprintf("Listening for sender (timeout: %s)...", cfg.timeout()))

	devices := listener.Listen(listenCtx)
	var peer beacon.Device
	select {
	case dev, ok := <-devices:
		if !ok {
			return &aircodeerr.Discovery{Msg: "timed out waiting for a sender"}
		}
		peer = dev
	case <-listenCtx.Done():
		return &aircodeerr.Discovery{Msg: "timed out waiting for a sender"}
	}

	cfg.status(fmt.Sprintf("Found %s, connecting...", peer.Alias))

	clientID, err := identity.New()
	if err != nil {
		return &aircodeerr.TLS{Msg: "generate client identity", Err: err}
	}

	client, err := transferclient.New(transferclient.Config{
		Phrase:     phrase,
		OutputDir:  cfg.OutputDir,
		AutoAccept: cfg.AutoAccept,
		ClientFP:   clientID.Fingerprint,
		Prompter:   cfg.Prompter,
		OnStatus:   cfg.OnStatus,
		OnProgress: func(p transferclient.Progress) {
			if cfg.OnFile != nil {
				cfg.OnFile(p.Name, p.Size)
			}
		},
	}, peer)
	if err != nil {
		return err
	}

	baseURL := peer.Scheme + "://" + peer.Addr()
	return client.Run(ctx, baseURL, peer.Fingerprint)
}
