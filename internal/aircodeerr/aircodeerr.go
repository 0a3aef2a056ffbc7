// Package aircodeerr defines the error taxonomy shared across aircode's
// subsystems so callers can branch on failure kind with errors.As instead of
// matching message strings.
package aircodeerr

import "fmt"

// Config reports a bad path, invalid code phrase, or no files found.
type Config struct {
	Msg string
	Err error
}

func (e *Config) Error() string { return "config: " + e.Msg }
func (e *Config) Unwrap() error { return e.Err }

// Discovery reports a timeout awaiting a peer or a busy multicast port.
type Discovery struct {
	Msg string
	Err error
}

func (e *Discovery) Error() string { return "discovery: " + e.Msg }
func (e *Discovery) Unwrap() error { return e.Err }

// Auth reports an HMAC/proof mismatch, an expired timestamp, or a missing
// cliAuth block.
type Auth struct {
	Msg string
}

func (e *Auth) Error() string { return "auth: " + e.Msg }

// TLS reports a fingerprint mismatch or handshake failure.
type TLS struct {
	Msg string
	Err error
}

func (e *TLS) Error() string { return "tls: " + e.Msg }
func (e *TLS) Unwrap() error { return e.Err }

// Protocol reports an unexpected status, malformed JSON, or a missing
// required field.
type Protocol struct {
	Msg string
	Err error
}

func (e *Protocol) Error() string { return "protocol: " + e.Msg }
func (e *Protocol) Unwrap() error { return e.Err }

// Transfer reports a network reset mid-stream, a sink write failure, a size
// cap violation, or a path-traversal attempt.
type Transfer struct {
	Msg string
	Err error
}

func (e *Transfer) Error() string { return "transfer: " + e.Msg }
func (e *Transfer) Unwrap() error { return e.Err }

// User reports a declined confirmation or a declined rename prompt.
type User struct {
	Msg string
}

func (e *User) Error() string { return "user: " + e.Msg }

// Wrap annotates err with a static prefix while preserving it for errors.Is/As.
func Wrap(prefix string, err error) error {
	return fmt.Errorf("%s: %w", prefix, err)
}
