//go:build !unix

package beacon

import "syscall"

// reuseAddrControl is a no-op on non-unix platforms; the listener falls
// back to default bind semantics there.
func reuseAddrControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
