package transferserver

import (
	"sync"

	"github.com/google/uuid"

	"github.com/aircode-dev/aircode/internal/catalog"
	"github.com/aircode-dev/aircode/pkg/protocol"
)

// session is the single active transfer session a TransferServer accepts.
// Spec §9 fixes the "second prepare-upload" open question as: return the
// existing session, don't rotate it, don't re-signal.
type session struct {
	mu        sync.Mutex
	id        string
	delivered map[string]struct{}
}

func newSessionID() string {
	return uuid.NewString()
}

// deliver records fileID as delivered and reports whether every distinct
// file id in the catalog has now been delivered at least once, so a
// retried download of the same file never fires the completion barrier
// early.
func (s *session) deliver(fileID string, catalogSize int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delivered == nil {
		s.delivered = make(map[string]struct{})
	}
	s.delivered[fileID] = struct{}{}
	return len(s.delivered) == catalogSize
}

func (s *session) matches(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id != "" && s.id == id
}

func filesResponse(cat *catalog.Catalog) map[string]protocol.FileDescriptor {
	return cat.Descriptors()
}
