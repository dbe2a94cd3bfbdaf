package api

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"storemodel/internal/engine"
	"storemodel/internal/format"
	"storemodel/internal/journal"
)

var errUnknownSession = errors.New("unknown session")

// session is one oracle: a model plus, optionally, the journal of what was
// applied to it. mu serializes every access to the model.
type session struct {
	id      uuid.UUID
	format  format.Format
	mu      sync.Mutex
	model   *engine.Model
	journal *journal.Journal
}

type sessions struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]*session
}

func newSessions() *sessions {
	return &sessions{byID: make(map[uuid.UUID]*session)}
}

func (ss *sessions) get(id uuid.UUID) (*session, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	s, ok := ss.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownSession, id)
	}
	return s, nil
}

func (ss *sessions) add(s *session) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.byID[s.id] = s
}

func (ss *sessions) remove(id uuid.UUID) (*session, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	s, ok := ss.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownSession, id)
	}
	delete(ss.byID, id)
	return s, nil
}

func (ss *sessions) drain() []*session {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	out := make([]*session, 0, len(ss.byID))
	for id, s := range ss.byID {
		out = append(out, s)
		delete(ss.byID, id)
	}
	return out
}

func (ss *sessions) len() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.byID)
}

func journalPath(dir string, id uuid.UUID) string {
	return filepath.Join(dir, id.String()+".journal")
}

func (s *session) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}
