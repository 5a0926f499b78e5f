package container

import (
	"maps"
	"sync"

	"github.com/robbyt/go-scriptsvc/platform"
)

// varStore keeps the top-level variables that outlive an evaluation.
type varStore struct {
	mu   sync.RWMutex
	vars platform.Bindings
}

func newVarStore() *varStore {
	return &varStore{vars: make(platform.Bindings)}
}

func (s *varStore) snapshot() platform.Bindings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.vars)
}

func (s *varStore) get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

// merge stores every variable in out except the host bindings.
func (s *varStore) merge(out platform.Bindings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range out {
		if platform.IsHostBinding(k) {
			continue
		}
		s.vars[k] = v
	}
}
