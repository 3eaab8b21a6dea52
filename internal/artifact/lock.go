package artifact

import "sync"

type nameLock struct {
	mu   sync.Mutex
	refs int
}

// Lock serialises work on one resolved file name. Captures of different
// names proceed in parallel. The returned function releases the lock.
func (s *Store) Lock(fileName string) func() {
	s.mu.Lock()
	l, ok := s.locks[fileName]
	if !ok {
		l = &nameLock{}
		s.locks[fileName] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, fileName)
		}
		s.mu.Unlock()
	}
}
