package export

import (
	"os"
	"sync"
)

// inflight is the set of export temp files not yet renamed into place.
// A second interrupt abandons the copy in progress, so the CLI removes
// these before exiting.
var inflight tmpSet

type tmpSet struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

func (s *tmpSet) add(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paths == nil {
		s.paths = make(map[string]struct{})
	}
	s.paths[path] = struct{}{}
}

func (s *tmpSet) remove(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.paths, path)
}

func (s *tmpSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}

// drain empties the set and returns what it held.
func (s *tmpSet) drain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.paths))
	for p := range s.paths {
		out = append(out, p)
	}
	s.paths = nil
	return out
}

func registerTmp(path string)   { inflight.add(path) }
func deregisterTmp(path string) { inflight.remove(path) }
func pendingTmpFiles() int      { return inflight.len() }

// CleanupTmpFiles removes the temp files of every export still in flight.
func CleanupTmpFiles() {
	for _, p := range inflight.drain() {
		_ = os.Remove(p)
	}
}
