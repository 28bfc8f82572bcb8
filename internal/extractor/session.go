package extractor

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

// Session binds one document to the handles its backends open. Handles are
// opened on first use and shared by every page of the document.
type Session struct {
	ID    string
	Path  string
	Pages int

	mu        sync.Mutex
	resources map[string]io.Closer
	closed    bool
}

// NewSession creates a session for the PDF at path.
func NewSession(path string, pages int) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Path:      path,
		Pages:     pages,
		resources: make(map[string]io.Closer),
	}
}

// Resource returns the handle cached under key, opening it with open on the
// first call. A failed open is not cached.
func (s *Session) Resource(key string, open func(path string) (io.Closer, error)) (io.Closer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("session %s closed", s.ID)
	}
	if r, ok := s.resources[key]; ok {
		return r, nil
	}
	r, err := open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s handle: %w", key, err)
	}
	s.resources[key] = r
	return r, nil
}

// CheckPage validates a 0-based page index against the document.
func (s *Session) CheckPage(pageIndex int) error {
	if pageIndex < 0 || (s.Pages > 0 && pageIndex >= s.Pages) {
		return fmt.Errorf("page %d out of range (document has %d pages)", pageIndex+1, s.Pages)
	}
	return nil
}

// Close releases every handle. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for key, r := range s.resources {
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
	}
	s.resources = nil
	return errors.Join(errs...)
}
