package policy

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Store publishes the current Policy to concurrent readers. Readers take one
// snapshot per request; Reload swaps in a freshly parsed Policy.
type Store struct {
	path      string
	languages []string
	current   atomic.Pointer[Policy]
}

// NewStore loads the policy at path (embedded default when empty). A non-empty
// languages override replaces the file's language list on every load.
func NewStore(path string, languages string) (*Store, error) {
	s := &Store{path: path, languages: splitList(languages)}
	if _, err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStaticStore wraps an already built policy and never reloads from disk.
func NewStaticStore(p *Policy) *Store {
	s := &Store{}
	s.current.Store(p)
	return s
}

func (s *Store) Current() *Policy {
	return s.current.Load()
}

// Reload re-reads the policy file. On error the previous policy stays active.
func (s *Store) Reload() (*Policy, error) {
	if s.path == "" && s.current.Load() != nil && len(s.languages) == 0 {
		return s.current.Load(), nil
	}
	p, err := LoadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reload policy: %w", err)
	}
	if len(s.languages) > 0 {
		p = p.WithLanguages(s.languages)
	}
	s.current.Store(p)
	return p, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '|' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
