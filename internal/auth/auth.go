// Package auth holds the signed-in session and broadcasts sign-in/out
// transitions. Login flows live outside this core; a token-bearing
// session is accepted as-is.
package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/moneta-app/moneta-go/internal/types"
	"github.com/moneta-app/moneta-go/pkg/moneta"
)

// Service implements moneta.AuthProvider over a session held in memory
// and optionally persisted to a file.
type Service struct {
	mu          sync.Mutex
	session     *types.Session
	watchers    map[int]chan *moneta.Principal
	nextWatcher int
}

// NewService creates an auth service with no session.
func NewService() *Service {
	return &Service{watchers: make(map[int]chan *moneta.Principal)}
}

// SignIn installs a session and notifies watchers. A missing device uuid
// is filled in.
func (s *Service) SignIn(session *types.Session) error {
	if session == nil || session.Token == "" {
		return types.ErrNotAuthenticated
	}
	if session.DeviceUUID == "" {
		session.DeviceUUID = uuid.New().String()
	}

	s.mu.Lock()
	s.session = session
	s.notifyLocked(s.principalLocked())
	s.mu.Unlock()
	return nil
}

// SignOut drops the session and notifies watchers with nil.
func (s *Service) SignOut() {
	s.mu.Lock()
	s.session = nil
	s.notifyLocked(nil)
	s.mu.Unlock()
}

// Current returns the signed-in principal, nil when signed out.
func (s *Service) Current() *moneta.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principalLocked()
}

// Session returns the raw session for transport use, nil when signed out.
func (s *Service) Session() *types.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Changes returns a stream of principal transitions. Each call registers
// a new single-consumer channel; the returned cancel removes the
// registration and closes the channel.
func (s *Service) Changes() (<-chan *moneta.Principal, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextWatcher
	s.nextWatcher++

	ch := make(chan *moneta.Principal, 1)
	s.watchers[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if w, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(w)
		}
	}
	return ch, cancel
}

func (s *Service) principalLocked() *moneta.Principal {
	if s.session == nil {
		return nil
	}
	return &moneta.Principal{UID: s.session.UserID, Email: s.session.Email}
}

func (s *Service) notifyLocked(principal *moneta.Principal) {
	for _, ch := range s.watchers {
		select {
		case ch <- principal:
		default:
			// Conflate: drop the stale pending transition for the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- principal:
			default:
			}
		}
	}
}

// SaveSession saves the session to a file with restrictive permissions.
func (s *Service) SaveSession(path string) error {
	s.mu.Lock()
	session := s.session
	s.mu.Unlock()

	if session == nil {
		return types.ErrNotAuthenticated
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Wrap(err, "failed to create session directory")
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal session")
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write session file")
	}
	return nil
}

// LoadSession loads a session from a file and signs in with it.
func (s *Service) LoadSession(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "failed to read session file")
	}

	var session types.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return errors.Wrap(err, "failed to unmarshal session")
	}

	return s.SignIn(&session)
}
