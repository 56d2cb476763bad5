package state

import "rentdesk.org/internal/domain"

// Auth returns a copy of the session.
func (s *Store) Auth() Auth {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authCopy()
}

// SetAuth records a confirmed identity. A nil user signs out.
func (s *Store) SetAuth(user *domain.User) {
	s.update(SliceAuth, func() {
		if user == nil {
			s.auth = Auth{}
			return
		}
		u := *user
		s.auth = Auth{User: &u, IsAuthenticated: true}
	})
}

// SetAuthLoading flags an in-progress login, signup or verify.
func (s *Store) SetAuthLoading(loading bool) {
	s.update(SliceAuth, func() { s.auth.Loading = loading })
}

// MarkAuthenticated is called after a successful token refresh. The user
// record is kept as is.
func (s *Store) MarkAuthenticated() {
	s.update(SliceAuth, func() {
		s.auth.IsAuthenticated = true
		s.auth.Loading = false
	})
}

// Logout drops the session. Called on explicit logout and failed refresh.
func (s *Store) Logout() {
	s.update(SliceAuth, func() { s.auth = Auth{} })
}

func (s *Store) authCopy() Auth {
	a := s.auth
	if a.User != nil {
		u := *a.User
		a.User = &u
	}
	return a
}

// CurrentUser returns a copy of the signed-in user, or nil.
func (s *Store) CurrentUser() *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authCopy().User
}
