package fakeapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"rentdesk.org/internal/auth"
	"rentdesk.org/internal/domain"
	"rentdesk.org/internal/ids"
)

type userIDKey struct{}

// publicRoute reports whether a request may be served without a session.
func publicRoute(method, path string) bool {
	path = strings.TrimPrefix(path, "/api")
	switch {
	case strings.HasPrefix(path, "/account/jwt/create/"),
		strings.HasPrefix(path, "/account/jwt/signup/"),
		strings.HasPrefix(path, "/account/jwt/refresh/"),
		strings.HasPrefix(path, "/account/logout/"):
		return true
	case method == http.MethodGet && strings.HasPrefix(path, "/properties/"):
		return true
	case method == http.MethodPost && path == "/bookings/":
		return true
	case path == "/payments/initialize/", path == "/payments/verify/":
		return true
	case method == http.MethodPost && (path == "/inquiries/contact/" || path == "/inquiries/property/"):
		return true
	}
	return false
}

func unsafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// withAuth resolves the access cookie. Protected routes answer 401 without a
// live token; authenticated unsafe requests must echo the CSRF cookie.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		public := publicRoute(r.Method, r.URL.Path)
		userID, ok := s.authenticate(r)
		if !ok {
			if public {
				next.ServeHTTP(w, r)
				return
			}
			if _, err := r.Cookie(accessCookie); err != nil {
				writeError(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
				return
			}
			writeError(w, http.StatusUnauthorized, "Given token not valid for any token type")
			return
		}

		if unsafeMethod(r.Method) && !strings.HasPrefix(r.URL.Path, "/api/account/logout/") {
			c, err := r.Cookie(csrfCookie)
			if err != nil || c.Value == "" || r.Header.Get("X-CSRFToken") != c.Value {
				writeError(w, http.StatusForbidden, "CSRF Failed: CSRF token missing or incorrect.")
				return
			}
		}

		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		s.mu.Lock()
		if acc, ok := s.users[userID]; ok {
			ctx = auth.ContextWithUser(ctx, strconv.Itoa(userID), acc.user.Email)
		}
		s.mu.Unlock()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) authenticate(r *http.Request) (int, bool) {
	c, err := r.Cookie(accessCookie)
	if err != nil || c.Value == "" {
		return 0, false
	}
	claims, err := s.signer.Parse(c.Value, auth.AccessToken)
	if err != nil {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.access[claims.ID]
	if !ok {
		return 0, false
	}
	if acc, ok := s.users[userID]; !ok || !acc.user.IsActive {
		return 0, false
	}
	return userID, true
}

func currentUserID(r *http.Request) (int, bool) {
	id, ok := r.Context().Value(userIDKey{}).(int)
	return id, ok && id > 0
}

// require answers 403 unless the current user holds perm.
func (s *Server) require(w http.ResponseWriter, r *http.Request, perm string) bool {
	id, ok := currentUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
		return false
	}
	s.mu.Lock()
	acc := s.users[id]
	var allowed bool
	if acc != nil {
		u := s.userView(acc)
		allowed = auth.Allows(&u, perm)
	}
	s.mu.Unlock()
	if !allowed {
		writeError(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return false
	}
	return true
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	errs := fieldErrors{}
	if strings.TrimSpace(req.Email) == "" {
		errs.add("email", "This field is required.")
	}
	if req.Password == "" {
		errs.add("password", "This field is required.")
	}
	if errs.write(w) {
		return
	}

	s.mu.Lock()
	acc := s.findByEmail(req.Email)
	s.mu.Unlock()
	if acc == nil || !acc.user.IsActive || auth.VerifyPassword(acc.hash, req.Password) != nil {
		writeError(w, http.StatusUnauthorized, "No active account found with the given credentials")
		return
	}
	s.startSession(w, r, acc.user.ID, http.StatusOK)
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Phone     string `json:"phone"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	errs := fieldErrors{}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !strings.Contains(email, "@") {
		errs.add("email", "Enter a valid email address.")
	}
	if len(req.Password) < 8 {
		errs.add("password", "Ensure this field has at least 8 characters.")
	}
	s.mu.Lock()
	if email != "" && s.findByEmail(email) != nil {
		errs.add("email", "user with this email already exists.")
	}
	s.mu.Unlock()
	if errs.write(w) {
		return
	}

	u, err := s.AddUser(domain.User{Email: email, FirstName: req.FirstName, LastName: req.LastName, Phone: req.Phone, IsActive: true}, req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.startSession(w, r, u.ID, http.StatusCreated)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, userID int, code int) {
	s.mu.Lock()
	acc := s.users[userID]
	email := acc.user.Email
	s.mu.Unlock()

	access, accessExp, err := s.signer.Issue(auth.AccessToken, userID, email, s.accessTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	refresh, refreshExp, err := s.signer.Issue(auth.RefreshToken, userID, email, s.refreshTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	accessClaims, _ := s.signer.Parse(access, auth.AccessToken)
	refreshClaims, _ := s.signer.Parse(refresh, auth.RefreshToken)

	now := s.now().UTC()
	s.mu.Lock()
	s.access[accessClaims.ID] = userID
	s.refresh[refreshClaims.ID] = userID
	acc.user.LastLogin = &now
	view := s.userView(acc)
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: accessCookie, Value: access, Path: "/", Expires: accessExp, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	http.SetCookie(w, &http.Cookie{Name: refreshCookie, Value: refresh, Path: "/", Expires: refreshExp, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	http.SetCookie(w, &http.Cookie{Name: csrfCookie, Value: strings.ToLower(ids.RequestID()), Path: "/", SameSite: http.SameSiteLaxMode})
	s.record(r, userID, "login", "user", userID, "Signed in")
	writeJSON(w, code, map[string]any{"user": view})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	c, err := r.Cookie(refreshCookie)
	if err != nil || c.Value == "" {
		writeError(w, http.StatusUnauthorized, "Token is invalid or expired")
		return
	}
	claims, err := s.signer.Parse(c.Value, auth.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Token is invalid or expired")
		return
	}
	s.mu.Lock()
	userID, ok := s.refresh[claims.ID]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusUnauthorized, "Token is invalid or expired")
		return
	}

	access, exp, err := s.signer.Issue(auth.AccessToken, userID, claims.Email, s.accessTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	accessClaims, _ := s.signer.Parse(access, auth.AccessToken)
	s.mu.Lock()
	s.access[accessClaims.ID] = userID
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: accessCookie, Value: access, Path: "/", Expires: exp, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	s.mu.Lock()
	for _, name := range []string{accessCookie, refreshCookie} {
		c, err := r.Cookie(name)
		if err != nil {
			continue
		}
		kind := auth.AccessToken
		if name == refreshCookie {
			kind = auth.RefreshToken
		}
		if claims, err := s.signer.Parse(c.Value, kind); err == nil {
			delete(s.access, claims.ID)
			delete(s.refresh, claims.ID)
		}
	}
	s.mu.Unlock()
	for _, name := range []string{accessCookie, refreshCookie, csrfCookie} {
		http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1})
	}
	writeJSON(w, http.StatusOK, map[string]any{"detail": "Successfully logged out."})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
		return
	}
	u, ok := s.me(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	u, ok := s.me(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) me(r *http.Request) (domain.User, bool) {
	id, ok := currentUserID(r)
	if !ok {
		return domain.User{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.users[id]
	if !ok {
		return domain.User{}, false
	}
	return s.userView(acc), true
}
