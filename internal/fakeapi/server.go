// Package fakeapi is an in-memory stand-in for the rental backend. It speaks
// the same wire protocol (cookie JWTs, CSRF header, DRF-style errors and page
// envelopes) and backs the package tests and the dev server.
package fakeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"rentdesk.org/internal/auth"
	"rentdesk.org/internal/domain"
	"rentdesk.org/internal/obs"
)

const (
	accessCookie  = "access"
	refreshCookie = "refresh"
	csrfCookie    = "csrftoken"
)

// Server is safe for concurrent use.
type Server struct {
	mu sync.Mutex

	signer     *auth.Signer
	accessTTL  time.Duration
	refreshTTL time.Duration
	pageSize   int
	logger     *slog.Logger
	sink       ActivitySink
	now        func() time.Time

	seq         int
	users       map[int]*account
	roles       map[int]*domain.Role
	properties  map[int]*domain.Property
	bookings    map[int]*domain.Booking
	payments    map[int]*domain.Payment
	inits       map[string]domain.PaymentInit
	activity    []domain.ActivityLog
	collections map[string]*collection
	access      map[string]int
	refresh     map[string]int

	hits   map[string]int
	faults map[string]fault

	mux *http.ServeMux
}

type account struct {
	user domain.User
	hash string
}

type fault struct {
	status int
	body   any
}

// Option configures a Server.
type Option func(*Server)

// WithAccessTTL sets the lifetime of issued access tokens.
func WithAccessTTL(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.accessTTL = d
		}
	}
}

// WithPageSize sets the number of results per page.
func WithPageSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithLogger overrides the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// ActivitySink receives a copy of every activity log entry.
type ActivitySink interface {
	Append(ctx context.Context, e domain.ActivityLog) error
}

// WithActivitySink archives activity entries outside the in-memory log.
func WithActivitySink(sink ActivitySink) Option {
	return func(s *Server) { s.sink = sink }
}

// WithSecret sets the token signing secret.
func WithSecret(secret string) Option {
	return func(s *Server) {
		if signer, err := auth.NewSigner("rentdesk-fakeapi", []byte(secret)); err == nil {
			s.signer = signer
		}
	}
}

// New returns an empty backend with a default role and the builtin permission catalog.
func New(opts ...Option) *Server {
	signer, _ := auth.NewSigner("rentdesk-fakeapi", []byte("fakeapi-dev-secret"))
	s := &Server{
		signer:      signer,
		accessTTL:   5 * time.Minute,
		refreshTTL:  24 * time.Hour,
		pageSize:    20,
		logger:      obs.Logger(),
		now:         time.Now,
		users:       make(map[int]*account),
		roles:       make(map[int]*domain.Role),
		properties:  make(map[int]*domain.Property),
		bookings:    make(map[int]*domain.Booking),
		payments:    make(map[int]*domain.Payment),
		inits:       make(map[string]domain.PaymentInit),
		collections: make(map[string]*collection),
		access:      make(map[string]int),
		refresh:     make(map[string]int),
		hits:        make(map[string]int),
		faults:      make(map[string]fault),
		mux:         http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.AddRole(domain.Role{Name: "Guest", IsDefault: true})
	s.registerCollections()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/account/jwt/create/", s.handleLogin)
	s.mux.HandleFunc("/api/account/jwt/signup/", s.handleSignup)
	s.mux.HandleFunc("/api/account/jwt/refresh/", s.handleRefresh)
	s.mux.HandleFunc("/api/account/jwt/verify/", s.handleVerify)
	s.mux.HandleFunc("/api/account/logout/", s.handleLogout)
	s.mux.HandleFunc("/api/account/me/", s.handleMe)
	s.mux.HandleFunc("/api/account/users/", s.handleUsers)
	s.mux.HandleFunc("/api/account/roles/", s.handleRoles)
	s.mux.HandleFunc("/api/account/permissions/", s.handlePermissions)
	s.mux.HandleFunc("/api/account/activity-logs/", s.handleActivityLogs)
	s.mux.HandleFunc("/api/properties/", s.handleProperties)
	s.mux.HandleFunc("/api/bookings/", s.handleBookings)
	s.mux.HandleFunc("/api/payments/", s.handlePayments)
	for prefix, c := range s.collections {
		s.mux.HandleFunc("/api"+prefix, s.collectionHandler(c))
	}
	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found.")
	})
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.logging(s.faultInjection(s.withAuth(s.mux)))
}

// Hits counts requests for method and API path (without the /api prefix).
func (s *Server) Hits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+path]
}

// FailNext makes the next request to method and path answer status with body.
func (s *Server) FailNext(method, path string, status int, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method+" "+path] = fault{status: status, body: body}
}

// ExpireAccessTokens invalidates every issued access token.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = make(map[string]int)
}

// RevokeRefreshTokens invalidates every issued refresh token.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = make(map[string]int)
}

func (s *Server) faultInjection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + strings.TrimPrefix(r.URL.Path, "/api")
		s.mu.Lock()
		s.hits[key]++
		f, ok := s.faults[key]
		if ok {
			delete(s.faults, key)
		}
		s.mu.Unlock()
		if ok {
			writeJSON(w, f.status, f.body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// logging: method, path, status, duration
func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		s.logger.Debug("request_complete",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.code,
			"request_id", r.Header.Get("X-Request-ID"),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) nextID() int {
	s.seq++
	return s.seq
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	if code == http.StatusNoContent {
		w.WriteHeader(code)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]any{"detail": detail})
}

// fieldErrors collects DRF-style validation messages.
type fieldErrors map[string][]string

func (f fieldErrors) add(field, msg string) { f[field] = append(f[field], msg) }

func (f fieldErrors) write(w http.ResponseWriter) bool {
	if len(f) == 0 {
		return false
	}
	writeJSON(w, http.StatusBadRequest, f)
	return true
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed.")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("malformed JSON: %w", err)
	}
	return nil
}

// splitID parses "{id}/" or "{id}/{action}/" from the remainder of a path.
func splitID(rest string) (id int, action string, ok bool) {
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || len(parts) > 2 || parts[0] == "" {
		return 0, "", false
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil || id <= 0 {
		return 0, "", false
	}
	if len(parts) == 2 {
		action = parts[1]
	}
	return id, action, true
}
