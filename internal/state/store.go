// Package state holds the process-wide client state: the auth session and the
// progress trackers of the guest-facing flows. All mutation goes through Store
// methods; readers get copies.
package state

import (
	"context"
	"sync"

	"rentdesk.org/internal/domain"
	"rentdesk.org/internal/stream"
)

// Slice names a part of the store, sent to subscribers on change.
type Slice string

const (
	SliceAuth    Slice = "auth"
	SliceBooking Slice = "booking"
	SliceInquiry Slice = "inquiry"
	SlicePayment Slice = "payment"
)

// Auth is the session as the client knows it.
type Auth struct {
	User            *domain.User
	IsAuthenticated bool
	Loading         bool
}

// Tracker is the progress of one submission.
type Tracker struct {
	Loading bool
	Error   string
	Success bool
}

// BookingState tracks the last booking submission.
type BookingState struct {
	Tracker
	Booking *domain.Booking
}

// InquiryState tracks the last inquiry submission.
type InquiryState struct {
	Tracker
	InquiryID int
}

// PaymentState tracks payment initialization and verification.
type PaymentState struct {
	Tracker
	BookingID        int
	Reference        string
	AuthorizationURL string
	AccessCode       string
	Verified         bool
}

// Snapshot is a copy of the whole store.
type Snapshot struct {
	Auth    Auth
	Booking BookingState
	Inquiry InquiryState
	Payment PaymentState
}

// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	auth    Auth
	booking BookingState
	inquiry InquiryState
	payment PaymentState

	changes *stream.Stream[Slice]
}

// New returns an empty, signed-out store.
func New() *Store {
	return &Store{changes: stream.New[Slice](16)}
}

// Subscribe streams the names of changed slices until ctx ends.
func (s *Store) Subscribe(ctx context.Context) <-chan Slice {
	return s.changes.Subscribe(ctx)
}

// Snapshot copies the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Auth:    s.authCopy(),
		Booking: s.bookingCopy(),
		Inquiry: s.inquiry,
		Payment: s.payment,
	}
}

func (s *Store) update(slice Slice, fn func()) {
	s.mu.Lock()
	fn()
	s.mu.Unlock()
	s.changes.Publish(slice)
}
