package fakeapi

import (
	"net/http"
	"strings"

	"rentdesk.org/internal/auth"
	"rentdesk.org/internal/domain"
	"rentdesk.org/internal/ids"
)

const publicKey = "pk_test_rentdesk"

func (s *Server) handlePayments(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/payments/")
	switch {
	case rest == "initialize/":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		s.initializePayment(w, r)
	case rest == "verify/":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		s.verifyPayment(w, r)
	case rest == "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		if s.require(w, r, auth.PermViewPayments) {
			s.listPayments(w, r)
		}
	default:
		id, action, ok := splitID(rest)
		if !ok || action != "" {
			writeError(w, http.StatusNotFound, "Not found.")
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		if !s.require(w, r, auth.PermViewPayments) {
			return
		}
		s.mu.Lock()
		p, found := s.payments[id]
		var out domain.Payment
		if found {
			out = *p
		}
		s.mu.Unlock()
		if !found {
			writeError(w, http.StatusNotFound, "Not found.")
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// initializePayment opens a pending payment for a booking. A repeated
// Idempotency-Key replays the first answer with 200.
func (s *Server) initializePayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BookingID   int    `json:"booking_id"`
		Email       string `json:"email"`
		CallbackURL string `json:"callback_url"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := r.Header.Get("Idempotency-Key")

	s.mu.Lock()
	if key != "" {
		if prev, ok := s.inits[key]; ok {
			s.mu.Unlock()
			writeJSON(w, http.StatusOK, prev)
			return
		}
	}
	b, ok := s.bookings[req.BookingID]
	if !ok {
		s.mu.Unlock()
		errs := fieldErrors{}
		errs.add("booking_id", "Booking not found.")
		errs.write(w)
		return
	}
	if b.PaymentStatus == "paid" {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "Booking has already been paid.")
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = b.Email
	}
	p := &domain.Payment{
		ID:        s.nextID(),
		Booking:   b.ID,
		Reference: "PAY-" + ids.RequestID(),
		Amount:    b.TotalAmount,
		Currency:  "NGN",
		Status:    "pending",
		CreatedAt: s.now().UTC(),
	}
	s.payments[p.ID] = p
	access := strings.ToLower(ids.RequestID())
	init := domain.PaymentInit{
		Reference:        p.Reference,
		AuthorizationURL: "https://checkout.rentdesk.test/" + access,
		AccessCode:       access,
		Amount:           p.Amount,
		Email:            email,
		Booking:          b.ID,
		PublicKey:        publicKey,
	}
	if key != "" {
		s.inits[key] = init
	}
	s.mu.Unlock()

	s.recordRequest(r, "initialize", "payment", p.ID, p.Reference)
	writeJSON(w, http.StatusCreated, init)
}

func (s *Server) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimSpace(r.URL.Query().Get("reference"))
	if ref == "" {
		errs := fieldErrors{}
		errs.add("reference", "This field is required.")
		errs.write(w)
		return
	}
	s.mu.Lock()
	var p *domain.Payment
	for _, candidate := range s.payments {
		if candidate.Reference == ref {
			p = candidate
			break
		}
	}
	if p == nil {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Payment not found.")
		return
	}
	now := s.now().UTC()
	if p.Status != "success" {
		p.Status = "success"
		p.Channel = "card"
		p.PaidAt = &now
	}
	if b, ok := s.bookings[p.Booking]; ok {
		b.PaymentStatus = "paid"
		if b.Status == domain.BookingPending {
			b.Status = domain.BookingConfirmed
		}
	}
	out := domain.PaymentVerification{
		Status:    p.Status,
		Reference: p.Reference,
		Booking:   p.Booking,
		Amount:    p.Amount,
		Message:   "Verification successful",
	}
	id := p.ID
	s.mu.Unlock()

	s.recordRequest(r, "verify", "payment", id, ref)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listPayments(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	var results []any
	for _, id := range sortedIDs(s.payments) {
		p := *s.payments[id]
		if matches(toMap(p), r.URL.Query()) {
			results = append(results, p)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.paginate(r, results))
}
