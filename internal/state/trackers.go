package state

import "rentdesk.org/internal/domain"

// Booking returns a copy of the booking tracker.
func (s *Store) Booking() BookingState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bookingCopy()
}

// StartBooking marks a booking submission in flight.
func (s *Store) StartBooking() {
	s.update(SliceBooking, func() {
		s.booking = BookingState{Tracker: Tracker{Loading: true}}
	})
}

// BookingSucceeded stores the created booking.
func (s *Store) BookingSucceeded(b domain.Booking) {
	s.update(SliceBooking, func() {
		s.booking = BookingState{Tracker: Tracker{Success: true}, Booking: &b}
	})
}

// BookingFailed records a submission error.
func (s *Store) BookingFailed(msg string) {
	s.update(SliceBooking, func() {
		s.booking = BookingState{Tracker: Tracker{Error: msg}}
	})
}

// ResetBooking clears the tracker.
func (s *Store) ResetBooking() {
	s.update(SliceBooking, func() { s.booking = BookingState{} })
}

func (s *Store) bookingCopy() BookingState {
	b := s.booking
	if b.Booking != nil {
		cp := *b.Booking
		b.Booking = &cp
	}
	return b
}

// Inquiry returns a copy of the inquiry tracker.
func (s *Store) Inquiry() InquiryState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inquiry
}

// StartInquiry marks an inquiry submission in flight.
func (s *Store) StartInquiry() {
	s.update(SliceInquiry, func() {
		s.inquiry = InquiryState{Tracker: Tracker{Loading: true}}
	})
}

// InquirySucceeded stores the created inquiry id.
func (s *Store) InquirySucceeded(id int) {
	s.update(SliceInquiry, func() {
		s.inquiry = InquiryState{Tracker: Tracker{Success: true}, InquiryID: id}
	})
}

// InquiryFailed records a submission error.
func (s *Store) InquiryFailed(msg string) {
	s.update(SliceInquiry, func() {
		s.inquiry = InquiryState{Tracker: Tracker{Error: msg}}
	})
}

// ResetInquiry clears the tracker.
func (s *Store) ResetInquiry() {
	s.update(SliceInquiry, func() { s.inquiry = InquiryState{} })
}

// Payment returns a copy of the payment tracker.
func (s *Store) Payment() PaymentState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.payment
}

// StartPayment marks payment initialization for a booking in flight.
func (s *Store) StartPayment(bookingID int) {
	s.update(SlicePayment, func() {
		s.payment = PaymentState{Tracker: Tracker{Loading: true}, BookingID: bookingID}
	})
}

// PaymentInitialized stores the payment handle.
func (s *Store) PaymentInitialized(init domain.PaymentInit) {
	s.update(SlicePayment, func() {
		s.payment = PaymentState{
			Tracker:          Tracker{Success: true},
			BookingID:        init.Booking,
			Reference:        init.Reference,
			AuthorizationURL: init.AuthorizationURL,
			AccessCode:       init.AccessCode,
		}
	})
}

// PaymentVerified flags the current reference as verified by the server.
func (s *Store) PaymentVerified(reference string) {
	s.update(SlicePayment, func() {
		if s.payment.Reference == "" {
			s.payment.Reference = reference
		}
		s.payment.Loading = false
		s.payment.Error = ""
		s.payment.Verified = true
	})
}

// PaymentFailed records an error, keeping the booking it belongs to.
func (s *Store) PaymentFailed(msg string) {
	s.update(SlicePayment, func() {
		s.payment.Loading = false
		s.payment.Success = false
		s.payment.Error = msg
	})
}

// ResetPayment clears the tracker.
func (s *Store) ResetPayment() {
	s.update(SlicePayment, func() { s.payment = PaymentState{} })
}
