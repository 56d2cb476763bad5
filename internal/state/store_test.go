package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentdesk.org/internal/domain"
)

func TestAuthLifecycle(t *testing.T) {
	s := New()
	assert.False(t, s.Auth().IsAuthenticated)

	s.SetAuthLoading(true)
	assert.True(t, s.Auth().Loading)

	s.SetAuth(&domain.User{ID: 1, Email: "guest@example.com"})
	a := s.Auth()
	require.NotNil(t, a.User)
	assert.True(t, a.IsAuthenticated)
	assert.False(t, a.Loading)
	assert.Equal(t, "guest@example.com", a.User.Email)

	s.Logout()
	a = s.Auth()
	assert.False(t, a.IsAuthenticated)
	assert.Nil(t, a.User)

	s.MarkAuthenticated()
	assert.True(t, s.Auth().IsAuthenticated)
	assert.Nil(t, s.Auth().User)
}

func TestAuthCopiesAreIsolated(t *testing.T) {
	s := New()
	u := &domain.User{ID: 1, Email: "a@example.com"}
	s.SetAuth(u)
	u.Email = "mutated@example.com"

	got := s.Auth()
	assert.Equal(t, "a@example.com", got.User.Email)
	got.User.Email = "changed@example.com"
	assert.Equal(t, "a@example.com", s.Auth().User.Email)
}

func TestBookingTracker(t *testing.T) {
	s := New()
	s.StartBooking()
	assert.True(t, s.Booking().Loading)

	s.BookingFailed("check_out: must be after check_in")
	b := s.Booking()
	assert.False(t, b.Loading)
	assert.Equal(t, "check_out: must be after check_in", b.Error)

	s.BookingSucceeded(domain.Booking{ID: 9, TotalAmount: "300.00"})
	b = s.Booking()
	assert.True(t, b.Success)
	assert.Empty(t, b.Error)
	require.NotNil(t, b.Booking)
	assert.Equal(t, 9, b.Booking.ID)

	s.ResetBooking()
	assert.Equal(t, BookingState{}, s.Booking())
}

func TestPaymentTracker(t *testing.T) {
	s := New()
	s.StartPayment(9)
	assert.Equal(t, 9, s.Payment().BookingID)

	s.PaymentFailed("gateway down")
	p := s.Payment()
	assert.Equal(t, 9, p.BookingID)
	assert.Equal(t, "gateway down", p.Error)

	s.PaymentInitialized(domain.PaymentInit{Booking: 9, Reference: "ref-1", AccessCode: "ac"})
	p = s.Payment()
	assert.True(t, p.Success)
	assert.Equal(t, "ref-1", p.Reference)

	s.PaymentVerified("ref-1")
	assert.True(t, s.Payment().Verified)
}

func TestInquiryTracker(t *testing.T) {
	s := New()
	s.StartInquiry()
	s.InquirySucceeded(5)
	i := s.Inquiry()
	assert.True(t, i.Success)
	assert.Equal(t, 5, i.InquiryID)
	s.ResetInquiry()
	assert.Zero(t, s.Inquiry().InquiryID)
}

func TestSubscribeReceivesSliceNames(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Subscribe(ctx)

	s.Logout()
	s.StartPayment(1)

	var got []Slice
	for len(got) < 2 {
		select {
		case slice := <-ch:
			got = append(got, slice)
		case <-time.After(time.Second):
			t.Fatalf("got %v", got)
		}
	}
	assert.Equal(t, []Slice{SliceAuth, SlicePayment}, got)
}
