package api

import (
	"context"

	"golang.org/x/sync/errgroup"

	"rentdesk.org/internal/domain"
)

// DashboardSummary is the back-office landing page counters.
type DashboardSummary struct {
	Properties        int
	Bookings          int
	PendingBookings   int
	ConfirmedBookings int
	Payments          int
	UnreadInquiries   int
	OpenDisputes      int
}

// Dashboard loads the counters concurrently. The first error cancels the rest.
func (c *Client) Dashboard(ctx context.Context) (DashboardSummary, error) {
	var (
		s      DashboardSummary
		unread bool
	)
	g, ctx := errgroup.WithContext(ctx)
	count := func(dst *int, load func(context.Context) (int, error)) {
		g.Go(func() error {
			n, err := load(ctx)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		})
	}

	count(&s.Properties, func(ctx context.Context) (int, error) {
		p, err := Fetch(ctx, c, Properties.List, PropertyFilter{})
		return p.Count, err
	})
	count(&s.Bookings, func(ctx context.Context) (int, error) {
		p, err := Fetch(ctx, c, Bookings.List, BookingFilter{})
		return p.Count, err
	})
	count(&s.PendingBookings, func(ctx context.Context) (int, error) {
		p, err := Fetch(ctx, c, Bookings.List, BookingFilter{Status: domain.BookingPending})
		return p.Count, err
	})
	count(&s.ConfirmedBookings, func(ctx context.Context) (int, error) {
		p, err := Fetch(ctx, c, Bookings.List, BookingFilter{Status: domain.BookingConfirmed})
		return p.Count, err
	})
	count(&s.Payments, func(ctx context.Context) (int, error) {
		p, err := Fetch(ctx, c, ListPayments, PaymentFilter{})
		return p.Count, err
	})
	count(&s.UnreadInquiries, func(ctx context.Context) (int, error) {
		p, err := Fetch(ctx, c, ContactInquiries.List, InquiryFilter{IsRead: &unread})
		return p.Count, err
	})
	count(&s.OpenDisputes, func(ctx context.Context) (int, error) {
		p, err := Fetch(ctx, c, Disputes.List, DisputeFilter{Status: "open"})
		return p.Count, err
	})

	if err := g.Wait(); err != nil {
		return DashboardSummary{}, err
	}
	return s, nil
}
