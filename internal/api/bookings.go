package api

import (
	"net/http"
	"net/url"

	"rentdesk.org/internal/cache"
	"rentdesk.org/internal/domain"
	"rentdesk.org/internal/transport"
)

// BookingFilter narrows the booking listing.
type BookingFilter struct {
	Status   domain.BookingStatus `json:"status,omitempty"`
	Property int                  `json:"property,omitempty"`
	Search   string               `json:"search,omitempty"`
	Page     int                  `json:"page,omitempty"`
}

func (f BookingFilter) values() url.Values {
	return transport.Values(
		"status", string(f.Status),
		"property", itoa(f.Property),
		"search", f.Search,
		"page", itoa(f.Page),
	)
}

// StatusChange moves a booking to a new status.
type StatusChange struct {
	ID     int                  `json:"id"`
	Status domain.BookingStatus `json:"status"`
}

var Bookings = func() CRUD[domain.Booking, BookingFilter, domain.BookingDraft] {
	r := crud[domain.Booking, BookingFilter, domain.BookingDraft](
		"Bookings", "/bookings/", TagBooking,
		BookingFilter.values,
		func(b domain.Booking) int { return b.ID },
	)
	r.Create.Invalidates = func(d domain.BookingDraft, _ domain.Booking) []cache.Tag {
		return []cache.Tag{cache.List(TagBooking), idTag(TagAvailability, d.Property)}
	}
	return r
}()

var (
	UpdateBookingStatus = Mutation[StatusChange, domain.Booking]{
		Name: "updateBookingStatus",
		Request: func(s StatusChange) transport.Request {
			return transport.Request{
				Method: http.MethodPatch,
				Path:   itemPath("/bookings/", s.ID) + "status/",
				Body:   map[string]string{"status": string(s.Status)},
			}
		},
		Invalidates: func(s StatusChange, _ domain.Booking) []cache.Tag {
			return []cache.Tag{cache.List(TagBooking), idTag(TagBooking, s.ID), {Type: TagAvailability}}
		},
	}
	CancelBooking   = action[domain.Booking]("cancelBooking", "/bookings/", "cancel", TagBooking, cache.Tag{Type: TagAvailability})
	CheckInBooking  = action[domain.Booking]("checkInBooking", "/bookings/", "check_in", TagBooking)
	CheckOutBooking = action[domain.Booking]("checkOutBooking", "/bookings/", "check_out", TagBooking)
)
