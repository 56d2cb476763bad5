package api

import (
	"net/http"
	"net/url"
	"strconv"

	"rentdesk.org/internal/cache"
	"rentdesk.org/internal/domain"
	"rentdesk.org/internal/ids"
	"rentdesk.org/internal/transport"
)

// PaymentFilter narrows the payment listing.
type PaymentFilter struct {
	Status  string `json:"status,omitempty"`
	Booking int    `json:"booking,omitempty"`
	Page    int    `json:"page,omitempty"`
}

func (f PaymentFilter) values() url.Values {
	return transport.Values("status", f.Status, "booking", itoa(f.Booking), "page", itoa(f.Page))
}

// PaymentRequest starts a payment for a booking.
type PaymentRequest struct {
	BookingID   int    `json:"booking_id"`
	Email       string `json:"email,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"`
}

var (
	ListPayments = Query[PaymentFilter, domain.Page[domain.Payment]]{
		Name: "listPayments",
		Request: func(f PaymentFilter) transport.Request {
			return transport.Request{Method: http.MethodGet, Path: "/payments/", Query: f.values()}
		},
		Provides: pageTags[PaymentFilter](TagPayment, func(p domain.Payment) int { return p.ID }),
	}
	GetPayment = Query[int, domain.Payment]{
		Name: "getPayment",
		Request: func(id int) transport.Request {
			return transport.Request{Method: http.MethodGet, Path: itemPath("/payments/", id)}
		},
		Provides: func(id int, _ domain.Payment) []cache.Tag { return []cache.Tag{idTag(TagPayment, id)} },
	}
	// InitializePayment carries an idempotency key derived from the booking,
	// so a resubmission for the same booking maps to the same payment.
	InitializePayment = Mutation[PaymentRequest, domain.PaymentInit]{
		Name: "initializePayment",
		Request: func(p PaymentRequest) transport.Request {
			h := http.Header{}
			h.Set("Idempotency-Key", ids.IdempotencyKey("payment", strconv.Itoa(p.BookingID)))
			return transport.Request{Method: http.MethodPost, Path: "/payments/initialize/", Body: p, Header: h}
		},
		Invalidates: func(p PaymentRequest, _ domain.PaymentInit) []cache.Tag {
			return []cache.Tag{cache.List(TagPayment), idTag(TagBooking, p.BookingID)}
		},
	}
	VerifyPayment = Mutation[string, domain.PaymentVerification]{
		Name: "verifyPayment",
		Request: func(reference string) transport.Request {
			return transport.Request{Method: http.MethodGet, Path: "/payments/verify/", Query: transport.Values("reference", reference)}
		},
		Invalidates: func(_ string, v domain.PaymentVerification) []cache.Tag {
			return []cache.Tag{cache.List(TagPayment), cache.List(TagBooking), idTag(TagBooking, v.Booking)}
		},
	}
)
