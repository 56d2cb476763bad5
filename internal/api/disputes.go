package api

import (
	"net/http"
	"net/url"

	"rentdesk.org/internal/cache"
	"rentdesk.org/internal/domain"
	"rentdesk.org/internal/transport"
)

// DisputeFilter narrows the dispute listing.
type DisputeFilter struct {
	Status  string `json:"status,omitempty"`
	Booking int    `json:"booking,omitempty"`
	Page    int    `json:"page,omitempty"`
}

func (f DisputeFilter) values() url.Values {
	return transport.Values("status", f.Status, "booking", itoa(f.Booking), "page", itoa(f.Page))
}

// Resolution closes a dispute.
type Resolution struct {
	ID         int    `json:"-"`
	Resolution string `json:"resolution"`
}

var (
	Disputes = crud[domain.Dispute, DisputeFilter, domain.Dispute](
		"Disputes", "/disputes/", TagDispute,
		DisputeFilter.values,
		func(d domain.Dispute) int { return d.ID },
	)
	ResolveDispute = Mutation[Resolution, domain.Dispute]{
		Name: "resolveDispute",
		Request: func(r Resolution) transport.Request {
			return transport.Request{Method: http.MethodPost, Path: itemPath("/disputes/", r.ID) + "resolve/", Body: r}
		},
		Invalidates: func(r Resolution, d domain.Dispute) []cache.Tag {
			return []cache.Tag{cache.List(TagDispute), idTag(TagDispute, r.ID), idTag(TagBooking, d.Booking)}
		},
	}
)
