package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"rentdesk.org/internal/cache"
	"rentdesk.org/internal/domain"
	"rentdesk.org/internal/transport"
)

// Tag types.
const (
	TagAuth              = "Auth"
	TagProperty          = "Property"
	TagAvailability      = "Availability"
	TagBooking           = "Booking"
	TagPayment           = "Payment"
	TagContactInquiry    = "ContactInquiry"
	TagPropertyInquiry   = "PropertyInquiry"
	TagLocation          = "Location"
	TagItem              = "Item"
	TagStock             = "Stock"
	TagPropertyInventory = "PropertyInventory"
	TagMovement          = "StockMovement"
	TagUser              = "User"
	TagRole              = "Role"
	TagPermission        = "Permission"
	TagActivityLog       = "ActivityLog"
	TagDispute           = "Dispute"
	TagCalendar          = "ExternalCalendar"
)

// None is the argument of endpoints that take no input.
type None struct{}

// Patch is a partial update of the resource ID.
type Patch struct {
	ID     int            `json:"id"`
	Fields map[string]any `json:"fields"`
}

// CRUD groups the standard collection endpoints of a resource. C is the create payload.
type CRUD[T, F, C any] struct {
	List   Query[F, domain.Page[T]]
	Get    Query[int, T]
	Create Mutation[C, T]
	Update Mutation[Patch, T]
	Delete Mutation[int, None]
}

func crud[T, F, C any](name, path, tag string, filter func(F) url.Values, id func(T) int) CRUD[T, F, C] {
	return CRUD[T, F, C]{
		List: Query[F, domain.Page[T]]{
			Name: "list" + name,
			Request: func(f F) transport.Request {
				return transport.Request{Method: http.MethodGet, Path: path, Query: filter(f)}
			},
			Provides: pageTags[F](tag, id),
		},
		Get: Query[int, T]{
			Name: "get" + name,
			Request: func(i int) transport.Request {
				return transport.Request{Method: http.MethodGet, Path: itemPath(path, i)}
			},
			Provides: func(i int, _ T) []cache.Tag { return []cache.Tag{idTag(tag, i)} },
		},
		Create: Mutation[C, T]{
			Name: "create" + name,
			Request: func(in C) transport.Request {
				return transport.Request{Method: http.MethodPost, Path: path, Body: in}
			},
			Invalidates: func(_ C, _ T) []cache.Tag { return []cache.Tag{cache.List(tag)} },
		},
		Update: Mutation[Patch, T]{
			Name: "update" + name,
			Request: func(p Patch) transport.Request {
				return transport.Request{Method: http.MethodPatch, Path: itemPath(path, p.ID), Body: p.Fields}
			},
			Invalidates: func(p Patch, _ T) []cache.Tag { return []cache.Tag{cache.List(tag), idTag(tag, p.ID)} },
		},
		Delete: Mutation[int, None]{
			Name: "delete" + name,
			Request: func(i int) transport.Request {
				return transport.Request{Method: http.MethodDelete, Path: itemPath(path, i)}
			},
			Invalidates: func(i int, _ None) []cache.Tag { return []cache.Tag{cache.List(tag), idTag(tag, i)} },
		},
	}
}

// action is a POST to a detail route such as /bookings/{id}/cancel/.
func action[T any](name, path, verb, tag string, extra ...cache.Tag) Mutation[int, T] {
	return Mutation[int, T]{
		Name: name,
		Request: func(i int) transport.Request {
			return transport.Request{Method: http.MethodPost, Path: itemPath(path, i) + verb + "/"}
		},
		Invalidates: func(i int, _ T) []cache.Tag {
			return append([]cache.Tag{cache.List(tag), idTag(tag, i)}, extra...)
		},
	}
}

func pageTags[A, T any](tag string, id func(T) int) func(A, domain.Page[T]) []cache.Tag {
	return func(_ A, page domain.Page[T]) []cache.Tag {
		tags := make([]cache.Tag, 0, len(page.Results)+1)
		tags = append(tags, cache.List(tag))
		for _, item := range page.Results {
			tags = append(tags, idTag(tag, id(item)))
		}
		return tags
	}
}

// also appends tags to the invalidations of m.
func also[A, T any](m Mutation[A, T], extra ...cache.Tag) Mutation[A, T] {
	base := m.Invalidates
	m.Invalidates = func(a A, t T) []cache.Tag {
		var tags []cache.Tag
		if base != nil {
			tags = base(a, t)
		}
		return append(tags, extra...)
	}
	return m
}

func idTag(tag string, id int) cache.Tag {
	return cache.T(tag, strconv.Itoa(id))
}

func itemPath(path string, id int) string {
	return fmt.Sprintf("%s%d/", path, id)
}

func itoa(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func boolParam(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}

func noFilter(None) url.Values { return nil }
