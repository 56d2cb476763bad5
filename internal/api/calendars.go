package api

import (
	"net/url"

	"rentdesk.org/internal/cache"
	"rentdesk.org/internal/domain"
	"rentdesk.org/internal/transport"
)

// CalendarFilter narrows the external calendar listing.
type CalendarFilter struct {
	Property int   `json:"property,omitempty"`
	IsActive *bool `json:"is_active,omitempty"`
}

func (f CalendarFilter) values() url.Values {
	return transport.Values("property", itoa(f.Property), "is_active", boolParam(f.IsActive))
}

var (
	Calendars = crud[domain.ExternalCalendar, CalendarFilter, domain.ExternalCalendar](
		"Calendars", "/external-calendars/", TagCalendar,
		CalendarFilter.values,
		func(c domain.ExternalCalendar) int { return c.ID },
	)
	// A sync imports blocked dates, which shows up in bookings and availability.
	SyncCalendar = action[domain.CalendarSyncResult]("syncCalendar", "/external-calendars/", "sync", TagCalendar,
		cache.List(TagBooking), cache.Tag{Type: TagAvailability})
)
