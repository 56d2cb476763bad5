package api

import (
	"fmt"
	"net/http"
	"net/url"

	"rentdesk.org/internal/cache"
	"rentdesk.org/internal/domain"
	"rentdesk.org/internal/transport"
)

// PropertyFilter narrows the property listing. Zero values are not sent.
type PropertyFilter struct {
	Search       string `json:"search,omitempty"`
	City         string `json:"city,omitempty"`
	PropertyType string `json:"property_type,omitempty"`
	Bedrooms     int    `json:"bedrooms,omitempty"`
	Guests       int    `json:"guests,omitempty"`
	MinPrice     string `json:"min_price,omitempty"`
	MaxPrice     string `json:"max_price,omitempty"`
	Featured     *bool  `json:"is_featured,omitempty"`
	Page         int    `json:"page,omitempty"`
}

func (f PropertyFilter) values() url.Values {
	return transport.Values(
		"search", f.Search,
		"city", f.City,
		"property_type", f.PropertyType,
		"bedrooms", itoa(f.Bedrooms),
		"guests", itoa(f.Guests),
		"min_price", f.MinPrice,
		"max_price", f.MaxPrice,
		"is_featured", boolParam(f.Featured),
		"page", itoa(f.Page),
	)
}

// AvailabilityQuery asks whether a property is free for a stay.
type AvailabilityQuery struct {
	PropertyID int         `json:"property"`
	CheckIn    domain.Date `json:"check_in"`
	CheckOut   domain.Date `json:"check_out"`
}

var Properties = crud[domain.Property, PropertyFilter, domain.Property](
	"Properties", "/properties/", TagProperty,
	PropertyFilter.values,
	func(p domain.Property) int { return p.ID },
)

// PropertyAvailability depends on bookings, so it also provides the booking list tag.
var PropertyAvailability = Query[AvailabilityQuery, domain.Availability]{
	Name: "propertyAvailability",
	Request: func(q AvailabilityQuery) transport.Request {
		return transport.Request{
			Method: http.MethodGet,
			Path:   fmt.Sprintf("/properties/%d/availability/", q.PropertyID),
			Query:  transport.Values("check_in", q.CheckIn.String(), "check_out", q.CheckOut.String()),
		}
	},
	Provides: func(q AvailabilityQuery, _ domain.Availability) []cache.Tag {
		return []cache.Tag{idTag(TagAvailability, q.PropertyID), cache.List(TagBooking)}
	},
}
