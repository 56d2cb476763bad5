package api

import (
	"net/url"

	"rentdesk.org/internal/domain"
	"rentdesk.org/internal/transport"
)

// InquiryFilter narrows an inquiry listing.
type InquiryFilter struct {
	IsRead      *bool  `json:"is_read,omitempty"`
	IsResponded *bool  `json:"is_responded,omitempty"`
	Property    int    `json:"property,omitempty"`
	Search      string `json:"search,omitempty"`
	Page        int    `json:"page,omitempty"`
}

func (f InquiryFilter) values() url.Values {
	return transport.Values(
		"is_read", boolParam(f.IsRead),
		"is_responded", boolParam(f.IsResponded),
		"property", itoa(f.Property),
		"search", f.Search,
		"page", itoa(f.Page),
	)
}

// InquiryEndpoints is the endpoint set shared by both inquiry kinds.
type InquiryEndpoints struct {
	CRUD[domain.Inquiry, InquiryFilter, domain.Inquiry]
	MarkRead      Mutation[int, domain.Inquiry]
	MarkResponded Mutation[int, domain.Inquiry]
}

func inquiryEndpoints(name, path, tag string) InquiryEndpoints {
	return InquiryEndpoints{
		CRUD: crud[domain.Inquiry, InquiryFilter, domain.Inquiry](
			name, path, tag,
			InquiryFilter.values,
			func(i domain.Inquiry) int { return i.ID },
		),
		MarkRead:      action[domain.Inquiry]("markRead"+name, path, "mark_read", tag),
		MarkResponded: action[domain.Inquiry]("markResponded"+name, path, "mark_responded", tag),
	}
}

var (
	ContactInquiries  = inquiryEndpoints("ContactInquiries", "/inquiries/contact/", TagContactInquiry)
	PropertyInquiries = inquiryEndpoints("PropertyInquiries", "/inquiries/property/", TagPropertyInquiry)
)
