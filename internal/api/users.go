package api

import (
	"net/http"
	"net/url"

	"rentdesk.org/internal/cache"
	"rentdesk.org/internal/domain"
	"rentdesk.org/internal/transport"
)

// UserFilter narrows the user listing.
type UserFilter struct {
	Search   string `json:"search,omitempty"`
	Role     int    `json:"role,omitempty"`
	IsActive *bool  `json:"is_active,omitempty"`
	Page     int    `json:"page,omitempty"`
}

func (f UserFilter) values() url.Values {
	return transport.Values("search", f.Search, "role", itoa(f.Role), "is_active", boolParam(f.IsActive), "page", itoa(f.Page))
}

// NewUser is the back-office user creation payload.
type NewUser struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	RoleID    *int   `json:"role_id,omitempty"`
	IsActive  bool   `json:"is_active"`
	IsStaff   bool   `json:"is_staff"`
}

// RoleInput creates a role.
type RoleInput struct {
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	Permissions     []string `json:"permissions"`
	IsSuperuserRole bool     `json:"is_superuser_role"`
	IsDefault       bool     `json:"is_default"`
}

// ActivityFilter narrows the activity log.
type ActivityFilter struct {
	User         int    `json:"user,omitempty"`
	Action       string `json:"action,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
	Page         int    `json:"page,omitempty"`
}

func (f ActivityFilter) values() url.Values {
	return transport.Values("user", itoa(f.User), "action", f.Action, "resource_type", f.ResourceType, "page", itoa(f.Page))
}

var (
	Users = crud[domain.User, UserFilter, NewUser](
		"Users", "/account/users/", TagUser,
		UserFilter.values,
		func(u domain.User) int { return u.ID },
	)

	// Roles are embedded in user records, so role writes also refresh user lists.
	Roles = func() CRUD[domain.Role, None, RoleInput] {
		r := crud[domain.Role, None, RoleInput](
			"Roles", "/account/roles/", TagRole,
			noFilter,
			func(r domain.Role) int { return r.ID },
		)
		r.Update = also(r.Update, cache.List(TagUser))
		r.Delete = also(r.Delete, cache.List(TagUser))
		return r
	}()

	ListPermissions = Query[None, []domain.Permission]{
		Name: "listPermissions",
		Request: func(None) transport.Request {
			return transport.Request{Method: http.MethodGet, Path: "/account/permissions/"}
		},
		Provides: func(None, []domain.Permission) []cache.Tag { return []cache.Tag{cache.List(TagPermission)} },
	}

	ListActivityLogs = Query[ActivityFilter, domain.Page[domain.ActivityLog]]{
		Name: "listActivityLogs",
		Request: func(f ActivityFilter) transport.Request {
			return transport.Request{Method: http.MethodGet, Path: "/account/activity-logs/", Query: f.values()}
		},
		Provides: pageTags[ActivityFilter](TagActivityLog, func(l domain.ActivityLog) int { return l.ID }),
	}
)
