package auth

import (
	"sort"

	"rentdesk.org/internal/domain"
)

const (
	PermViewDashboard    = "view_dashboard"
	PermViewBookings     = "view_bookings"
	PermManageBookings   = "manage_bookings"
	PermViewPayments     = "view_payments"
	PermManageProperties = "manage_properties"
	PermManageInquiries  = "manage_inquiries"
	PermManageInventory  = "manage_inventory"
	PermManageUsers      = "manage_users"
	PermManageRoles      = "manage_roles"
	PermViewActivityLogs = "view_activity_logs"
	PermManageDisputes   = "manage_disputes"
	PermManageCalendars  = "manage_calendars"
)

// BuiltinPermissions is the catalog the back-office understands.
var BuiltinPermissions = []domain.Permission{
	{Codename: PermViewDashboard, Name: "View dashboard", Category: "dashboard"},
	{Codename: PermViewBookings, Name: "View bookings", Category: "bookings"},
	{Codename: PermManageBookings, Name: "Manage bookings", Category: "bookings"},
	{Codename: PermViewPayments, Name: "View payments", Category: "payments"},
	{Codename: PermManageProperties, Name: "Manage properties", Category: "properties"},
	{Codename: PermManageInquiries, Name: "Manage inquiries", Category: "inquiries"},
	{Codename: PermManageInventory, Name: "Manage inventory", Category: "inventory"},
	{Codename: PermManageUsers, Name: "Manage users", Category: "users"},
	{Codename: PermManageRoles, Name: "Manage roles", Category: "users"},
	{Codename: PermViewActivityLogs, Name: "View activity logs", Category: "users"},
	{Codename: PermManageDisputes, Name: "Manage disputes", Category: "bookings"},
	{Codename: PermManageCalendars, Name: "Manage external calendars", Category: "properties"},
}

// Allows reports whether user may perform perm. Superusers and holders of a
// superuser role may do anything.
func Allows(user *domain.User, perm string) bool {
	if user == nil || !user.IsActive {
		return false
	}
	if user.IsSuperuser {
		return true
	}
	if user.Role == nil {
		return false
	}
	if user.Role.IsSuperuserRole {
		return true
	}
	for _, p := range user.Role.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionLabels lists a role's permissions for display. A superuser role
// shows as "All" regardless of its stored set.
func PermissionLabels(role domain.Role) []string {
	if role.IsSuperuserRole {
		return []string{"All"}
	}
	seen := make(map[string]struct{}, len(role.Permissions))
	var out []string
	for _, p := range role.Permissions {
		if _, ok := seen[p]; ok || p == "" {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// KnownPermission reports whether codename is in the builtin catalog.
func KnownPermission(codename string) bool {
	for _, p := range BuiltinPermissions {
		if p.Codename == codename {
			return true
		}
	}
	return false
}
