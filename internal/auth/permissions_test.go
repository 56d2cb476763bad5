package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"rentdesk.org/internal/domain"
)

func TestAllows(t *testing.T) {
	staff := &domain.User{IsActive: true, Role: &domain.Role{Permissions: []string{PermViewBookings}}}
	owner := &domain.User{IsActive: true, Role: &domain.Role{IsSuperuserRole: true}}
	root := &domain.User{IsActive: true, IsSuperuser: true}
	disabled := &domain.User{IsActive: false, IsSuperuser: true}

	assert.True(t, Allows(staff, PermViewBookings))
	assert.False(t, Allows(staff, PermManageRoles))
	assert.True(t, Allows(owner, PermManageRoles))
	assert.True(t, Allows(root, PermManageUsers))
	assert.False(t, Allows(disabled, PermViewBookings))
	assert.False(t, Allows(nil, PermViewBookings))
	assert.False(t, Allows(&domain.User{IsActive: true}, PermViewBookings))
}

func TestPermissionLabels(t *testing.T) {
	assert.Equal(t, []string{"All"}, PermissionLabels(domain.Role{IsSuperuserRole: true, Permissions: []string{PermViewBookings}}))
	assert.Equal(t,
		[]string{PermManageBookings, PermViewBookings},
		PermissionLabels(domain.Role{Permissions: []string{PermViewBookings, PermManageBookings, PermViewBookings}}),
	)
	assert.Nil(t, PermissionLabels(domain.Role{}))
}

func TestKnownPermission(t *testing.T) {
	assert.True(t, KnownPermission(PermManageCalendars))
	assert.False(t, KnownPermission("ledger.transfer"))
}

func TestContextHelpers(t *testing.T) {
	ctx := ContextWithUser(context.Background(), " 7 ", "ops@example.com")
	id, ok := UserIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "7", id)

	_, ok = UserIDFromContext(ContextWithUser(context.Background(), "", ""))
	assert.False(t, ok)
}
