package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentdesk.org/internal/cache"
	"rentdesk.org/internal/domain"
	"rentdesk.org/internal/fakeapi"
	"rentdesk.org/internal/state"
	"rentdesk.org/internal/transport"
)

type harness struct {
	backend *fakeapi.Server
	store   *state.Store
	client  *Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := fakeapi.New()
	_, err := backend.Seed()
	require.NoError(t, err)
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)

	store := state.New()
	tc, err := transport.New(srv.URL, transport.WithSessionObserver(store))
	require.NoError(t, err)
	c := cache.New()
	t.Cleanup(c.Close)
	return &harness{backend: backend, store: store, client: New(tc, c, store)}
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	_, err := h.client.Login(context.Background(), Credentials{Email: "owner@rentdesk.test", Password: "rentdesk-owner"})
	require.NoError(t, err)
}

func (h *harness) property(t *testing.T, title string) domain.Property {
	t.Helper()
	page, err := Fetch(context.Background(), h.client, Properties.List, PropertyFilter{Search: title})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	return page.Results[0]
}

func newDraft(property int, in, out domain.Date) domain.BookingDraft {
	return domain.BookingDraft{
		Property: property,
		FullName: "Ada Guest",
		Email:    "ada@example.com",
		Phone:    "+2348000000000",
		CheckIn:  in,
		CheckOut: out,
		Guests:   1,
	}
}

func TestLoginRecordsSession(t *testing.T) {
	h := newHarness(t)
	u, err := h.client.Login(context.Background(), Credentials{Email: "owner@rentdesk.test", Password: "rentdesk-owner"})
	require.NoError(t, err)
	assert.Equal(t, "owner@rentdesk.test", u.Email)

	a := h.store.Auth()
	assert.True(t, a.IsAuthenticated)
	assert.False(t, a.Loading)
	require.NotNil(t, a.User)
	assert.Equal(t, u.ID, a.User.ID)
}

func TestLoginFailureClearsLoading(t *testing.T) {
	h := newHarness(t)
	_, err := h.client.Login(context.Background(), Credentials{Email: "owner@rentdesk.test", Password: "wrong"})
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrUnauthorized)

	a := h.store.Auth()
	assert.False(t, a.IsAuthenticated)
	assert.False(t, a.Loading)
	// a failed login never triggers a refresh
	assert.Zero(t, h.backend.Hits(http.MethodPost, "/account/jwt/refresh/"))
}

func TestVerifyRestoresSession(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.store.SetAuth(nil)

	u, err := h.client.Verify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "owner@rentdesk.test", u.Email)
	assert.True(t, h.store.Auth().IsAuthenticated)
}

func TestExpiredAccessTokenRefreshesTransparently(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.backend.ExpireAccessTokens()

	page, err := Fetch(context.Background(), h.client, Bookings.List, BookingFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Count)
	assert.Equal(t, 1, h.backend.Hits(http.MethodPost, "/account/jwt/refresh/"))
	assert.Equal(t, 2, h.backend.Hits(http.MethodGet, "/bookings/"))
	assert.True(t, h.store.Auth().IsAuthenticated)
}

func TestFailedRefreshLogsOut(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.backend.ExpireAccessTokens()
	h.backend.RevokeRefreshTokens()

	_, err := Fetch(context.Background(), h.client, Bookings.List, BookingFilter{})
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrUnauthorized)

	a := h.store.Auth()
	assert.False(t, a.IsAuthenticated)
	assert.Nil(t, a.User)
}

func TestWatchRefetchesAfterMutation(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	w := Watch(h.client, Bookings.List, BookingFilter{})
	defer w.Close()
	first, err := w.Wait(ctx)
	require.NoError(t, err)
	require.True(t, first.HasData)
	assert.Equal(t, 0, first.Data.Count)

	p := h.property(t, "Wuse")
	_, err = Run(ctx, h.client, Bookings.Create, newDraft(p.ID, domain.NewDate(2027, 3, 1), domain.NewDate(2027, 3, 4)))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		r := w.Current()
		return !r.Loading && r.Data.Count == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, h.backend.Hits(http.MethodGet, "/bookings/"))
}

func TestFailedMutationDoesNotInvalidate(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	w := Watch(h.client, Bookings.List, BookingFilter{})
	defer w.Close()
	_, err := w.Wait(ctx)
	require.NoError(t, err)

	d := newDraft(9999, domain.NewDate(2027, 3, 1), domain.NewDate(2027, 3, 1))
	_, err = Run(ctx, h.client, Bookings.Create, d)
	require.Error(t, err)
	var te *transport.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusBadRequest, te.Status)
	assert.Contains(t, te.Fields, "property")
	assert.Contains(t, te.Fields, "check_out")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.backend.Hits(http.MethodGet, "/bookings/"))
	assert.False(t, w.Current().Stale)
}

func TestDeleteRoleInvalidatesRoleAndUsers(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	list := Watch(h.client, Roles.List, None{})
	defer list.Close()
	roles, err := list.Wait(ctx)
	require.NoError(t, err)
	var desk domain.Role
	for _, r := range roles.Data.Results {
		if r.Name == "Front desk" {
			desk = r
		}
	}
	require.NotZero(t, desk.ID)

	role := Watch(h.client, Roles.Get, desk.ID)
	defer role.Close()
	users := Watch(h.client, Users.List, UserFilter{})
	defer users.Close()
	_, err = role.Wait(ctx)
	require.NoError(t, err)
	_, err = users.Wait(ctx)
	require.NoError(t, err)

	require.Equal(t, 1, h.backend.Hits(http.MethodGet, "/account/roles/"))

	_, err = Run(ctx, h.client, Roles.Delete, desk.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		r := role.Current()
		return !r.Loading && errors.Is(r.Err, transport.ErrNotFound)
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return h.backend.Hits(http.MethodGet, "/account/users/") == 2 && !users.Current().Loading
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return !list.Current().Loading }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, h.backend.Hits(http.MethodGet, "/account/roles/"))
	for _, r := range list.Current().Data.Results {
		assert.NotEqual(t, desk.ID, r.ID)
	}
	for _, u := range users.Current().Data.Results {
		if u.Role != nil {
			assert.NotEqual(t, desk.ID, u.Role.ID)
		}
	}
}

func TestPaymentInitializeIsIdempotentPerBooking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p := h.property(t, "Lekki")
	b, err := Run(ctx, h.client, Bookings.Create, newDraft(p.ID, domain.NewDate(2027, 4, 1), domain.NewDate(2027, 4, 3)))
	require.NoError(t, err)

	first, err := Run(ctx, h.client, InitializePayment, PaymentRequest{BookingID: b.ID})
	require.NoError(t, err)
	second, err := Run(ctx, h.client, InitializePayment, PaymentRequest{BookingID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, first.Reference, second.Reference)

	v, err := Run(ctx, h.client, VerifyPayment, first.Reference)
	require.NoError(t, err)
	assert.True(t, v.Verified())
	assert.Equal(t, b.ID, v.Booking)
}

func TestDashboardCounts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p := h.property(t, "Ikoyi")
	_, err := Run(ctx, h.client, Bookings.Create, newDraft(p.ID, domain.NewDate(2027, 5, 1), domain.NewDate(2027, 5, 2)))
	require.NoError(t, err)
	_, err = Run(ctx, h.client, ContactInquiries.Create, domain.Inquiry{Name: "Ada", Email: "ada@example.com", Message: "Hello"})
	require.NoError(t, err)

	h.login(t)
	sum, err := h.client.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, DashboardSummary{
		Properties:      3,
		Bookings:        1,
		PendingBookings: 1,
		UnreadInquiries: 1,
	}, sum)
}

func TestLogoutClearsSession(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	require.NoError(t, h.client.Logout(context.Background()))
	assert.False(t, h.store.Auth().IsAuthenticated)

	_, err := h.client.Me(context.Background())
	assert.ErrorIs(t, err, transport.ErrUnauthorized)
}

func TestLogoutRefetchesAuthQueriesOnce(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	me := Watch(h.client, MeEndpoint, None{})
	defer me.Close()
	_, err := me.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, h.backend.Hits(http.MethodGet, "/account/me/"))

	require.NoError(t, h.client.Logout(ctx))
	require.Eventually(t, func() bool {
		r := me.Current()
		return !r.Loading && r.Err != nil
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.ErrorIs(t, me.Current().Err, transport.ErrUnauthorized)
	assert.Equal(t, 2, h.backend.Hits(http.MethodGet, "/account/me/"))
	assert.Equal(t, 1, h.backend.Hits(http.MethodPost, "/account/jwt/refresh/"))
	assert.False(t, h.store.Auth().IsAuthenticated)
}
