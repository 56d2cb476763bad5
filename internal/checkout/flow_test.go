package checkout

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentdesk.org/internal/api"
	"rentdesk.org/internal/cache"
	"rentdesk.org/internal/domain"
	"rentdesk.org/internal/fakeapi"
	"rentdesk.org/internal/state"
	"rentdesk.org/internal/transport"
)

type stubLauncher struct {
	ready    atomic.Bool
	complete bool
	fail     error

	mu     sync.Mutex
	popups []Popup
}

func (l *stubLauncher) Ready() bool { return l.ready.Load() }

func (l *stubLauncher) Open(_ context.Context, p Popup) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.popups = append(l.popups, p)
	if l.fail != nil {
		return Result{}, l.fail
	}
	if !l.complete {
		return Result{}, nil
	}
	return Result{Completed: true, Reference: p.Reference}, nil
}

func (l *stubLauncher) opened() []Popup {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Popup(nil), l.popups...)
}

type recordingNavigator struct {
	mu      sync.Mutex
	targets []string
}

func (n *recordingNavigator) Navigate(_ context.Context, target string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.targets = append(n.targets, target)
	return nil
}

type fixture struct {
	backend  *fakeapi.Server
	store    *state.Store
	launcher *stubLauncher
	nav      *recordingNavigator
	flow     *Flow
	property domain.Property
}

func newFixture(t *testing.T, ready, complete bool) *fixture {
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
	client := api.New(tc, c, store)

	page, err := api.Fetch(context.Background(), client, api.Properties.List, api.PropertyFilter{Search: "Lekki"})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)

	l := &stubLauncher{complete: complete}
	l.ready.Store(ready)
	nav := &recordingNavigator{}
	return &fixture{
		backend:  backend,
		store:    store,
		launcher: l,
		nav:      nav,
		flow:     New(client, store, l, nav),
		property: page.Results[0],
	}
}

func (fx *fixture) draft() domain.BookingDraft {
	return domain.BookingDraft{
		Property: fx.property.ID,
		FullName: "Ada Guest",
		Email:    "ada@example.com",
		Phone:    "+2348000000000",
		CheckIn:  domain.NewDate(2027, 6, 1),
		CheckOut: domain.NewDate(2027, 6, 3),
		Guests:   2,
	}
}

func TestSubmitRejectsIncompleteDraft(t *testing.T) {
	fx := newFixture(t, true, true)
	d := fx.draft()
	d.Email = "not-an-email"
	d.CheckIn = domain.Date{}
	d.Guests = 0

	_, err := fx.flow.Submit(context.Background(), d)
	require.ErrorIs(t, err, ErrInvalidDraft)
	assert.Contains(t, err.Error(), "email: must be a valid email address")
	assert.Contains(t, err.Error(), "check_in: is required")
	assert.Contains(t, err.Error(), "guests: is required")

	bs := fx.store.Booking()
	assert.False(t, bs.Success)
	assert.NotEmpty(t, bs.Error)
	assert.Zero(t, fx.backend.Hits(http.MethodPost, "/bookings/"))
}

func TestSubmitRejectsReversedDates(t *testing.T) {
	fx := newFixture(t, true, true)
	d := fx.draft()
	d.CheckIn, d.CheckOut = d.CheckOut, d.CheckIn

	_, err := fx.flow.Submit(context.Background(), d)
	require.ErrorIs(t, err, ErrInvalidDraft)
	assert.Contains(t, err.Error(), "check_out: must be after check_in")
}

func TestSubmitRecordsServerFieldErrors(t *testing.T) {
	fx := newFixture(t, true, true)
	d := fx.draft()
	d.Guests = 40

	_, err := fx.flow.Submit(context.Background(), d)
	var te *transport.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusBadRequest, te.Status)
	assert.Contains(t, fx.store.Booking().Error, "guests")

	stage, err := fx.flow.Advance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StageIdle, stage)
}

func TestSubmitSurfacesBackendDateError(t *testing.T) {
	fx := newFixture(t, true, true)
	fx.backend.FailNext(http.MethodPost, "/bookings/", http.StatusBadRequest, map[string]any{
		"check_out": []string{"Check-out must be after check-in."},
	})

	var err error
	require.NotPanics(t, func() {
		_, err = fx.flow.Submit(context.Background(), fx.draft())
	})
	var te *transport.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, []string{"check_out: Check-out must be after check-in."}, te.FieldMessages())

	bs := fx.store.Booking()
	assert.False(t, bs.Success)
	assert.False(t, bs.Loading)
	assert.Equal(t, "check_out: Check-out must be after check-in.", bs.Error)
	assert.Equal(t, 1, fx.backend.Hits(http.MethodPost, "/bookings/"))
}

func TestCheckoutRunsToVerification(t *testing.T) {
	fx := newFixture(t, true, true)
	ctx := context.Background()

	b, stage, err := fx.flow.Checkout(ctx, fx.draft())
	require.NoError(t, err)
	assert.Equal(t, StageRedirected, stage)
	assert.Equal(t, domain.Amount("95000.00"), b.TotalAmount)

	popups := fx.launcher.opened()
	require.Len(t, popups, 1)
	p := popups[0]
	assert.Equal(t, int64(9500000), p.AmountMinor)
	assert.Equal(t, "ada@example.com", p.Email)
	assert.Equal(t, map[string]string{"booking_id": strconv.Itoa(b.ID)}, p.Metadata)
	assert.NotEmpty(t, p.AccessCode)

	require.Len(t, fx.nav.targets, 1)
	assert.Equal(t, "/payment/verify?reference="+url.QueryEscape(p.Reference), fx.nav.targets[0])

	ps := fx.store.Payment()
	assert.True(t, ps.Success)
	assert.Equal(t, b.ID, ps.BookingID)
	assert.Equal(t, p.Reference, ps.Reference)

	// re-running the effect is a no-op
	stage, err = fx.flow.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, StageRedirected, stage)
	assert.Len(t, fx.launcher.opened(), 1)
	assert.Equal(t, 1, fx.backend.Hits(http.MethodPost, "/payments/initialize/"))

	v, err := fx.flow.Verify(ctx, p.Reference)
	require.NoError(t, err)
	assert.True(t, v.Verified())
	assert.True(t, fx.store.Payment().Verified)
	stored, ok := fx.backend.Booking(b.ID)
	require.True(t, ok)
	assert.Equal(t, domain.BookingConfirmed, stored.Status)
}

func TestAdvanceWaitsForLauncher(t *testing.T) {
	fx := newFixture(t, false, true)
	ctx := context.Background()

	_, stage, err := fx.flow.Checkout(ctx, fx.draft())
	require.NoError(t, err)
	assert.Equal(t, StageAwaitingLauncher, stage)
	assert.Empty(t, fx.launcher.opened())

	fx.launcher.ready.Store(true)
	stage, err = fx.flow.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, StageRedirected, stage)
	assert.Equal(t, 1, fx.backend.Hits(http.MethodPost, "/payments/initialize/"))
}

func TestClosedPopupChangesNothing(t *testing.T) {
	fx := newFixture(t, true, false)
	ctx := context.Background()

	_, stage, err := fx.flow.Checkout(ctx, fx.draft())
	require.NoError(t, err)
	assert.Equal(t, StagePopupClosed, stage)
	before := fx.store.Payment()
	assert.True(t, before.Success)
	assert.Empty(t, fx.nav.targets)

	stage, err = fx.flow.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, StagePopupClosed, stage)
	assert.Len(t, fx.launcher.opened(), 1)
	assert.Equal(t, before, fx.store.Payment())
}

func TestInitializeFailureHaltsWithoutRetry(t *testing.T) {
	fx := newFixture(t, true, true)
	ctx := context.Background()
	fx.backend.FailNext(http.MethodPost, "/payments/initialize/", http.StatusBadGateway, map[string]string{"detail": "gateway down"})

	_, stage, err := fx.flow.Checkout(ctx, fx.draft())
	require.Error(t, err)
	assert.Equal(t, StageHalted, stage)
	ps := fx.store.Payment()
	assert.False(t, ps.Success)
	assert.Equal(t, "gateway down", ps.Error)
	// the booking stays behind
	assert.Equal(t, 1, fx.backend.Bookings())

	stage, err = fx.flow.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, StageHalted, stage)
	assert.Equal(t, 1, fx.backend.Hits(http.MethodPost, "/payments/initialize/"))
	assert.Empty(t, fx.launcher.opened())
}

func TestConcurrentAdvanceInitializesOnce(t *testing.T) {
	fx := newFixture(t, true, true)
	ctx := context.Background()
	_, err := fx.flow.Submit(ctx, fx.draft())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = fx.flow.Advance(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fx.backend.Hits(http.MethodPost, "/payments/initialize/"))
	assert.Len(t, fx.launcher.opened(), 1)
}

func TestPopupErrorIsRecorded(t *testing.T) {
	fx := newFixture(t, true, true)
	fx.launcher.fail = errors.New("script blocked")

	_, stage, err := fx.flow.Checkout(context.Background(), fx.draft())
	require.Error(t, err)
	assert.Equal(t, StageHalted, stage)
	assert.Equal(t, "script blocked", fx.store.Payment().Error)
}
