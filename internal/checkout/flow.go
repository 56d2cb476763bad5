// Package checkout sequences the guest booking pipeline: create the booking,
// initialize its payment, open the provider popup and hand the reference to
// the verification route. Each stage only starts once the previous one has
// succeeded in the state store; a failed stage halts the pipeline.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"rentdesk.org/internal/api"
	"rentdesk.org/internal/domain"
	"rentdesk.org/internal/obs"
	"rentdesk.org/internal/state"
	"rentdesk.org/internal/transport"
)

// DefaultVerifyPath is the route receiving ?reference= after a completed payment.
const DefaultVerifyPath = "/payment/verify"

var (
	ErrInvalidDraft  = errors.New("invalid booking draft")
	ErrInvalidAmount = errors.New("invalid amount")
)

// Popup is what the payment provider widget is opened with.
type Popup struct {
	Email            string
	AmountMinor      int64
	Reference        string
	AccessCode       string
	AuthorizationURL string
	PublicKey        string
	Metadata         map[string]string
}

// Result is how the popup ended. Completed is false when the guest closed it.
type Result struct {
	Completed bool
	Reference string
}

// Launcher wraps the provider's client library.
type Launcher interface {
	// Ready reports whether the library is loaded and a popup can be opened.
	Ready() bool
	Open(ctx context.Context, p Popup) (Result, error)
}

// Navigator moves the caller to another route.
type Navigator interface {
	Navigate(ctx context.Context, target string) error
}

// Stage is where a call to Advance stopped.
type Stage int

const (
	// StageIdle: no successful booking to act on.
	StageIdle Stage = iota
	// StageHalted: a previous stage failed; nothing is retried.
	StageHalted
	// StageInitializing: another caller is requesting the payment handle.
	StageInitializing
	// StageAwaitingLauncher: the payment handle exists but the provider is not ready.
	StageAwaitingLauncher
	// StagePopupOpen: the popup is showing.
	StagePopupOpen
	// StagePopupClosed: the guest closed the popup without paying.
	StagePopupClosed
	// StageRedirected: the verification route was reached.
	StageRedirected
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageHalted:
		return "halted"
	case StageInitializing:
		return "initializing"
	case StageAwaitingLauncher:
		return "awaiting_launcher"
	case StagePopupOpen:
		return "popup_open"
	case StagePopupClosed:
		return "popup_closed"
	case StageRedirected:
		return "redirected"
	}
	return "stage(" + strconv.Itoa(int(s)) + ")"
}

// Flow is safe for concurrent use. Advance may be called any number of times;
// payment initialization and the popup happen at most once per booking.
type Flow struct {
	client     *api.Client
	store      *state.Store
	launcher   Launcher
	nav        Navigator
	verifyPath string
	validate   *validator.Validate
	logger     *slog.Logger

	mu       sync.Mutex
	claimed  map[int]Stage
	handles  map[int]domain.PaymentInit
	launched map[string]Stage
}

// Option configures a Flow.
type Option func(*Flow)

// WithVerifyPath overrides DefaultVerifyPath.
func WithVerifyPath(p string) Option {
	return func(f *Flow) {
		if p != "" {
			f.verifyPath = p
		}
	}
}

// WithLogger overrides the flow logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Flow) {
		if l != nil {
			f.logger = l
		}
	}
}

// New returns a flow writing progress to store.
func New(client *api.Client, store *state.Store, launcher Launcher, nav Navigator, opts ...Option) *Flow {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	f := &Flow{
		client:     client,
		store:      store,
		launcher:   launcher,
		nav:        nav,
		verifyPath: DefaultVerifyPath,
		validate:   v,
		logger:     obs.Logger(),
		claimed:    make(map[int]Stage),
		handles:    make(map[int]domain.PaymentInit),
		launched:   make(map[string]Stage),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Submit validates the draft and creates the booking. Nights and total come
// back from the server and are never recomputed here.
func (f *Flow) Submit(ctx context.Context, d domain.BookingDraft) (domain.Booking, error) {
	if err := f.validateDraft(d); err != nil {
		f.store.BookingFailed(err.Error())
		return domain.Booking{}, err
	}
	f.store.StartBooking()
	b, err := api.Run(ctx, f.client, api.Bookings.Create, d)
	if err != nil {
		f.store.BookingFailed(message(err))
		return domain.Booking{}, err
	}
	f.store.BookingSucceeded(b)
	f.logger.Info("booking created", "booking_id", b.ID, "reference", b.Reference, "total", b.TotalAmount.String())
	return b, nil
}

func (f *Flow) validateDraft(d domain.BookingDraft) error {
	err := f.validate.Struct(d)
	var verrs validator.ValidationErrors
	if err != nil && !errors.As(err, &verrs) {
		return err
	}
	var msgs []string
	for _, fe := range verrs {
		msgs = append(msgs, fe.Field()+": "+friendly(fe))
	}
	if !d.CheckIn.IsZero() && !d.CheckOut.IsZero() && !d.CheckOut.After(d.CheckIn.Time) {
		msgs = append(msgs, "check_out: must be after check_in")
	}
	if len(msgs) == 0 {
		return nil
	}
	sort.Strings(msgs)
	return fmt.Errorf("%w: %s", ErrInvalidDraft, strings.Join(msgs, "; "))
}

func friendly(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "gt":
		return "must be greater than " + fe.Param()
	}
	return "is invalid"
}

// Advance runs every stage whose precondition holds and reports where it stopped.
func (f *Flow) Advance(ctx context.Context) (Stage, error) {
	bs := f.store.Booking()
	if !bs.Success || bs.Booking == nil {
		return StageIdle, nil
	}
	b := *bs.Booking

	init, stop, err := f.initialize(ctx, b)
	if err != nil {
		return StageHalted, err
	}
	if stop != 0 {
		return stop, nil
	}

	if f.launcher == nil || !f.launcher.Ready() {
		return StageAwaitingLauncher, nil
	}
	if prev, ok := f.claimLaunch(init.Reference); !ok {
		return prev, nil
	}
	stage, err := f.launch(ctx, b, init)
	f.mu.Lock()
	f.launched[init.Reference] = stage
	f.mu.Unlock()
	return stage, err
}

// initialize requests the payment handle for b at most once. A non-zero stop
// stage means the pipeline cannot go further on this call.
func (f *Flow) initialize(ctx context.Context, b domain.Booking) (init domain.PaymentInit, stop Stage, err error) {
	f.mu.Lock()
	if init, done := f.handles[b.ID]; done {
		f.mu.Unlock()
		return init, 0, nil
	}
	if prev, ok := f.claimed[b.ID]; ok {
		f.mu.Unlock()
		return domain.PaymentInit{}, prev, nil
	}
	f.claimed[b.ID] = StageInitializing
	f.mu.Unlock()

	if ps := f.store.Payment(); ps.Success && ps.BookingID == b.ID && ps.Reference != "" {
		init = domain.PaymentInit{Reference: ps.Reference, AuthorizationURL: ps.AuthorizationURL, AccessCode: ps.AccessCode, Booking: b.ID}
		f.remember(init)
		return init, 0, nil
	}

	f.store.StartPayment(b.ID)
	init, err = api.Run(ctx, f.client, api.InitializePayment, api.PaymentRequest{BookingID: b.ID, Email: b.Email})
	if err != nil {
		f.store.PaymentFailed(message(err))
		f.logger.Warn("payment initialization failed", "booking_id", b.ID, "error", err)
		f.mu.Lock()
		f.claimed[b.ID] = StageHalted
		f.mu.Unlock()
		return domain.PaymentInit{}, StageHalted, err
	}
	if init.Booking == 0 {
		init.Booking = b.ID
	}
	f.store.PaymentInitialized(init)
	f.remember(init)
	return init, 0, nil
}

func (f *Flow) remember(init domain.PaymentInit) {
	f.mu.Lock()
	f.handles[init.Booking] = init
	delete(f.claimed, init.Booking)
	f.mu.Unlock()
}

// claimLaunch reserves the popup for reference. A reference whose popup was
// already opened reports how that attempt ended.
func (f *Flow) claimLaunch(reference string) (Stage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if prev, ok := f.launched[reference]; ok {
		return prev, false
	}
	f.launched[reference] = StagePopupOpen
	return 0, true
}

func (f *Flow) launch(ctx context.Context, b domain.Booking, init domain.PaymentInit) (Stage, error) {
	amount := init.Amount
	if amount == "" {
		amount = b.TotalAmount
	}
	minor, err := MinorUnits(amount)
	if err != nil {
		f.store.PaymentFailed(err.Error())
		return StageHalted, err
	}
	email := init.Email
	if email == "" {
		email = b.Email
	}
	res, err := f.launcher.Open(ctx, Popup{
		Email:            email,
		AmountMinor:      minor,
		Reference:        init.Reference,
		AccessCode:       init.AccessCode,
		AuthorizationURL: init.AuthorizationURL,
		PublicKey:        init.PublicKey,
		Metadata:         map[string]string{"booking_id": strconv.Itoa(b.ID)},
	})
	if err != nil {
		f.store.PaymentFailed(message(err))
		return StageHalted, fmt.Errorf("open payment popup: %w", err)
	}
	if !res.Completed {
		f.logger.Info("payment popup closed", "booking_id", b.ID, "reference", init.Reference)
		return StagePopupClosed, nil
	}

	ref := res.Reference
	if ref == "" {
		ref = init.Reference
	}
	target := f.verifyPath + "?" + url.Values{"reference": {ref}}.Encode()
	if err := f.nav.Navigate(ctx, target); err != nil {
		return StageHalted, fmt.Errorf("navigate to %s: %w", target, err)
	}
	return StageRedirected, nil
}

// Verify confirms a reference with the server, as the verification route does.
func (f *Flow) Verify(ctx context.Context, reference string) (domain.PaymentVerification, error) {
	v, err := api.Run(ctx, f.client, api.VerifyPayment, reference)
	if err != nil {
		f.store.PaymentFailed(message(err))
		return v, err
	}
	if !v.Verified() {
		msg := v.Message
		if msg == "" {
			msg = "payment " + v.Status
		}
		f.store.PaymentFailed(msg)
		return v, fmt.Errorf("payment %s not verified: %s", reference, v.Status)
	}
	f.store.PaymentVerified(v.Reference)
	return v, nil
}

// Checkout submits the draft and advances as far as possible.
func (f *Flow) Checkout(ctx context.Context, d domain.BookingDraft) (domain.Booking, Stage, error) {
	b, err := f.Submit(ctx, d)
	if err != nil {
		return b, StageHalted, err
	}
	stage, err := f.Advance(ctx)
	return b, stage, err
}

// message is the text shown to the guest for err.
func message(err error) string {
	var te *transport.Error
	if errors.As(err, &te) {
		if text := te.Text(); text != "" {
			return text
		}
	}
	return err.Error()
}
