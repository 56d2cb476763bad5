package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"rentdesk.org/internal/checkout"
	"rentdesk.org/internal/domain"
)

func newBookCmd(a *app) *cobra.Command {
	var (
		d                 domain.BookingDraft
		checkIn, checkOut string
		autoPay           bool
	)
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book a stay and pay for it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if checkIn != "" {
				if d.CheckIn, err = domain.ParseDate(checkIn); err != nil {
					return fmt.Errorf("--check-in: %w", err)
				}
			}
			if checkOut != "" {
				if d.CheckOut, err = domain.ParseDate(checkOut); err != nil {
					return fmt.Errorf("--check-out: %w", err)
				}
			}

			launcher := &terminalLauncher{in: bufio.NewReader(cmd.InOrStdin()), out: cmd.OutOrStdout(), auto: autoPay}
			nav := &verifyNavigator{printer: a.printer}
			flow := checkout.New(a.client, a.store, launcher, nav, checkout.WithVerifyPath(a.cfg.Checkout.VerifyPath))
			nav.flow = flow

			b, stage, err := flow.Checkout(cmd.Context(), d)
			if b.ID != 0 {
				a.printer.Success("booking %s: %d nights, total %s", b.Reference, b.Nights, b.TotalAmount)
			}
			if err != nil {
				return err
			}
			switch stage {
			case checkout.StagePopupClosed:
				a.printer.Warning("payment not completed; booking %s stays pending", b.Reference)
			case checkout.StageRedirected:
				if a.store.Payment().Verified {
					a.printer.Success("payment verified")
				}
			default:
				a.printer.Info("stopped at %s", stage)
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.IntVar(&d.Property, "property", 0, "property id")
	fl.StringVar(&d.FullName, "name", "", "guest full name")
	fl.StringVar(&d.Email, "guest-email", "", "guest email")
	fl.StringVar(&d.Phone, "phone", "", "guest phone")
	fl.StringVar(&checkIn, "check-in", "", "YYYY-MM-DD")
	fl.StringVar(&checkOut, "check-out", "", "YYYY-MM-DD")
	fl.IntVar(&d.Guests, "guests", 1, "number of guests")
	fl.StringVar(&d.SpecialRequests, "requests", "", "special requests")
	fl.BoolVar(&autoPay, "yes", false, "treat the payment as completed without prompting")
	return cmd
}

// terminalLauncher shows the checkout link and asks whether the payment went through.
type terminalLauncher struct {
	in   *bufio.Reader
	out  io.Writer
	auto bool
}

func (l *terminalLauncher) Ready() bool { return true }

func (l *terminalLauncher) Open(_ context.Context, p checkout.Popup) (checkout.Result, error) {
	fmt.Fprintf(l.out, "Pay %d.%02d for booking %s at:\n  %s\n", p.AmountMinor/100, p.AmountMinor%100, p.Metadata["booking_id"], p.AuthorizationURL)
	if l.auto {
		return checkout.Result{Completed: true, Reference: p.Reference}, nil
	}
	fmt.Fprint(l.out, "Press Enter once paid, or type 'cancel': ")
	line, err := l.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return checkout.Result{}, err
	}
	// No answer at all, as with stdin from /dev/null, counts as a closed popup.
	if err == io.EOF && line == "" {
		return checkout.Result{}, nil
	}
	if strings.EqualFold(strings.TrimSpace(line), "cancel") {
		return checkout.Result{}, nil
	}
	return checkout.Result{Completed: true, Reference: p.Reference}, nil
}

// verifyNavigator plays the verification route: it confirms the reference it is sent to.
type verifyNavigator struct {
	flow    *checkout.Flow
	printer *printer
}

func (n *verifyNavigator) Navigate(ctx context.Context, target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return err
	}
	ref := u.Query().Get("reference")
	n.printer.Info("verifying %s", ref)
	if _, err := n.flow.Verify(ctx, ref); err != nil {
		n.printer.Warning("verification failed: %v", err)
	}
	return nil
}
