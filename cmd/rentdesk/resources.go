package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"rentdesk.org/internal/api"
	"rentdesk.org/internal/domain"
)

func newPropertiesCmd(a *app) *cobra.Command {
	var (
		f        api.PropertyFilter
		featured bool
	)
	cmd := &cobra.Command{
		Use:   "properties",
		Short: "List listings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("featured") {
				f.Featured = &featured
			}
			page, err := api.Fetch(cmd.Context(), a.client, api.Properties.List, f)
			if err != nil {
				return err
			}
			return a.printProperties(page)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.Search, "search", "", "free text search")
	fl.StringVar(&f.City, "city", "", "city")
	fl.StringVar(&f.PropertyType, "type", "", "property type")
	fl.IntVar(&f.Guests, "guests", 0, "minimum guest capacity")
	fl.StringVar(&f.MinPrice, "min-price", "", "minimum nightly price")
	fl.StringVar(&f.MaxPrice, "max-price", "", "maximum nightly price")
	fl.BoolVar(&featured, "featured", false, "featured listings only")
	fl.IntVar(&f.Page, "page", 0, "page number")

	cmd.AddCommand(newAvailabilityCmd(a))
	return cmd
}

func newAvailabilityCmd(a *app) *cobra.Command {
	var checkIn, checkOut string
	cmd := &cobra.Command{
		Use:   "availability <property-id>",
		Short: "Check whether a listing is free for a stay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			q := api.AvailabilityQuery{PropertyID: id}
			if q.CheckIn, err = domain.ParseDate(checkIn); err != nil {
				return fmt.Errorf("--check-in: %w", err)
			}
			if q.CheckOut, err = domain.ParseDate(checkOut); err != nil {
				return fmt.Errorf("--check-out: %w", err)
			}
			av, err := api.Fetch(cmd.Context(), a.client, api.PropertyAvailability, q)
			if err != nil {
				return err
			}
			if !av.Available {
				a.printer.Warning("not available: %s", av.Message)
				return nil
			}
			a.printer.Success("available for %d nights, total %s", av.Nights, av.TotalAmount)
			return nil
		},
	}
	cmd.Flags().StringVar(&checkIn, "check-in", "", "YYYY-MM-DD")
	cmd.Flags().StringVar(&checkOut, "check-out", "", "YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("check-in")
	_ = cmd.MarkFlagRequired("check-out")
	return cmd
}

func (a *app) printProperties(page domain.Page[domain.Property]) error {
	rows := make([][]string, 0, len(page.Results))
	for _, p := range page.Results {
		rows = append(rows, []string{itoa(p.ID), p.Title, p.City, itoa(p.MaxGuests), p.PricePerNight.String(), yesNo(p.IsFeatured)})
	}
	if err := a.printer.Table([]string{"id", "title", "city", "guests", "price/night", "featured"}, rows); err != nil {
		return err
	}
	a.printer.Info("%d of %d", len(page.Results), page.Count)
	return nil
}

func newBookingsCmd(a *app) *cobra.Command {
	var f api.BookingFilter
	var status string
	cmd := &cobra.Command{
		Use:   "bookings",
		Short: "List and manage bookings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.signIn(cmd.Context()); err != nil {
				return err
			}
			f.Status = domain.BookingStatus(status)
			page, err := api.Fetch(cmd.Context(), a.client, api.Bookings.List, f)
			if err != nil {
				return err
			}
			return a.printBookings(page)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&status, "status", "", "pending, confirmed, cancelled or completed")
	fl.IntVar(&f.Property, "property", 0, "property id")
	fl.StringVar(&f.Search, "search", "", "free text search")
	fl.IntVar(&f.Page, "page", 0, "page number")

	cmd.AddCommand(
		bookingAction(a, "cancel", "Cancel a booking", api.CancelBooking),
		bookingAction(a, "check-in", "Record a guest check-in", api.CheckInBooking),
		bookingAction(a, "check-out", "Record a guest check-out", api.CheckOutBooking),
		newBookingStatusCmd(a),
	)
	return cmd
}

func bookingAction(a *app, use, short string, m api.Mutation[int, domain.Booking]) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <booking-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.signIn(cmd.Context()); err != nil {
				return err
			}
			b, err := api.Run(cmd.Context(), a.client, m, id)
			if err != nil {
				return err
			}
			a.printer.Success("%s is %s", b.Reference, b.Status)
			return nil
		},
	}
}

func newBookingStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <booking-id> <status>",
		Short: "Move a booking to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			status := domain.BookingStatus(args[1])
			if !status.Valid() {
				return fmt.Errorf("unknown status %q", args[1])
			}
			if err := a.signIn(cmd.Context()); err != nil {
				return err
			}
			b, err := api.Run(cmd.Context(), a.client, api.UpdateBookingStatus, api.StatusChange{ID: id, Status: status})
			if err != nil {
				return err
			}
			a.printer.Success("%s is %s", b.Reference, b.Status)
			return nil
		},
	}
}

func (a *app) printBookings(page domain.Page[domain.Booking]) error {
	rows := make([][]string, 0, len(page.Results))
	for _, b := range page.Results {
		rows = append(rows, []string{
			b.Reference, b.PropertyTitle, b.FullName,
			b.CheckIn.String(), b.CheckOut.String(),
			itoa(b.Nights), b.TotalAmount.String(), string(b.Status), b.PaymentStatus,
		})
	}
	if err := a.printer.Table([]string{"reference", "property", "guest", "check-in", "check-out", "nights", "total", "status", "payment"}, rows); err != nil {
		return err
	}
	a.printer.Info("%d of %d", len(page.Results), page.Count)
	return nil
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func itoa(n int) string { return strconv.Itoa(n) }

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
