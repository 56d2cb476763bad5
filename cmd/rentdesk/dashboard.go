package main

import (
	"github.com/spf13/cobra"
)

func newDashboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show back-office counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.signIn(cmd.Context()); err != nil {
				return err
			}
			s, err := a.client.Dashboard(cmd.Context())
			if err != nil {
				return err
			}
			return a.printer.Table([]string{"metric", "count"}, [][]string{
				{"properties", itoa(s.Properties)},
				{"bookings", itoa(s.Bookings)},
				{"pending bookings", itoa(s.PendingBookings)},
				{"confirmed bookings", itoa(s.ConfirmedBookings)},
				{"payments", itoa(s.Payments)},
				{"unread inquiries", itoa(s.UnreadInquiries)},
				{"open disputes", itoa(s.OpenDisputes)},
			})
		},
	}
}
