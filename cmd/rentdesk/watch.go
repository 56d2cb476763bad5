package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"rentdesk.org/internal/api"
	"rentdesk.org/internal/domain"
	"rentdesk.org/internal/obs"
)

func newWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow live data",
	}
	cmd.AddCommand(newWatchBookingsCmd(a))
	return cmd
}

func newWatchBookingsCmd(a *app) *cobra.Command {
	var (
		f           api.BookingFilter
		status      string
		interval    time.Duration
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "bookings",
		Short: "Reprint the booking list whenever it changes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := a.signIn(ctx); err != nil {
				return err
			}
			logger := obs.Logger()

			if metricsAddr != "" {
				srv := &http.Server{Addr: metricsAddr, Handler: obs.Handler(), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics server error", "error", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				logger.Info("serving metrics", "addr", metricsAddr)
			}

			go func() {
				for evt := range a.client.Cache().Events(ctx) {
					logger.Debug("cache event", "kind", evt.Kind, "key", evt.Key)
				}
			}()

			f.Status = domain.BookingStatus(status)
			w := api.Watch(a.client, api.Bookings.List, f)
			defer w.Close()

			var tick <-chan time.Time
			if interval > 0 {
				t := time.NewTicker(interval)
				defer t.Stop()
				tick = t.C
			}

			var last time.Time
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-tick:
					w.Refetch()
				case <-w.Changed():
					res := w.Current()
					if res.Loading && !res.HasData {
						continue
					}
					if res.Err != nil {
						a.printer.Warning("refresh failed: %v", res.Err)
						continue
					}
					if !res.HasData || !res.FetchedAt.After(last) {
						continue
					}
					last = res.FetchedAt
					fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", res.FetchedAt.Format(time.TimeOnly))
					if err := a.printBookings(res.Data); err != nil {
						return err
					}
				}
			}
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&status, "status", "", "booking status filter")
	fl.IntVar(&f.Property, "property", 0, "property id")
	fl.DurationVar(&interval, "interval", 30*time.Second, "refetch period; 0 only reacts to invalidations")
	fl.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}
