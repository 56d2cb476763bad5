package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"rentdesk.org/internal/api"
	"rentdesk.org/internal/cache"
	"rentdesk.org/internal/config"
	"rentdesk.org/internal/obs"
	"rentdesk.org/internal/state"
	"rentdesk.org/internal/transport"
)

// app is built once per invocation by the root command.
type app struct {
	cfg     *config.Config
	store   *state.Store
	client  *api.Client
	printer *printer

	email    string
	password string
}

type globalFlags struct {
	configFile string
	baseURL    string
	verbose    bool
	noColor    bool
	email      string
	password   string
}

func newRootCmd() *cobra.Command {
	var (
		flags globalFlags
		a     = &app{}
	)
	root := &cobra.Command{
		Use:   "rentdesk",
		Short: "Rental back-office client",
		Long: `rentdesk talks to the rental back-office API.

Credentials come from --email/--password or RENTDESK_EMAIL/RENTDESK_PASSWORD
and are used to open a session on each invocation.

Example usage:
  rentdesk properties --city Lagos
  rentdesk book --property 6 --check-in 2027-01-05 --check-out 2027-01-07 ...
  rentdesk dashboard
  rentdesk watch bookings --metrics-addr :9100`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "config file (default is .rentdesk.yaml)")
	pf.StringVar(&flags.baseURL, "base-url", "", "backend base URL (overrides api.base_url)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")
	pf.BoolVar(&flags.noColor, "no-color", false, "disable colored output")
	pf.StringVar(&flags.email, "email", os.Getenv("RENTDESK_EMAIL"), "account email")
	pf.StringVar(&flags.password, "password", os.Getenv("RENTDESK_PASSWORD"), "account password")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newPropertiesCmd(a),
		newBookingsCmd(a),
		newBookCmd(a),
		newDashboardCmd(a),
		newWatchCmd(a),
		newSmokeCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) init(flags globalFlags) error {
	cfg, err := config.Load(config.Options{ConfigFile: flags.configFile})
	if err != nil {
		return err
	}
	if flags.baseURL != "" {
		cfg.API.BaseURL = flags.baseURL
	}
	if flags.verbose {
		cfg.Logging.Level = "debug"
	}
	logger := obs.NewLogger(os.Stderr, cfg.Logging.Format, cfg.Logging.Level)
	obs.SetLogger(logger)
	obs.InitBuildInfo(version, commit)

	a.cfg = cfg
	a.email, a.password = flags.email, flags.password
	a.printer = newPrinter(os.Stdout, cfg.Output.Colors && !flags.noColor)
	a.store = state.New()

	tc, err := transport.New(cfg.API.BaseURL,
		transport.WithSessionObserver(a.store),
		transport.WithTimeout(cfg.API.Timeout),
		transport.WithRateLimit(cfg.API.RateLimit.RPS, cfg.API.RateLimit.Burst),
		transport.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	c := cache.New(cache.WithKeepUnused(cfg.Cache.KeepUnused), cache.WithMaxUnused(cfg.Cache.MaxUnused))
	a.client = api.New(tc, c, a.store)
	return nil
}

var errNoCredentials = errors.New("credentials required: set --email/--password or RENTDESK_EMAIL/RENTDESK_PASSWORD")

// signIn opens a session unless one is already open.
func (a *app) signIn(ctx context.Context) error {
	if a.store.Auth().IsAuthenticated {
		return nil
	}
	if a.email == "" || a.password == "" {
		return errNoCredentials
	}
	_, err := a.client.Login(ctx, api.Credentials{Email: a.email, Password: a.password})
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("rentdesk %s (%s)\n", version, commit)
		},
	}
}
