package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rentdesk.org/internal/auth"
)

func newLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Check credentials and show the signed-in account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.signIn(cmd.Context()); err != nil {
				return err
			}
			u := a.store.CurrentUser()
			role := "-"
			perms := "-"
			if u.Role != nil {
				role = u.Role.Name
				perms = strings.Join(auth.PermissionLabels(*u.Role), ", ")
			}
			a.printer.Success("signed in as %s (%s)", u.Email, u.FullName())
			a.printer.Info("role: %s", role)
			a.printer.Info("permissions: %s", perms)
			return nil
		},
	}
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Open a session and end it on the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.signIn(cmd.Context()); err != nil {
				return err
			}
			if err := a.client.Logout(cmd.Context()); err != nil {
				a.printer.Warning("server logout failed: %v", err)
			}
			a.printer.Success("signed out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "whoami",
		Aliases: []string{"me"},
		Short:   "Show the current user and access token expiry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.signIn(cmd.Context()); err != nil {
				return err
			}
			u, err := a.client.Me(cmd.Context())
			if err != nil {
				return err
			}
			rows := [][]string{
				{"id", itoa(u.ID)},
				{"email", u.Email},
				{"name", u.FullName()},
				{"staff", yesNo(u.IsStaff)},
				{"superuser", yesNo(u.IsSuperuser)},
			}
			if u.Role != nil {
				rows = append(rows, []string{"role", u.Role.Name}, []string{"permissions", strings.Join(auth.PermissionLabels(*u.Role), ", ")})
			}
			if token, ok := a.client.Transport().Cookie("access"); ok {
				if claims, err := auth.AccessClaims(token); err == nil {
					rows = append(rows, []string{"token expires in", claims.ExpiresIn(time.Now()).Round(time.Second).String()})
				}
			}
			return a.printer.Table([]string{"field", "value"}, rows)
		},
	}
}
