package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/birbparty/nestlink/sdk"
	"github.com/spf13/cobra"
)

func newLoginCmd(flags *globalFlags) *cobra.Command {
	var (
		email    string
		name     string
		register bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password := flagOrEnv(cmd, "password", "NESTLINK_PASSWORD", "")
			if email == "" || password == "" {
				return errors.New("--email and --password (or NESTLINK_PASSWORD) are required")
			}

			return flags.withClient(cmd, func(ctx context.Context, c *sdk.Client, _ *Session) error {
				var (
					session *sdk.Session
					err     error
				)
				if register {
					session, err = c.Auth.Register(ctx, sdk.Registration{Email: email, Password: password, Name: name})
				} else {
					session, err = c.Auth.Login(ctx, email, password)
				}
				if err != nil {
					return err
				}

				if err := flags.persistTokens(cmd, c, session.User); err != nil {
					return err
				}
				who := email
				if session.User != nil && session.User.Name != "" {
					who = session.User.Name
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", who)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().String("password", "", "account password (env NESTLINK_PASSWORD)")
	cmd.Flags().StringVar(&name, "name", "", "display name when registering")
	cmd.Flags().BoolVar(&register, "register", false, "create the account instead of logging in")
	return cmd
}

func newLogoutCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the saved session and remove it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.withClient(cmd, func(ctx context.Context, c *sdk.Client, s *Session) error {
				if s == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
					return nil
				}

				// The local session is removed even when the backend call fails
				logoutErr := c.Auth.Logout(ctx)
				if err := RemoveSession(flags.sessionFile(cmd)); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
				if logoutErr != nil && !sdk.IsOffline(logoutErr) {
					return fmt.Errorf("backend logout failed: %w", logoutErr)
				}
				return nil
			})
		},
	}
}

func newWhoamiCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user, refreshing the session if needed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.withClient(cmd, func(ctx context.Context, c *sdk.Client, s *Session) error {
				if s == nil {
					return errors.New("not logged in")
				}

				user, err := c.Auth.Me(ctx)
				if sdk.IsUnauthorized(err) {
					if _, err = c.Auth.Refresh(ctx); err != nil {
						return fmt.Errorf("session expired, log in again: %w", err)
					}
					user, err = c.Auth.Me(ctx)
				}
				if err != nil {
					return err
				}

				if err := flags.persistTokens(cmd, c, user); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), user)
			})
		},
	}
}
