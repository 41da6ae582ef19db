package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	dcaauth "github.com/opengovern/dca-auth-go"
)

var (
	email         string
	password      string
	twoFactorCode string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session tokens",
	Long: `Log in with email and password and store the returned token pair.

The password can also be provided through DCA_AUTH_PASSWORD. Set
DCA_AUTH_PASSPHRASE to persist the tokens in the encrypted credentials file.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the session and remove stored tokens",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the authenticated user",
	RunE:  runWhoami,
}

func init() {
	loginCmd.Flags().StringVar(&email, "email", "", "Account email (required)")
	loginCmd.Flags().StringVar(&password, "password", "", "Account password")
	loginCmd.Flags().StringVar(&twoFactorCode, "code", "", "Two-factor code when enabled")
	if err := loginCmd.MarkFlagRequired("email"); err != nil {
		panic(err)
	}
}

func runLogin(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	if password == "" {
		password = os.Getenv("DCA_AUTH_PASSWORD")
	}

	res, err := client.Auth.Login(commandContext(cmd), dcaauth.LoginRequest{
		Email:         email,
		Password:      password,
		TwoFactorCode: twoFactorCode,
	})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", res.User.Username, res.User.Email)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	if err := client.Auth.Logout(commandContext(cmd)); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	if !client.IsAuthenticated(ctx) {
		return fmt.Errorf("not logged in")
	}
	user, err := client.Auth.Me(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd, user)
}
