package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/visionfy/visionfy/internal/client"
)

func newRegisterCommand(get func() *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		RunE: func(cmd *cobra.Command, args []string) error {
			return signIn(cmd, get(), email, true)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLoginCommand(get func() *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			return signIn(cmd, get(), email, false)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func signIn(cmd *cobra.Command, a *app, email string, register bool) error {
	ctx := cmd.Context()
	password, err := readPassword(cmd)
	if err != nil {
		return err
	}

	var tokens *client.TokenPair
	if register {
		tokens, err = a.api.Register(ctx, email, password)
	} else {
		tokens, err = a.api.Login(ctx, email, password)
	}
	if err != nil {
		return err
	}
	if err := a.saveSession(ctx, tokens); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", email)
	return nil
}

// readPassword takes VISIONFY_PASSWORD when set, prompts without echo on a
// terminal and otherwise reads one line from stdin.
func readPassword(cmd *cobra.Command) (string, error) {
	if pw := os.Getenv("VISIONFY_PASSWORD"); pw != "" {
		return pw, nil
	}
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("no password on stdin")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLogoutCommand(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke every session of this account and forget it locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx := cmd.Context()
			_, err := authed(ctx, a, func() (struct{}, error) { return struct{}{}, a.api.Logout(ctx) })
			if err != nil && !errors.Is(err, errNotLoggedIn) {
				return err
			}
			return a.storage.RemoveItem(context.WithoutCancel(ctx), keySession)
		},
	}
}

func newUsageCommand(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show today's generation quota",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			u, err := authed(cmd.Context(), a, func() (*client.UsageReport, error) { return a.api.Usage(cmd.Context()) })
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Plan:       %s (%d images/month)\n", u.Plan, u.PlanMonthlyLimit)
			fmt.Fprintf(out, "Today:      %d/%d used, %d remaining\n", u.Used, u.DailyLimit, u.Remaining)
			fmt.Fprintf(out, "Resets at:  %s\n", u.ResetsAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}
}
