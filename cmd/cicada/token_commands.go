package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect and manage the cached API access token",
	}
	cmd.AddCommand(newTokenShowCommand(ctx))
	cmd.AddCommand(newTokenRefreshCommand(ctx))
	cmd.AddCommand(newTokenClearCommand(ctx))
	return cmd
}

func newTokenShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the cached token and when it expires",
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := ctx.tokenManager()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			token, expiresAt, ok := tokens.Cached()
			if !ok {
				fmt.Fprintln(out, "No valid token cached; one will be requested on the next API call.")
				return nil
			}
			fmt.Fprintf(out, "Token:   %s\n", maskToken(token))
			fmt.Fprintf(out, "Expires: %s (%s)\n", expiresAt.Format(time.RFC3339), humanize.Time(expiresAt))
			return nil
		},
	}
}

func newTokenRefreshCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Request a fresh token from the platform",
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := ctx.tokenManager()
			if err != nil {
				return err
			}
			token, err := tokens.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Refreshed token %s\n", maskToken(token))
			return nil
		},
	}
}

func newTokenClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the cached token",
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := ctx.tokenManager()
			if err != nil {
				return err
			}
			if err := tokens.ClearCache(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Token cache cleared.")
			return nil
		},
	}
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + "****" + token[len(token)-4:]
}
