package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"kycgate/internal/platform/middleware"
)

func newTokenCmd() *cobra.Command {
	var (
		key      string
		reviewer string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a reviewer bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if key == "" {
				return fmt.Errorf("--key or KYC_REVIEWER_JWT_KEY is required")
			}
			token, err := middleware.IssueReviewerToken(key, reviewer, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&key, "key", os.Getenv("KYC_REVIEWER_JWT_KEY"), "HS256 signing key")
	flags.StringVar(&reviewer, "reviewer", "", "reviewer ID placed in the subject claim (required)")
	flags.DurationVar(&ttl, "ttl", 8*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("reviewer")
	return cmd
}
