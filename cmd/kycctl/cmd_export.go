package main

import (
	"database/sql"
	"fmt"
	"io"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	id "kycgate/pkg/domain"
	audit "kycgate/pkg/platform/audit"
	auditpostgres "kycgate/pkg/platform/audit/store/postgres"
)

type exportFlags struct {
	databaseURL string
	sessionID   string
	format      string
	output      string
}

func newExportCmd() *cobra.Command {
	var f exportFlags
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export one session's ledger entries from PostgreSQL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, f)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.databaseURL, "database-url", os.Getenv("KYC_DATABASE_URL"), "PostgreSQL DSN (default $KYC_DATABASE_URL)")
	flags.StringVar(&f.sessionID, "session", "", "session ID (required)")
	flags.StringVar(&f.format, "format", string(audit.FormatJSONLines), "jsonl or csv")
	flags.StringVarP(&f.output, "output", "o", "", "write to file instead of stdout")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func runExport(cmd *cobra.Command, f exportFlags) error {
	if f.databaseURL == "" {
		return fmt.Errorf("--database-url or KYC_DATABASE_URL is required")
	}
	sessionID, err := id.ParseSessionID(f.sessionID)
	if err != nil {
		return err
	}
	format, err := audit.ParseFormat(f.format)
	if err != nil {
		return err
	}

	db, err := sql.Open("postgres", f.databaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	entries, err := auditpostgres.New(db).Query(cmd.Context(), sessionID)
	if err != nil {
		return fmt.Errorf("query ledger: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("no ledger entries for session %s", sessionID)
	}

	var out io.Writer = cmd.OutOrStdout()
	if f.output != "" {
		file, err := os.Create(f.output)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}
	if err := audit.Export(out, format, entries); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if f.output != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d entries to %s\n", len(entries), f.output)
	}
	return nil
}
