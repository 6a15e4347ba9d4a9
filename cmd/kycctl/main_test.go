package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycgate/internal/platform/middleware"
	id "kycgate/pkg/domain"
	audit "kycgate/pkg/platform/audit"
	auditmemory "kycgate/pkg/platform/audit/store/memory"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeLedger(t *testing.T, format audit.Format) string {
	t.Helper()
	ctx := context.Background()
	ledger := auditmemory.NewInMemoryStore()
	sessionID := id.NewSessionID()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, event := range []audit.EventType{audit.EventSessionStarted, audit.EventStageRecorded, audit.EventRiskAssessed} {
		entry, err := audit.NewEntry(sessionID, event, audit.ActorSystem, at.Add(time.Duration(i)*time.Second), map[string]int{"version": i + 1})
		require.NoError(t, err)
		_, err = ledger.Append(ctx, entry)
		require.NoError(t, err)
	}
	entries, err := ledger.Query(ctx, sessionID)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ledger."+string(format))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, audit.Export(f, format, entries))
	require.NoError(t, f.Close())
	return path
}

func TestVerifyIntactExport(t *testing.T) {
	for _, format := range []audit.Format{audit.FormatJSONLines, audit.FormatCSV} {
		t.Run(string(format), func(t *testing.T) {
			out, err := execute(t, "verify", writeLedger(t, format))
			require.NoError(t, err)
			assert.Contains(t, out, "3 entries, chain intact")
		})
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	path := writeLedger(t, audit.FormatJSONLines)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(raw), "\n")
	lines[1] = strings.Replace(lines[1], `"actor":"system"`, `"actor":"mallory"`, 1)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o600))

	_, err = execute(t, "verify", path)
	assert.ErrorContains(t, err, "chain broken")
}

func TestVerifyUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, err := execute(t, "verify", path)
	assert.Error(t, err)
}

func TestTokenValidatesAgainstServerMiddleware(t *testing.T) {
	out, err := execute(t, "token", "--key", "ops-key", "--reviewer", "rev-11", "--ttl", "5m")
	require.NoError(t, err)

	reviewer, err := middleware.NewReviewerTokenValidator("ops-key").Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "rev-11", reviewer)
}

func TestExportRequiresDatabase(t *testing.T) {
	t.Setenv("KYC_DATABASE_URL", "")
	_, err := execute(t, "export", "--session", id.NewSessionID().String(), "--database-url", "")
	assert.ErrorContains(t, err, "database-url")
}
