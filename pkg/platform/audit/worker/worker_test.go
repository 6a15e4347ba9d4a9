package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "kycgate/pkg/domain"
	audit "kycgate/pkg/platform/audit"
)

type recordingSink struct {
	mu      sync.Mutex
	entries []audit.Entry
	failOn  int64
}

func (s *recordingSink) Publish(_ context.Context, e audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Sequence == s.failOn {
		return errors.New("broker unavailable")
	}
	s.entries = append(s.entries, e)
	return nil
}

func TestWorker_RelaysUntilInboxCloses(t *testing.T) {
	inbox := make(chan audit.Entry, 4)
	sink := &recordingSink{failOn: 2}
	sessionID := id.NewSessionID()
	for seq := int64(1); seq <= 3; seq++ {
		inbox <- audit.Entry{Sequence: seq, SessionID: sessionID}
	}
	close(inbox)

	err := NewWorker(sink, inbox, nil).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, sink.entries, 2, "a failed publish is skipped, not retried")
	assert.Equal(t, int64(1), sink.entries[0].Sequence)
	assert.Equal(t, int64(3), sink.entries[1].Sequence)
}

func TestWorker_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewWorker(&recordingSink{}, make(chan audit.Entry), nil).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
