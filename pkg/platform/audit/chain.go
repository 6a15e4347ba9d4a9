package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	id "kycgate/pkg/domain"
)

// Timestamps are stored at microsecond precision so that an entry read back
// from PostgreSQL hashes to the same value it was sealed with.
const timestampPrecision = time.Microsecond

// ChainError reports the first entry whose hash or link does not verify.
type ChainError struct {
	Sequence int64
	Reason   string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("audit chain broken at sequence %d: %s", e.Sequence, e.Reason)
}

// Seal assigns identity, position and hashes to entry, linking it to prev.
// prev is nil for the first entry of the ledger.
func Seal(prev *Entry, entry Entry) Entry {
	if entry.ID.IsNil() {
		entry.ID = id.NewEntryID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.Timestamp = entry.Timestamp.UTC().Truncate(timestampPrecision)
	entry.Sequence = 1
	entry.PrevHash = ""
	if prev != nil {
		entry.Sequence = prev.Sequence + 1
		entry.PrevHash = prev.Hash
	}
	entry.Hash = ComputeHash(entry)
	return entry
}

// ComputeHash returns the hex SHA-256 over every field except Hash itself.
func ComputeHash(e Entry) string {
	var buf bytes.Buffer
	buf.WriteString(e.PrevHash)
	buf.WriteByte('|')
	buf.WriteString(strconv.FormatInt(e.Sequence, 10))
	buf.WriteByte('|')
	buf.WriteString(e.ID.String())
	buf.WriteByte('|')
	buf.WriteString(e.SessionID.String())
	buf.WriteByte('|')
	buf.WriteString(string(e.EventType))
	buf.WriteByte('|')
	buf.WriteString(e.Actor)
	buf.WriteByte('|')
	buf.WriteString(e.Timestamp.UTC().Format(time.RFC3339Nano))
	buf.WriteByte('|')
	buf.Write(e.Detail)
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

// VerifyChain checks entries ordered by sequence. Every entry must hash to
// its recorded Hash, and consecutive sequences must link PrevHash to the
// predecessor's Hash. A session slice (gaps in sequence) verifies each entry
// individually and links only where sequences are adjacent.
func VerifyChain(entries []Entry) error {
	for i, e := range entries {
		if got := ComputeHash(e); got != e.Hash {
			return &ChainError{Sequence: e.Sequence, Reason: "hash mismatch"}
		}
		if e.Sequence == 1 && e.PrevHash != "" {
			return &ChainError{Sequence: e.Sequence, Reason: "first entry has a predecessor"}
		}
		if i == 0 {
			continue
		}
		prev := entries[i-1]
		if e.Sequence <= prev.Sequence {
			return &ChainError{Sequence: e.Sequence, Reason: "sequence not increasing"}
		}
		if e.Sequence == prev.Sequence+1 && e.PrevHash != prev.Hash {
			return &ChainError{Sequence: e.Sequence, Reason: "previous hash does not link"}
		}
	}
	return nil
}
