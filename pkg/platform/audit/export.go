package audit

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	id "kycgate/pkg/domain"
)

// Format is a ledger export encoding.
type Format string

const (
	// FormatJSONLines writes one JSON object per line.
	FormatJSONLines Format = "jsonl"
	// FormatCSV writes a header row then one row per entry. The detail column
	// carries the verbatim detail JSON.
	FormatCSV Format = "csv"
)

var csvHeader = []string{
	"id", "sequence", "session_id", "event_type", "actor",
	"timestamp", "detail", "prev_hash", "hash",
}

// ParseFormat accepts "jsonl", "json" (alias for JSON lines) and "csv".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json", "jsonl":
		return FormatJSONLines, nil
	case "csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unsupported export format: %q", s)
}

// ContentType returns the HTTP content type for the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/x-ndjson"
}

// Export writes entries to w. Nothing is dropped or re-encoded, so Decode
// of the output yields entries that still pass VerifyChain.
func Export(w io.Writer, format Format, entries []Entry) error {
	switch format {
	case FormatJSONLines:
		enc := json.NewEncoder(w)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return fmt.Errorf("encode entry %d: %w", e.Sequence, err)
			}
		}
		return nil
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		for _, e := range entries {
			row := []string{
				e.ID.String(),
				strconv.FormatInt(e.Sequence, 10),
				e.SessionID.String(),
				string(e.EventType),
				e.Actor,
				e.Timestamp.UTC().Format(time.RFC3339Nano),
				string(e.Detail),
				e.PrevHash,
				e.Hash,
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write csv row %d: %w", e.Sequence, err)
			}
		}
		cw.Flush()
		return cw.Error()
	}
	return fmt.Errorf("unsupported export format: %q", format)
}

// Decode reads an export produced by Export.
func Decode(r io.Reader, format Format) ([]Entry, error) {
	switch format {
	case FormatJSONLines:
		return decodeJSONLines(r)
	case FormatCSV:
		return decodeCSV(r)
	}
	return nil, fmt.Errorf("unsupported export format: %q", format)
}

func decodeJSONLines(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(text), &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func decodeCSV(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)
	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	var entries []Entry
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		e, err := entryFromRow(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
}

func entryFromRow(row []string) (Entry, error) {
	entryID, err := id.ParseEntryID(row[0])
	if err != nil {
		return Entry{}, fmt.Errorf("id: %w", err)
	}
	seq, err := strconv.ParseInt(row[1], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("sequence: %w", err)
	}
	sessionID, err := id.ParseSessionID(row[2])
	if err != nil {
		return Entry{}, fmt.Errorf("session_id: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, row[5])
	if err != nil {
		return Entry{}, fmt.Errorf("timestamp: %w", err)
	}
	var detail json.RawMessage
	if row[6] != "" {
		detail = json.RawMessage(row[6])
	}
	return Entry{
		ID:        entryID,
		Sequence:  seq,
		SessionID: sessionID,
		EventType: EventType(row[3]),
		Actor:     row[4],
		Timestamp: ts,
		Detail:    detail,
		PrevHash:  row[7],
		Hash:      row[8],
	}, nil
}
