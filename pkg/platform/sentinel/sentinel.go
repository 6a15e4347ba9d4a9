package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors.
//
//   - ErrNotFound: the session or ledger slice does not exist
//   - ErrConflict: a compare-and-swap saw a different version than expected
//   - ErrAlreadyUsed: a uniqueness guard (subject reference) is already held
//   - ErrUnavailable: the backing service is temporarily unreachable
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrAlreadyUsed = errors.New("already used")
	ErrUnavailable = errors.New("unavailable")
)
