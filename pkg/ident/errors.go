package ident

import "errors"

// Error kinds from §7. Each is a sentinel compared with errors.Is;
// call sites wrap it with context via fmt.Errorf("...: %w", ErrX).
var (
	ErrUnknownAgent           = errors.New("unknown agent")
	ErrUnknownGroup           = errors.New("unknown group")
	ErrDuplicateGroup         = errors.New("duplicate group")
	ErrNotAMember             = errors.New("not a member")
	ErrAmbientConflict        = errors.New("ambient conflict")
	ErrLaggedInbox            = errors.New("lagged inbox")
	ErrStorageUnavailable     = errors.New("storage unavailable")
	ErrIntegrityViolation     = errors.New("integrity violation")
	ErrBadArguments           = errors.New("bad arguments")
	ErrToolNotPermitted       = errors.New("tool not permitted")
	ErrToolTimeout            = errors.New("tool timeout")
	ErrLlmFailure             = errors.New("llm failure")
	ErrPeerUnreachable        = errors.New("peer unreachable")
	ErrProtocolMismatch       = errors.New("protocol mismatch")
	ErrCancelled              = errors.New("cancelled")
	ErrReasoningBudgetExceeded = errors.New("reasoning budget exceeded")
)

// Kind returns the first of the sentinels above that err wraps, or nil
// if err doesn't match any of them. Callers that need to branch on
// error kind (e.g. to decide whether a failure is retryable) should use
// this instead of string matching.
func Kind(err error) error {
	for _, k := range []error{
		ErrUnknownAgent, ErrUnknownGroup, ErrDuplicateGroup, ErrNotAMember,
		ErrAmbientConflict, ErrLaggedInbox, ErrStorageUnavailable,
		ErrIntegrityViolation, ErrBadArguments, ErrToolNotPermitted,
		ErrToolTimeout, ErrLlmFailure, ErrPeerUnreachable,
		ErrProtocolMismatch, ErrCancelled, ErrReasoningBudgetExceeded,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Transient reports whether err's kind is locally retryable per §7's
// propagation policy (PeerUnreachable, StorageUnavailable).
func Transient(err error) bool {
	return errors.Is(err, ErrPeerUnreachable) || errors.Is(err, ErrStorageUnavailable)
}
