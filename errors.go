package buckettree

import "errors"

// Error kinds, one per invariant violation distinguished in the design.
// Callers should compare with errors.Is; wrapped instances carry
// positional detail via fmt.Errorf("%w: ...", ...).
var (
	// ErrInvalidOffset is returned when a queried virtual address falls
	// outside [start, end), or a move is attempted past an endpoint.
	ErrInvalidOffset = errors.New("buckettree: virtual address out of range")

	// ErrInvalidHeader is returned when the top-level Header fails
	// magic, version, or entry-count validation.
	ErrInvalidHeader = errors.New("buckettree: invalid header")

	// ErrInvalidNodeHeader is returned when a NodeHeader's index, count,
	// or offset violates the invariants for its role and level.
	ErrInvalidNodeHeader = errors.New("buckettree: invalid node header")

	// ErrOutOfRange is returned when an internal consistency check fails
	// during search: the located entry set or entry does not cover the
	// address it was expected to cover.
	ErrOutOfRange = errors.New("buckettree: search did not resolve to a covering entry")

	// ErrOutOfMemory is returned when the injected Allocator fails to
	// satisfy a node allocation.
	ErrOutOfMemory = errors.New("buckettree: allocator exhausted")

	// ErrStorageFailure wraps a read failure returned by an injected
	// Storage implementation.
	ErrStorageFailure = errors.New("buckettree: storage read failed")

	// ErrPreconditionViolation indicates API misuse: operating on an
	// uninitialized tree or an invalid Visitor.
	ErrPreconditionViolation = errors.New("buckettree: precondition violated")
)
