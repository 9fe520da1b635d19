package engine

import "errors"

// ErrInvalidAmount marks amount text that is not a strictly positive finite
// decimal.
var ErrInvalidAmount = errors.New("engine: invalid amount")

// ErrorKind buckets user-visible failures for the presenter and for metrics.
type ErrorKind string

const (
	// KindValidation covers malformed user input: address shape, non-numeric or
	// non-positive amounts, stale menu indexes.
	KindValidation ErrorKind = "validation"
	// KindNotConnected marks actions that require a linked wallet.
	KindNotConnected ErrorKind = "not_connected"
	// KindUpstream marks market catalog or payload builder failures.
	KindUpstream ErrorKind = "upstream"
	// KindChain marks build, sign, broadcast, or finality failures.
	KindChain ErrorKind = "chain"
)
