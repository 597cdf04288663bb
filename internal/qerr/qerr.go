// Package qerr defines the error kinds the core raises, per spec.md §7.
// Like the teacher's qerr package, errors are plain sentinel values rather
// than a panic/recover scheme — callers switch on errors.Is.
package qerr

import "errors"

// Kind classifies an error so callers that care can branch on it without
// string-matching.
type Kind int

const (
	KindNone Kind = iota
	KindNoSourceCid
	KindNullKey
	KindAllocFailure
	KindBufferTooSmall
	KindInvalidParameter
	KindMalformed
	KindEncryptionFailure
	KindTruncated
	KindHandshakeConfirmationTiming
)

func (k Kind) String() string {
	switch k {
	case KindNoSourceCid:
		return "NoSourceCid"
	case KindNullKey:
		return "NullKey"
	case KindAllocFailure:
		return "AllocFailure"
	case KindBufferTooSmall:
		return "BufferTooSmall"
	case KindInvalidParameter:
		return "InvalidParameter"
	case KindMalformed:
		return "Malformed"
	case KindEncryptionFailure:
		return "EncryptionFailure"
	case KindTruncated:
		return "Truncated"
	case KindHandshakeConfirmationTiming:
		return "HandshakeConfirmationTiming"
	default:
		return "None"
	}
}

// Error wraps a Kind with a human-readable message.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Msg
}

func newErr(k Kind, msg string) *Error { return &Error{Kind: k, Msg: msg} }

// Sentinel errors for errors.Is comparisons against a particular kind,
// mirroring spec.md §7's table.
var (
	ErrNoSourceCid                 = newErr(KindNoSourceCid, "no source connection ID available")
	ErrNullKey                     = newErr(KindNullKey, "no write key for requested encryption level")
	ErrAllocFailure                = newErr(KindAllocFailure, "datapath allocation failed")
	ErrBufferTooSmall              = newErr(KindBufferTooSmall, "write exceeds available buffer capacity")
	ErrInvalidParameter            = newErr(KindInvalidParameter, "invalid parameter")
	ErrMalformed                   = newErr(KindMalformed, "malformed encoding")
	ErrEncryptionFailure           = newErr(KindEncryptionFailure, "AEAD or header-protection failure")
	ErrTruncated                   = newErr(KindTruncated, "buffer truncated")
	ErrHandshakeConfirmationTiming = newErr(KindHandshakeConfirmationTiming, "key update requested before handshake confirmed")
)

// Is implements errors.Is support for *Error by comparing Kind, so a
// freshly constructed *Error with the same Kind (e.g. one carrying a more
// specific Msg) still matches the sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New constructs an *Error of the given kind with a specific message,
// while still comparing equal (via errors.Is) to the matching sentinel.
func New(k Kind, msg string) *Error {
	return newErr(k, msg)
}
