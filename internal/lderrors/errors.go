// Package lderrors defines the single error taxonomy used across the
// loader pipeline.
package lderrors

import "fmt"

// Kind classifies a loader failure. All kinds are non-recoverable except
// UnsupportedReloc, which callers log and skip.
type Kind int

const (
	KindInvalidPath Kind = iota
	KindOpenFailed
	KindReadFailed
	KindParseFailed
	KindNotFound
	KindMapFailed
	KindOutOfBoundsSegment
	KindMissingSymbolIndex
	KindMissingSymbolName
	KindProtectFailed
	KindMissingEntry
	KindUnsupportedReloc
)

func (k Kind) String() string {
	switch k {
	case KindInvalidPath:
		return "InvalidPath"
	case KindOpenFailed:
		return "OpenFailed"
	case KindReadFailed:
		return "ReadFailed"
	case KindParseFailed:
		return "ParseFailed"
	case KindNotFound:
		return "NotFound"
	case KindMapFailed:
		return "MapFailed"
	case KindOutOfBoundsSegment:
		return "OutOfBoundsSegment"
	case KindMissingSymbolIndex:
		return "MissingSymbolIndex"
	case KindMissingSymbolName:
		return "MissingSymbolName"
	case KindProtectFailed:
		return "ProtectFailed"
	case KindMissingEntry:
		return "MissingEntry"
	case KindUnsupportedReloc:
		return "UnsupportedReloc"
	default:
		return "Unknown"
	}
}

// Error is a Malformed condition carrying a kind, a subject (object name,
// relocation, etc.) and a wrapped cause.
type Error struct {
	Kind    Kind
	Subject string
	Cause   error
}

func New(kind Kind, subject string, cause error) *Error {
	return &Error{Kind: kind, Subject: subject, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s(%s): %v", e.Kind, e.Subject, e.Cause)
	}
	return fmt.Sprintf("%s(%s)", e.Kind, e.Subject)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, letting
// callers write errors.Is(err, lderrors.New(lderrors.KindNotFound, "", nil)).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Recoverable reports whether the pipeline may log and continue.
func (e *Error) Recoverable() bool {
	return e.Kind == KindUnsupportedReloc
}
