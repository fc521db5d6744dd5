package heap

import "errors"

// --- Error Definitions ---

// Corruption errors (ErrMalformedIndex, ErrTruncatedLine, ErrOutOfBounds,
// ErrPageIntegrity) mean the buffer cannot be trusted; callers should treat
// the page as damaged and escalate rather than retry. The remaining errors
// report contract violations by the caller.
var (
	ErrPointerRange   = errors.New("pointer field out of range")
	ErrBadLength      = errors.New("unexpected byte length")
	ErrMalformedIndex = errors.New("line index region is not a multiple of the entry size")
	ErrTruncatedLine  = errors.New("line is shorter than its declared pointer prefix")
	ErrOutOfBounds    = errors.New("line escapes the page body region")
	ErrPageIntegrity  = errors.New("header and trailer disagree on the page number")
	ErrSlotOutOfRange = errors.New("slot index out of range")
	ErrPageFull       = errors.New("not enough free space left on the page")
	ErrTooManyLines   = errors.New("line count limit for a single page exceeded")
)
