package util

import "errors"

var (
	// ErrExtractionTooShort marks a document whose normalized text is below the
	// minimum length. It is reported and never retried.
	ErrExtractionTooShort = errors.New("extraction too short")

	// ErrTransientBackend is returned once retries against an embedding, index
	// or generation backend are exhausted.
	ErrTransientBackend = errors.New("transient backend failure")

	// ErrUngroundedAnswer is the internal signal raised when every generated
	// line was dropped for lack of a resolvable citation.
	ErrUngroundedAnswer = errors.New("ungrounded answer")

	ErrMalformedRequest = errors.New("malformed request")

	ErrUnsupportedFormat = errors.New("unsupported document format")
)
