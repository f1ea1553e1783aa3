package invoice

import (
	"errors"
	"fmt"
)

// Sentinel errors for documents that must not be processed further.
var (
	ErrMalformedDocument = errors.New("malformed document")
	ErrUnsafeDocument    = errors.New("unsafe document")
)

// DocumentError describes why a document was rejected and which segment
// caused it. It unwraps to ErrMalformedDocument or ErrUnsafeDocument.
type DocumentError struct {
	Kind    error
	Segment string
	Reason  string
}

func (e *DocumentError) Error() string {
	if e.Segment == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%v: %s (segment %s)", e.Kind, e.Reason, e.Segment)
}

func (e *DocumentError) Unwrap() error {
	return e.Kind
}

// Malformed builds a DocumentError for structurally invalid input.
func Malformed(segment, format string, args ...any) *DocumentError {
	return &DocumentError{Kind: ErrMalformedDocument, Segment: segment, Reason: fmt.Sprintf(format, args...)}
}

// Unsafe builds a DocumentError for payloads with unsafe constructs.
func Unsafe(segment, format string, args ...any) *DocumentError {
	return &DocumentError{Kind: ErrUnsafeDocument, Segment: segment, Reason: fmt.Sprintf(format, args...)}
}

// SegmentOf returns the offending segment of a DocumentError, if any.
func SegmentOf(err error) string {
	var docErr *DocumentError
	if errors.As(err, &docErr) {
		return docErr.Segment
	}
	return ""
}
