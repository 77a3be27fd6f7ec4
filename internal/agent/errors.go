package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a backup id has no matching
	// archive+metadata pair in the bucket.
	ErrNotFound = errors.New("backup not found")

	// ErrMalformedMetadata is returned when a metadata object's bytes are
	// not valid JSON.
	ErrMalformedMetadata = errors.New("metadata is not valid JSON")

	// ErrUnexpectedMetadataShape is returned when metadata parsed as JSON
	// but the top-level value is not an object.
	ErrUnexpectedMetadataShape = errors.New("metadata JSON is not an object")
)

// Error translates a storage-level failure at a public operation boundary.
// It carries the failing operation's name so callers never need to depend
// on vendor SDK error types.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("backup agent: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// opError wraps err for the named operation. Nil errors, ErrNotFound and
// already-translated errors pass through unchanged.
func opError(op string, err error) error {
	if err == nil {
		return nil
	}
	var agentErr *Error
	if errors.Is(err, ErrNotFound) || errors.As(err, &agentErr) {
		return err
	}
	return &Error{Op: op, Err: err}
}
