// Package failure classifies errors raised while exporting a report so the run loop
// can branch on the kind of failure instead of inspecting error text.
package failure

import (
	"errors"
	"fmt"
)

// Kind is the class of a failure.
type Kind int

const (
	// Unclassified covers any error that has not been given a more precise kind.
	Unclassified Kind = iota
	// Transient is a network-level failure (truncated or interrupted response) that is
	// safe to retry with identical parameters.
	Transient
	// Remote is a permanent refusal by the remote service: a malformed request or a
	// report that failed to process.
	Remote
	// Config is an operator-fixable problem: destination table exists, interval too
	// large, bad credentials.
	Config
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Remote:
		return "remote"
	case Config:
		return "config"
	default:
		return "unclassified"
	}
}

// Error is a tagged failure. Op names the operation that failed (e.g. "create",
// "download part 3").
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New tags err with kind. A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrap returns err unchanged when it already carries a kind, otherwise tags it as
// Unclassified.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Kind: Unclassified, Op: op, Err: err}
}

// KindOf reports the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unclassified
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == kind
}
