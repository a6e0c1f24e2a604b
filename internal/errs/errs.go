// Package errs defines the error kinds raised by the routing engine.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures by how callers are expected to react.
type Kind int

const (
	Other Kind = iota
	// DataError marks missing or malformed input. Callers log and degrade.
	DataError
	// ReachabilityError marks a location a vehicle cannot legally or physically reach.
	ReachabilityError
	// RoutingError marks a tour that cannot be closed over the road graph.
	RoutingError
	// CapacityExhaustion marks a demand no vehicle can carry.
	CapacityExhaustion
	// ConfigurationError is fatal for the whole run.
	ConfigurationError
)

func (k Kind) String() string {
	switch k {
	case DataError:
		return "data"
	case ReachabilityError:
		return "reachability"
	case RoutingError:
		return "routing"
	case CapacityExhaustion:
		return "capacity"
	case ConfigurationError:
		return "configuration"
	}
	return "other"
}

// Error is a classified engine error.
type Error struct {
	Kind    Kind
	Op      string
	Subject string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Subject != "" {
		msg += " " + e.Subject
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg + " (" + e.Kind.String() + ")"
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error. err may be nil.
func E(kind Kind, op, subject string, err error) error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: err}
}

// Ef is E with a formatted cause.
func Ef(kind Kind, op, subject, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Other
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
