package domain

import (
	"errors"
	"fmt"
)

// TransportErrorKind classifies a failure reported by the chat platform.
type TransportErrorKind int

const (
	TransportGeneric TransportErrorKind = iota
	TransportNotFound
	TransportForbidden
	TransportParseError
	TransportCaptionTooLong
	TransportNotModified
)

func (k TransportErrorKind) String() string {
	switch k {
	case TransportNotFound:
		return "not_found"
	case TransportForbidden:
		return "forbidden"
	case TransportParseError:
		return "parse_error"
	case TransportCaptionTooLong:
		return "caption_too_long"
	case TransportNotModified:
		return "not_modified"
	default:
		return "generic"
	}
}

// TransportError is returned by port.Transport implementations.
type TransportError struct {
	Kind TransportErrorKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("chat transport [%s]: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// TransportKind extracts the transport error kind from err. Errors that are not
// transport errors are reported as generic.
func TransportKind(err error) TransportErrorKind {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	return TransportGeneric
}

// IsTransportKind reports whether err is a transport error of kind k.
func IsTransportKind(err error, k TransportErrorKind) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Kind == k
}
