// Package minererr defines the error taxonomy shared across the mining
// client: configuration, network, protocol, stratum, work/target validation,
// worker, timeout and channel errors.
package minererr

import "fmt"

// Kind identifies the class of error, independent of the underlying cause.
type Kind string

const (
	Config       Kind = "config"
	Network      Kind = "network"
	Protocol     Kind = "protocol"
	Stratum      Kind = "stratum"
	InvalidWork  Kind = "invalid_work"
	InvalidTarget Kind = "invalid_target"
	Worker       Kind = "worker"
	Timeout      Kind = "timeout"
	ChannelSend  Kind = "channel_send"
	ChannelRecv  Kind = "channel_recv"
	Other        Kind = "other"
)

// Error wraps a Kind and a descriptive message, optionally chaining an
// underlying cause, in the same spirit as the teacher's MakeError/IsError
// helpers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	me, ok := err.(*Error)
	if !ok {
		return false
	}
	return me.Kind == kind
}
