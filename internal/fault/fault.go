// Package fault classifies the failures the relay distinguishes when
// deciding whether to exit, retry or drop.
package fault

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Unknown Kind = iota
	Config
	StoreConnect
	Decode
	PublishChannelFull
	SinkWrite
	UpstreamStream
	ClientDisconnect
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "config"
	case StoreConnect:
		return "store_connect"
	case Decode:
		return "decode"
	case PublishChannelFull:
		return "publish_channel_full"
	case SinkWrite:
		return "sink_write"
	case UpstreamStream:
		return "upstream_stream"
	case ClientDisconnect:
		return "client_disconnect"
	default:
		return "unknown"
	}
}

// Error tags an underlying error with a Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind. A nil err still yields an error carrying kind.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf formats a message and tags it with kind.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the outermost Kind found in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether any error in err's chain carries kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		var fe *Error
		if !errors.As(err, &fe) {
			return false
		}
		if fe.Kind == kind {
			return true
		}
		err = fe.Err
	}
	return false
}
