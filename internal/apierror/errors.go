package apierror

import (
	"errors"
	"fmt"
)

// Kind classifies a failure at the point where it happens. The HTTP status is
// derived from the kind only, see StatusFor.
type Kind int

const (
	KindUnknown Kind = iota
	KindClient
	KindNotFound
	KindConflict
	KindUnauthenticated
	KindInvalidKey
	KindUserStore
	KindSignature
	KindEncoding
	KindSerialization
	KindAlgorithm
	KindStorage
	KindServer

	numKinds
)

var kindNames = [numKinds]string{
	KindUnknown:         "unknown",
	KindClient:          "client",
	KindNotFound:        "not_found",
	KindConflict:        "conflict",
	KindUnauthenticated: "unauthenticated",
	KindInvalidKey:      "invalid_key",
	KindUserStore:       "user_store",
	KindSignature:       "signature",
	KindEncoding:        "encoding",
	KindSerialization:   "serialization",
	KindAlgorithm:       "algorithm",
	KindStorage:         "storage",
	KindServer:          "server",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. It returns nil when err is nil.
func Wrap(err error, kind Kind, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
