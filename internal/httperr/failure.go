package httperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindNetworkUnreachable is transient; callers retry on the next pass.
	KindNetworkUnreachable
	// KindUnauthorized means the session is no longer valid.
	KindUnauthorized
	// KindNotFound means the remote record is gone.
	KindNotFound
	// KindServerError covers business rejections and 5xx responses.
	KindServerError
	// KindMalformedResponse is resolved like KindServerError.
	KindMalformedResponse
	// KindStorageFailure is a local I/O failure.
	KindStorageFailure
)

func (k Kind) String() string {
	switch k {
	case KindNetworkUnreachable:
		return "network_unreachable"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindServerError:
		return "server_error"
	case KindMalformedResponse:
		return "malformed_response"
	case KindStorageFailure:
		return "storage_failure"
	}
	return "unknown"
}

// Failure is the classified error returned by the gateway and the local store.
type Failure struct {
	Kind Kind
	// Code is the HTTP status for KindServerError, zero otherwise.
	Code int
	Op   string
	Err  error
}

func (f *Failure) Error() string {
	msg := f.Kind.String()
	if f.Code != 0 {
		msg = fmt.Sprintf("%s(%d)", msg, f.Code)
	}
	if f.Op != "" {
		msg = f.Op + ": " + msg
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Is matches another *Failure by kind, so errors.Is(err, httperr.ErrNotFound) works.
func (f *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	if !ok {
		return false
	}
	return t.Kind == f.Kind && (t.Code == 0 || t.Code == f.Code)
}

var (
	ErrNetworkUnreachable = &Failure{Kind: KindNetworkUnreachable}
	ErrUnauthorized       = &Failure{Kind: KindUnauthorized}
	ErrNotFound           = &Failure{Kind: KindNotFound}
	ErrServer             = &Failure{Kind: KindServerError}
	ErrMalformed          = &Failure{Kind: KindMalformedResponse}
	ErrStorage            = &Failure{Kind: KindStorageFailure}
)

func New(kind Kind, op string, err error) *Failure {
	return &Failure{Kind: kind, Op: op, Err: err}
}

func Server(op string, code int, err error) *Failure {
	return &Failure{Kind: KindServerError, Code: code, Op: op, Err: err}
}

func Storage(op string, err error) *Failure {
	return &Failure{Kind: KindStorageFailure, Op: op, Err: err}
}

// KindOf returns KindUnknown for nil or unclassified errors.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports transient failures that must leave records unsynced.
func Retryable(err error) bool {
	return IsKind(err, KindNetworkUnreachable)
}

// ServerWins reports failures resolved by taking the canonical remote record.
func ServerWins(err error) bool {
	k := KindOf(err)
	return k == KindServerError || k == KindMalformedResponse || k == KindNotFound
}
