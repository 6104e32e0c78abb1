// Package apierr maps the closed error taxonomy of the task server (§7) onto
// gRPC status codes, the same way the teacher's internal/grpc handlers call
// status.Error(codes.X, ...) inline — collapsed into one mapping function
// since this taxonomy is small and closed.
package apierr

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind discriminates the taxonomy atoms named in spec §7.
type Kind int

const (
	KindInternal Kind = iota
	KindKeyNotFound
	KindWrongSignature
	KindExpiredSignature
	KindPayloadDecodeError
	KindKeyEncodingError
	KindParseError
	KindUnrecognizedInput
	KindTaskIdNotFound
	KindProtocolVersionMismatch
)

// Error wraps an underlying cause with a taxonomy Kind so handlers can map
// it to the correct gRPC status without re-deriving the classification.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}
func (e *Error) Unwrap() error { return e.Err }

func (k Kind) String() string {
	switch k {
	case KindKeyNotFound:
		return "key not found"
	case KindWrongSignature:
		return "wrong signature"
	case KindExpiredSignature:
		return "expired signature"
	case KindPayloadDecodeError:
		return "payload decode error"
	case KindKeyEncodingError:
		return "key encoding error"
	case KindParseError:
		return "parse error"
	case KindUnrecognizedInput:
		return "unrecognized input"
	case KindTaskIdNotFound:
		return "task id not found"
	case KindProtocolVersionMismatch:
		return "protocol version mismatch"
	default:
		return "internal error"
	}
}

func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// GRPCStatus translates err into the gRPC status the wire protocol expects.
// Unrecognized errors surface as Internal, per §7's "lock poisoning, storage
// I/O, database corruption -> Internal" catch-all.
func GRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return status.Error(codes.Internal, err.Error())
	}
	switch apiErr.Kind {
	case KindKeyNotFound, KindWrongSignature, KindExpiredSignature:
		return status.Error(codes.PermissionDenied, apiErr.Error())
	case KindPayloadDecodeError, KindKeyEncodingError:
		return status.Error(codes.InvalidArgument, apiErr.Error())
	case KindParseError, KindUnrecognizedInput:
		return status.Error(codes.InvalidArgument, apiErr.Error())
	case KindTaskIdNotFound:
		return status.Error(codes.NotFound, apiErr.Error())
	case KindProtocolVersionMismatch:
		return status.Error(codes.FailedPrecondition, apiErr.Error())
	default:
		return status.Error(codes.Internal, apiErr.Error())
	}
}
