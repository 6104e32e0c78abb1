package apierr_test

import (
	"errors"
	"testing"

	"github.com/funtonic/taskserver/internal/apierr"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestGRPCStatusMapsKnownKinds(t *testing.T) {
	cases := []struct {
		kind apierr.Kind
		code codes.Code
	}{
		{apierr.KindKeyNotFound, codes.PermissionDenied},
		{apierr.KindWrongSignature, codes.PermissionDenied},
		{apierr.KindExpiredSignature, codes.PermissionDenied},
		{apierr.KindPayloadDecodeError, codes.InvalidArgument},
		{apierr.KindKeyEncodingError, codes.InvalidArgument},
		{apierr.KindParseError, codes.InvalidArgument},
		{apierr.KindUnrecognizedInput, codes.InvalidArgument},
		{apierr.KindTaskIdNotFound, codes.NotFound},
		{apierr.KindProtocolVersionMismatch, codes.FailedPrecondition},
		{apierr.KindInternal, codes.Internal},
	}

	for _, tc := range cases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			err := apierr.New(tc.kind, errors.New("boom"))
			st, ok := status.FromError(apierr.GRPCStatus(err))
			assert.True(t, ok)
			assert.Equal(t, tc.code, st.Code())
		})
	}
}

// An error outside the taxonomy (e.g. lock poisoning, storage I/O) falls
// back to Internal rather than leaking an unclassified status.
func TestGRPCStatusFallsBackToInternalForUnknownErrors(t *testing.T) {
	st, ok := status.FromError(apierr.GRPCStatus(errors.New("unexpected")))
	assert.True(t, ok)
	assert.Equal(t, codes.Internal, st.Code())
}

func TestGRPCStatusPassesThroughNil(t *testing.T) {
	assert.NoError(t, apierr.GRPCStatus(nil))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := apierr.New(apierr.KindInternal, cause)
	assert.ErrorIs(t, err, cause)
}
