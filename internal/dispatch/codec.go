package dispatch

import (
	"context"

	"github.com/funtonic/taskserver/api/proto/funtonicpb"
	"github.com/funtonic/taskserver/internal/signedpayload"
	"google.golang.org/grpc/metadata"
)

func envelopeFromProto(p *funtonicpb.SignedPayload) *signedpayload.Envelope {
	return &signedpayload.Envelope{
		KeyID:          p.GetKeyId(),
		Payload:        p.GetPayload(),
		Nonce:          p.GetNonce(),
		ValidUntilSecs: p.GetValidUntilSecs(),
		Signature:      p.GetSignature(),
	}
}

func protoFromEnvelope(e *signedpayload.Envelope) (*funtonicpb.SignedPayload, error) {
	return &funtonicpb.SignedPayload{
		KeyId:          e.KeyID,
		Payload:        e.Payload,
		Nonce:          e.Nonce,
		ValidUntilSecs: e.ValidUntilSecs,
		Signature:      e.Signature,
	}, nil
}

// taskIDFromMetadata reads the "task_id" incoming metadata key set by the
// executor opening a TaskExecution stream (§6).
func taskIDFromMetadata(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	values := md.Get("task_id")
	if len(values) == 0 || values[0] == "" {
		return "", false
	}
	return values[0], true
}
