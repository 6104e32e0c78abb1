package dispatch

import (
	"github.com/funtonic/taskserver/api/proto/funtonicpb"
	"github.com/funtonic/taskserver/internal/apierr"
	"github.com/funtonic/taskserver/internal/keystore"
	"github.com/funtonic/taskserver/internal/metrics"
	"github.com/funtonic/taskserver/internal/observability"
	"github.com/funtonic/taskserver/internal/predicate"
	"github.com/funtonic/taskserver/internal/registry"
	"github.com/funtonic/taskserver/internal/signedpayload"
	"google.golang.org/protobuf/proto"
)

// CommanderServer implements funtonicpb.CommanderServiceServer (§4.6, §4.7).
type CommanderServer struct {
	funtonicpb.UnimplementedCommanderServiceServer

	Registry           *registry.Registry
	AuthorizedKeys     keystore.Store
	AdminAuthorizedKeys keystore.Store
	ExecutorTrust      *keystore.ExecutorTrust
	Mailbox            *mailboxes
}

// LaunchTask implements §4.6's command-launch sequence.
func (s *CommanderServer) LaunchTask(req *funtonicpb.LaunchTaskRequest, stream funtonicpb.CommanderService_LaunchTaskServer) error {
	env := envelopeFromProto(req.GetPayload())
	if err := signedpayload.Verify(env, s.AuthorizedKeys); err != nil {
		metrics.RecordRejectedSignature(rejectReason(err))
		metrics.RecordDispatch("rejected_signature", 0)
		return apierr.GRPCStatus(classifySignatureError(err))
	}

	var taskPayload funtonicpb.LaunchTaskRequestPayload
	if err := proto.Unmarshal(env.Payload, &taskPayload); err != nil {
		return apierr.GRPCStatus(apierr.New(apierr.KindPayloadDecodeError, err))
	}

	switch taskPayload.GetTask().(type) {
	case *funtonicpb.LaunchTaskRequestPayload_AuthorizeKey, *funtonicpb.LaunchTaskRequestPayload_RevokeKey:
		if err := signedpayload.Verify(env, s.AdminAuthorizedKeys); err != nil {
			metrics.RecordRejectedSignature(rejectReason(err))
			metrics.RecordDispatch("rejected_signature", 0)
			return apierr.GRPCStatus(classifySignatureError(err))
		}
	}

	query, err := predicate.Parse(req.GetPredicate())
	if err != nil {
		metrics.RecordDispatch("invalid_predicate", 0)
		return apierr.GRPCStatus(apierr.New(apierr.KindParseError, err))
	}

	switch t := taskPayload.GetTask().(type) {
	case *funtonicpb.LaunchTaskRequestPayload_AuthorizeKey:
		pk := t.AuthorizeKey
		if err := s.AuthorizedKeys.Insert(pk.GetKeyId(), pk.GetBytes()); err != nil {
			return apierr.GRPCStatus(apierr.New(apierr.KindInternal, err))
		}
	case *funtonicpb.LaunchTaskRequestPayload_RevokeKey:
		s.AuthorizedKeys.Remove(t.RevokeKey)
	}

	matches := s.Registry.MatchExecutors(query)
	clientIDs := make([]string, len(matches))
	for i, m := range matches {
		clientIDs[i] = m.ClientID
	}
	if len(matches) == 0 {
		metrics.RecordDispatch("no_match", 0)
	} else {
		metrics.RecordDispatch("ok", len(matches))
	}

	if err := stream.Send(&funtonicpb.LaunchTaskResponse{
		TaskResponse: &funtonicpb.LaunchTaskResponse_MatchingExecutors{
			MatchingExecutors: &funtonicpb.MatchingExecutors{ClientId: clientIDs},
		},
	}); err != nil {
		return err
	}

	reply := make(chan *funtonicpb.TaskExecutionResult)
	trace := observability.ExtractTraceContext(stream.Context())
	pending := 0
	for _, m := range matches {
		if m.Inbox == nil {
			if err := stream.Send(disconnectedResult("", m.ClientID)); err != nil {
				return err
			}
			continue
		}
		select {
		case m.Inbox <- &registry.Dispatch{Payload: env, Reply: reply, Trace: trace}:
			pending++
		default:
			if err := stream.Send(disconnectedResult("", m.ClientID)); err != nil {
				return err
			}
		}
	}

	ctx := stream.Context()
	for pending > 0 {
		select {
		case <-ctx.Done():
			return nil
		case event := <-reply:
			if err := stream.Send(&funtonicpb.LaunchTaskResponse{
				TaskResponse: &funtonicpb.LaunchTaskResponse_TaskExecutionResult{TaskExecutionResult: event},
			}); err != nil {
				return err
			}
			if isDispatchTerminal(event) {
				pending--
			}
		}
	}
	return nil
}

func disconnectedResult(taskID, clientID string) *funtonicpb.LaunchTaskResponse {
	return &funtonicpb.LaunchTaskResponse{
		TaskResponse: &funtonicpb.LaunchTaskResponse_TaskExecutionResult{
			TaskExecutionResult: &funtonicpb.TaskExecutionResult{
				TaskId:   taskID,
				ClientId: clientID,
				ExecutionResult: &funtonicpb.TaskExecutionEvent{
					ExecutionResult: &funtonicpb.TaskExecutionEvent_Disconnected{Disconnected: &funtonicpb.Empty{}},
				},
			},
		},
	}
}

func isDispatchTerminal(r *funtonicpb.TaskExecutionResult) bool {
	return terminal(r.GetExecutionResult())
}
