package dispatch

import (
	"crypto/ed25519"

	"github.com/funtonic/taskserver/api/proto/funtonicpb"
	"github.com/funtonic/taskserver/internal/apierr"
	"github.com/funtonic/taskserver/internal/keystore"
	"github.com/funtonic/taskserver/internal/logging"
	"github.com/funtonic/taskserver/internal/metrics"
	"github.com/funtonic/taskserver/internal/observability"
	"github.com/funtonic/taskserver/internal/predicate"
	"github.com/funtonic/taskserver/internal/registry"
	"github.com/funtonic/taskserver/internal/signedpayload"
	"google.golang.org/protobuf/proto"
)

// ProtocolVersion is the exact string executors must present in
// GetTasksRequest.ClientProtocolVersion (§6).
const ProtocolVersion = "1"

// ExecutorServer implements funtonicpb.ExecutorServiceServer (§4.6).
type ExecutorServer struct {
	funtonicpb.UnimplementedExecutorServiceServer

	Registry *registry.Registry
	Trust    *keystore.ExecutorTrust
	Mailbox  *mailboxes
}

// staticKeyLookup resolves exactly one key_id to one public key: used to
// verify the GetTasks handshake signature against the key the executor
// just presented, before any TOFU decision has been made about it.
type staticKeyLookup struct {
	keyID string
	pub   ed25519.PublicKey
}

func (s staticKeyLookup) Lookup(keyID string) (ed25519.PublicKey, bool) {
	if keyID != s.keyID {
		return nil, false
	}
	return s.pub, true
}

// GetTasks implements the executor handshake and task fan-out stream.
func (s *ExecutorServer) GetTasks(req *funtonicpb.RegisterExecutorRequest, stream funtonicpb.ExecutorService_GetTasksServer) error {
	env := envelopeFromProto(req.GetGetTasksRequest())
	lookup := staticKeyLookup{keyID: env.KeyID, pub: ed25519.PublicKey(req.GetPublicKey())}
	if err := signedpayload.Verify(env, lookup); err != nil {
		metrics.RecordRejectedSignature(rejectReason(err))
		return apierr.GRPCStatus(classifySignatureError(err))
	}

	var getTasksReq funtonicpb.GetTasksRequest
	if err := proto.Unmarshal(env.Payload, &getTasksReq); err != nil {
		return apierr.GRPCStatus(apierr.New(apierr.KindPayloadDecodeError, err))
	}

	if getTasksReq.GetClientProtocolVersion() != ProtocolVersion {
		return apierr.GRPCStatus(apierr.New(apierr.KindProtocolVersionMismatch, nil))
	}

	clientID := req.GetClientId()
	status, err := s.Trust.Observe(clientID, ed25519.PublicKey(req.GetPublicKey()))
	if err != nil {
		return apierr.GRPCStatus(apierr.New(apierr.KindInternal, err))
	}
	if status == keystore.NewlyPending {
		metrics.SetTOFUPending(len(s.Trust.Unapproved.ListAll()))
	}
	if status != keystore.Trusted {
		// Metadata capture still proceeds (§4.4) but no inbox is created:
		// the executor is known but cannot receive tasks until approved.
		meta := metaFromProto(clientID, &getTasksReq)
		_ = s.Registry.Register(meta, nil, nil)
		return apierr.GRPCStatus(apierr.New(apierr.KindKeyNotFound, nil))
	}

	inbox := registry.NewInbox()
	meta := metaFromProto(clientID, &getTasksReq)
	if err := s.Registry.Register(meta, inbox, authorizedKeysFromProto(&getTasksReq)); err != nil {
		return apierr.GRPCStatus(apierr.New(apierr.KindInternal, err))
	}
	metrics.SetConnectedExecutors(s.Registry.ConnectedCount())
	defer func() {
		s.Registry.Disconnect(clientID)
		metrics.SetConnectedExecutors(s.Registry.ConnectedCount())
	}()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-inbox:
			if !ok {
				return nil
			}
			traceCtx := observability.InjectTraceContext(ctx, d.Trace)
			traceID := observability.GetTraceID(traceCtx)
			spanID := observability.GetSpanID(traceCtx)
			taskID := s.Mailbox.allocate(d.Reply, clientID, traceID, spanID)
			d.Reply <- &funtonicpb.TaskExecutionResult{
				TaskId:   taskID,
				ClientId: clientID,
				ExecutionResult: &funtonicpb.TaskExecutionEvent{
					ExecutionResult: &funtonicpb.TaskExecutionEvent_TaskSubmitted{TaskSubmitted: &funtonicpb.Empty{}},
				},
			}
			payload, err := protoFromEnvelope(d.Payload)
			if err != nil {
				logging.OpWithTrace(traceID, spanID).Warn("failed to encode forwarded payload", "task_id", taskID, "error", err)
				continue
			}
			if err := stream.Send(&funtonicpb.GetTaskStreamReply{TaskId: taskID, Payload: payload}); err != nil {
				return err
			}
		}
	}
}

// TaskExecution implements the executor's result stream (§4.6).
func (s *ExecutorServer) TaskExecution(stream funtonicpb.ExecutorService_TaskExecutionServer) error {
	taskID, ok := taskIDFromMetadata(stream.Context())
	if !ok {
		return apierr.GRPCStatus(apierr.New(apierr.KindTaskIdNotFound, nil))
	}
	defer s.Mailbox.close(taskID)

	for {
		signed, err := stream.Recv()
		if err != nil {
			return err
		}

		env := envelopeFromProto(signed)
		if verr := signedpayload.Verify(env, s.Trust.Trusted); verr != nil {
			metrics.RecordRejectedSignature(rejectReason(verr))
			return apierr.GRPCStatus(classifySignatureError(verr))
		}

		var event funtonicpb.TaskExecutionEvent
		if err := proto.Unmarshal(env.Payload, &event); err != nil {
			return apierr.GRPCStatus(apierr.New(apierr.KindPayloadDecodeError, err))
		}

		if terminal(&event) {
			s.recordTaskOutcome(taskID, &event)
		}

		result := &funtonicpb.TaskExecutionResult{TaskId: taskID, ExecutionResult: &event}
		if !s.Mailbox.forward(taskID, result) {
			return apierr.GRPCStatus(apierr.New(apierr.KindTaskIdNotFound, nil))
		}

		if terminal(&event) {
			return stream.SendAndClose(&funtonicpb.Empty{})
		}
	}
}

// recordTaskOutcome logs and records metrics for a terminal
// TaskExecutionEvent, using the mailbox's bookkeeping for the client_id and
// elapsed time that the event itself doesn't repeat.
func (s *ExecutorServer) recordTaskOutcome(taskID string, event *funtonicpb.TaskExecutionEvent) {
	clientID, traceID, spanID, elapsed, ok := s.Mailbox.taskMeta(taskID)
	if !ok {
		return
	}

	entry := &logging.TaskLog{
		TaskID:     taskID,
		ExecutorID: clientID,
		TraceID:    traceID,
		SpanID:     spanID,
		DurationMs: elapsed.Milliseconds(),
	}

	exitStatus := "failure"
	switch e := event.ExecutionResult.(type) {
	case *funtonicpb.TaskExecutionEvent_TaskCompleted:
		entry.ExitCode = e.TaskCompleted
		entry.Success = e.TaskCompleted == 0
		if entry.Success {
			exitStatus = "success"
		}
	case *funtonicpb.TaskExecutionEvent_TaskRejected:
		entry.Error = e.TaskRejected
	case *funtonicpb.TaskExecutionEvent_TaskAborted:
		entry.Error = "aborted"
	case *funtonicpb.TaskExecutionEvent_Disconnected:
		entry.Error = "disconnected"
	}

	logging.Default().Log(entry)
	metrics.RecordTaskDuration(exitStatus, entry.DurationMs)
}

func terminal(e *funtonicpb.TaskExecutionEvent) bool {
	switch e.ExecutionResult.(type) {
	case *funtonicpb.TaskExecutionEvent_TaskCompleted, *funtonicpb.TaskExecutionEvent_TaskAborted,
		*funtonicpb.TaskExecutionEvent_TaskRejected, *funtonicpb.TaskExecutionEvent_Disconnected:
		return true
	default:
		return false
	}
}

func metaFromProto(clientID string, req *funtonicpb.GetTasksRequest) predicate.ExecutorMeta {
	tags := make(map[string]predicate.Tag, len(req.GetTags()))
	for k, v := range req.GetTags() {
		tags[k] = tagFromProto(v)
	}
	return predicate.ExecutorMeta{ClientID: clientID, Version: req.GetClientVersion(), Tags: tags}
}

func tagFromProto(t *funtonicpb.Tag) predicate.Tag {
	switch v := t.GetValue().(type) {
	case *funtonicpb.Tag_List:
		items := make([]predicate.Tag, len(v.List.GetValues()))
		for i, s := range v.List.GetValues() {
			items[i] = predicate.NewScalarTag(s)
		}
		return predicate.NewListTag(items)
	case *funtonicpb.Tag_Map:
		m := make(map[string]predicate.Tag, len(v.Map.GetEntries()))
		for k, inner := range v.Map.GetEntries() {
			m[k] = tagFromProto(inner)
		}
		return predicate.NewMapTag(m)
	default:
		return predicate.NewScalarTag(t.GetScalar())
	}
}

func authorizedKeysFromProto(req *funtonicpb.GetTasksRequest) []struct {
	KeyID string
	Bytes []byte
} {
	out := make([]struct {
		KeyID string
		Bytes []byte
	}, len(req.GetAuthorizedKeys()))
	for i, k := range req.GetAuthorizedKeys() {
		out[i] = struct {
			KeyID string
			Bytes []byte
		}{KeyID: k.GetKeyId(), Bytes: k.GetBytes()}
	}
	return out
}

func rejectReason(err error) string {
	switch err {
	case signedpayload.ErrExpiredSignature:
		return "expired"
	case signedpayload.ErrKeyNotFound:
		return "key_not_found"
	case signedpayload.ErrWrongSignature:
		return "wrong_signature"
	default:
		return "other"
	}
}

func classifySignatureError(err error) *apierr.Error {
	switch err {
	case signedpayload.ErrExpiredSignature:
		return apierr.New(apierr.KindExpiredSignature, err)
	case signedpayload.ErrKeyNotFound:
		return apierr.New(apierr.KindKeyNotFound, err)
	case signedpayload.ErrWrongSignature:
		return apierr.New(apierr.KindWrongSignature, err)
	default:
		return apierr.New(apierr.KindInternal, err)
	}
}
