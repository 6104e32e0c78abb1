package dispatch

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"sort"

	"github.com/funtonic/taskserver/api/proto/funtonicpb"
	"github.com/funtonic/taskserver/internal/apierr"
	"github.com/funtonic/taskserver/internal/metrics"
	"github.com/funtonic/taskserver/internal/predicate"
	"github.com/funtonic/taskserver/internal/signedpayload"
	"google.golang.org/protobuf/proto"
)

// Admin implements §4.7: eight read/write operations over the registry and
// key stores, each gated on AdminAuthorizedKeys and returning one
// JSON-serialized document, grounded on
// original_source/commander/src/admin.rs's AdminCommand set plus
// original_source/common/src/task_server/commander_service_impl.rs's admin
// handler match arms (a single unary RPC there too, not a stream).
func (s *CommanderServer) Admin(ctx context.Context, env *funtonicpb.SignedPayload) (*funtonicpb.AdminRequestResponse, error) {
	envelope := envelopeFromProto(env)
	if err := signedpayload.Verify(envelope, s.AdminAuthorizedKeys); err != nil {
		metrics.RecordRejectedSignature(rejectReason(err))
		return nil, apierr.GRPCStatus(classifySignatureError(err))
	}

	var req funtonicpb.AdminRequest
	if err := proto.Unmarshal(envelope.Payload, &req); err != nil {
		return nil, apierr.GRPCStatus(apierr.New(apierr.KindPayloadDecodeError, err))
	}

	result, err := s.dispatchAdmin(&req)
	if err != nil {
		return nil, err
	}
	return &funtonicpb.AdminRequestResponse{ResultJson: result}, nil
}

func (s *CommanderServer) dispatchAdmin(req *funtonicpb.AdminRequest) (string, error) {
	switch op := req.GetOperation().(type) {
	case *funtonicpb.AdminRequest_ListConnectedExecutors:
		return s.listExecutors(op.ListConnectedExecutors, true)
	case *funtonicpb.AdminRequest_ListKnownExecutors:
		return s.listExecutors(op.ListKnownExecutors, false)
	case *funtonicpb.AdminRequest_ListRunningTasks:
		return marshalJSON(s.Mailbox.listIDs())
	case *funtonicpb.AdminRequest_DropExecutor:
		return s.dropExecutor(op.DropExecutor)
	case *funtonicpb.AdminRequest_ListExecutorKeys:
		return s.listExecutorKeys()
	case *funtonicpb.AdminRequest_ApproveExecutorKey:
		return s.approveExecutorKey(op.ApproveExecutorKey)
	case *funtonicpb.AdminRequest_ListAuthorizedKeys:
		return marshalJSON(keyIDs(s.AuthorizedKeys.ListAll()))
	case *funtonicpb.AdminRequest_ListAdminAuthorizedKeys:
		return marshalJSON(keyIDs(s.AdminAuthorizedKeys.ListAll()))
	default:
		return "", apierr.GRPCStatus(apierr.New(apierr.KindUnrecognizedInput, nil))
	}
}

func (s *CommanderServer) listExecutors(query string, connectedOnly bool) (string, error) {
	q, err := parseAdminQuery(query)
	if err != nil {
		return "", apierr.GRPCStatus(apierr.New(apierr.KindParseError, err))
	}

	var metas []predicate.ExecutorMeta
	if connectedOnly {
		connected := make(map[string]bool)
		for _, id := range s.Registry.ListConnected(nil) {
			connected[id] = true
		}
		for _, meta := range s.Registry.ListKnown(q) {
			if connected[meta.ClientID] {
				metas = append(metas, meta)
			}
		}
	} else {
		metas = s.Registry.ListKnown(q)
	}

	out := make(map[string]predicate.ExecutorMeta, len(metas))
	for _, meta := range metas {
		out[meta.ClientID] = meta
	}
	return marshalJSON(out)
}

// parseAdminQuery treats "" and "*" identically (§4.7: the commander CLI
// defaults an omitted query to "*"), both meaning "every executor".
func parseAdminQuery(query string) (*predicate.Query, error) {
	if query == "" || query == "*" {
		return nil, nil
	}
	return predicate.Parse(query)
}

// droppedExecutor mirrors original_source's AdminDroppedExecutorJsonResponse.
type droppedExecutor struct {
	RemovedFromConnected bool `json:"removed_from_connected"`
	RemovedFromKnown     bool `json:"removed_from_known"`
}

func (s *CommanderServer) dropExecutor(query string) (string, error) {
	q, err := parseAdminQuery(query)
	if err != nil {
		return "", apierr.GRPCStatus(apierr.New(apierr.KindParseError, err))
	}
	outcomes, err := s.Registry.Drop(q)
	if err != nil {
		return "", apierr.GRPCStatus(apierr.New(apierr.KindInternal, err))
	}
	metrics.SetConnectedExecutors(s.Registry.ConnectedCount())

	out := make(map[string]droppedExecutor, len(outcomes))
	for clientID, o := range outcomes {
		out[clientID] = droppedExecutor{
			RemovedFromConnected: o.RemovedFromConnected,
			RemovedFromKnown:     o.RemovedFromKnown,
		}
	}
	return marshalJSON(out)
}

// executorKeysResponse mirrors AdminListExecutorKeysJsonResponse.
type executorKeysResponse struct {
	TrustedExecutorKeys    map[string]string `json:"trusted_executor_keys"`
	UnapprovedExecutorKeys map[string]string `json:"unapproved_executor_keys"`
}

func (s *CommanderServer) listExecutorKeys() (string, error) {
	resp := executorKeysResponse{
		TrustedExecutorKeys:    encodeKeys(s.ExecutorTrust.Trusted.ListAll()),
		UnapprovedExecutorKeys: encodeKeys(s.ExecutorTrust.Unapproved.ListAll()),
	}
	return marshalJSON(resp)
}

func (s *CommanderServer) approveExecutorKey(clientID string) (string, error) {
	approved, err := s.ExecutorTrust.Approve(clientID)
	if err != nil {
		return "", apierr.GRPCStatus(apierr.New(apierr.KindInternal, err))
	}
	metrics.SetTOFUPending(len(s.ExecutorTrust.Unapproved.ListAll()))
	return marshalJSON(approved)
}

func encodeKeys(keys map[string]ed25519.PublicKey) map[string]string {
	out := make(map[string]string, len(keys))
	for id, pub := range keys {
		out[id] = base64.StdEncoding.EncodeToString(pub)
	}
	return out
}

func keyIDs(keys map[string]ed25519.PublicKey) []string {
	out := make([]string, 0, len(keys))
	for id := range keys {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func marshalJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", apierr.GRPCStatus(apierr.New(apierr.KindInternal, err))
	}
	return string(b), nil
}
