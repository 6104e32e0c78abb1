// Package dispatch implements the dispatch engine's two gRPC services
// (§4.6): ExecutorServer for GetTasks/TaskExecution, CommanderServer for
// LaunchTask/Admin. Grounded on original_source/common/src/task_server.rs
// and its commander_service_impl/executor_service_impl split, mapped onto
// the teacher's ExecutorService/CommanderService separation in
// internal/grpc/dataplane_server.go + controlplane_server.go.
package dispatch

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/funtonic/taskserver/api/proto/funtonicpb"
)

// mailboxEntry pairs a live task's reply channel with the bookkeeping
// needed once it completes: which executor owns it (TaskExecution itself
// never repeats the client_id), when it started (for task_duration_ms), and
// the originating LaunchTask span's trace/span ID (for trace-correlated
// task logs).
type mailboxEntry struct {
	reply     chan *funtonicpb.TaskExecutionResult
	clientID  string
	startedAt time.Time
	traceID   string
	spanID    string
}

// mailboxes maps a live task_id to the reply channel of the LaunchTask
// dispatch that spawned it, guarded by one mutex per §5.
type mailboxes struct {
	mu    sync.Mutex
	tasks map[string]mailboxEntry
}

func newMailboxes() *mailboxes {
	return &mailboxes{tasks: make(map[string]mailboxEntry)}
}

// NewMailboxes constructs a mailbox set. An ExecutorServer and the
// CommanderServer sharing its Registry must be given the same instance, so
// a TaskExecution report on the executor side can reach the LaunchTask
// stream that is waiting on the commander side.
func NewMailboxes() *mailboxes {
	return newMailboxes()
}

// allocate mints a fresh task_id and inserts its mailbox, called at the
// moment an executor pulls the next frame from its inbox (§4.6 "per-task
// lifecycle"). task_id is a 128-bit random value rendered as lowercase hex
// (§3): 16 bytes from crypto/rand, to match the original's
// `format!("{:x}", u128)`. traceID and spanID are the dispatching
// LaunchTask span's identifiers, empty when tracing is disabled.
func (m *mailboxes) allocate(reply chan *funtonicpb.TaskExecutionResult, clientID, traceID, spanID string) string {
	var raw [16]byte
	rand.Read(raw[:])
	taskID := hex.EncodeToString(raw[:])
	m.mu.Lock()
	m.tasks[taskID] = mailboxEntry{reply: reply, clientID: clientID, startedAt: time.Now(), traceID: traceID, spanID: spanID}
	m.mu.Unlock()
	return taskID
}

// forward delivers event to taskID's mailbox, stamping it with the owning
// client_id (TaskExecution's wire events never repeat it). Returns false
// (NotFound) if the mailbox no longer exists.
func (m *mailboxes) forward(taskID string, event *funtonicpb.TaskExecutionResult) bool {
	m.mu.Lock()
	entry, ok := m.tasks[taskID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	event.ClientId = entry.clientID
	entry.reply <- event
	return true
}

// taskMeta reports the owning client_id, trace/span ID, and elapsed runtime
// for taskID, for task_duration_ms and trace-correlated task-log lines. ok
// is false once the mailbox has been closed.
func (m *mailboxes) taskMeta(taskID string) (clientID, traceID, spanID string, elapsed time.Duration, ok bool) {
	m.mu.Lock()
	entry, ok := m.tasks[taskID]
	m.mu.Unlock()
	if !ok {
		return "", "", "", 0, false
	}
	return entry.clientID, entry.traceID, entry.spanID, time.Since(entry.startedAt), true
}

// close removes taskID's mailbox; subsequent forward calls for it report
// NotFound, per §4.6 step 3 of TaskExecution.
func (m *mailboxes) close(taskID string) {
	m.mu.Lock()
	delete(m.tasks, taskID)
	m.mu.Unlock()
}

// listIDs returns the task_ids with a currently open mailbox, for admin
// list-running-tasks.
func (m *mailboxes) listIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.tasks))
	for id := range m.tasks {
		out = append(out, id)
	}
	return out
}
