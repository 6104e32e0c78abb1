package dispatch

import (
	"testing"
	"time"

	"github.com/funtonic/taskserver/api/proto/funtonicpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateProducesLowercaseHexTaskID(t *testing.T) {
	m := newMailboxes()
	reply := make(chan *funtonicpb.TaskExecutionResult, 1)

	taskID := m.allocate(reply, "exec1", "", "")

	assert.Len(t, taskID, 32)
	for _, r := range taskID {
		assert.True(t, (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f'), "unexpected rune %q in task_id", r)
	}
}

func TestAllocateProducesUniqueIDs(t *testing.T) {
	m := newMailboxes()
	reply := make(chan *funtonicpb.TaskExecutionResult, 1)

	first := m.allocate(reply, "exec1", "", "")
	second := m.allocate(reply, "exec1", "", "")

	assert.NotEqual(t, first, second)
}

func TestForwardDeliversToAllocatedMailboxAndStampsClientID(t *testing.T) {
	m := newMailboxes()
	reply := make(chan *funtonicpb.TaskExecutionResult, 1)
	taskID := m.allocate(reply, "exec1", "", "")

	event := &funtonicpb.TaskExecutionResult{TaskId: taskID}
	ok := m.forward(taskID, event)
	require.True(t, ok)

	select {
	case got := <-reply:
		assert.Same(t, event, got)
		assert.Equal(t, "exec1", got.ClientId)
	default:
		t.Fatal("expected event to be delivered to reply channel")
	}
}

func TestForwardToUnknownTaskIDReturnsFalse(t *testing.T) {
	m := newMailboxes()
	ok := m.forward("does-not-exist", &funtonicpb.TaskExecutionResult{})
	assert.False(t, ok)
}

func TestCloseRemovesMailbox(t *testing.T) {
	m := newMailboxes()
	reply := make(chan *funtonicpb.TaskExecutionResult, 1)
	taskID := m.allocate(reply, "exec1", "", "")

	m.close(taskID)

	ok := m.forward(taskID, &funtonicpb.TaskExecutionResult{})
	assert.False(t, ok)
}

func TestListIDsReflectsOpenMailboxes(t *testing.T) {
	m := newMailboxes()
	reply := make(chan *funtonicpb.TaskExecutionResult, 1)
	a := m.allocate(reply, "exec1", "", "")
	b := m.allocate(reply, "exec2", "", "")

	assert.ElementsMatch(t, []string{a, b}, m.listIDs())

	m.close(a)
	assert.Equal(t, []string{b}, m.listIDs())
}

func TestTaskMetaReportsClientIDTraceAndElapsed(t *testing.T) {
	m := newMailboxes()
	reply := make(chan *funtonicpb.TaskExecutionResult, 1)
	taskID := m.allocate(reply, "exec1", "trace-abc", "span-def")

	time.Sleep(time.Millisecond)
	clientID, traceID, spanID, elapsed, ok := m.taskMeta(taskID)
	require.True(t, ok)
	assert.Equal(t, "exec1", clientID)
	assert.Equal(t, "trace-abc", traceID)
	assert.Equal(t, "span-def", spanID)
	assert.Greater(t, elapsed, time.Duration(0))

	m.close(taskID)
	_, _, _, _, ok = m.taskMeta(taskID)
	assert.False(t, ok)
}

func TestNewMailboxesIsUsableThroughExportedConstructor(t *testing.T) {
	m := NewMailboxes()
	reply := make(chan *funtonicpb.TaskExecutionResult, 1)
	taskID := m.allocate(reply, "exec1", "", "")
	assert.Len(t, taskID, 32)
}
