package keystore_test

import (
	"testing"

	"github.com/funtonic/taskserver/internal/keystore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTrust() *keystore.ExecutorTrust {
	return &keystore.ExecutorTrust{
		Trusted:    keystore.NewMemory(),
		Unapproved: keystore.NewMemory(),
	}
}

func TestObserveFirstSeenKeyIsNewlyPending(t *testing.T) {
	trust := newTrust()
	pub, _ := newKeyPair(t)

	status, err := trust.Observe("exec", pub)
	require.NoError(t, err)
	assert.Equal(t, keystore.NewlyPending, status)
	assert.True(t, trust.Unapproved.Has("exec", pub))
}

func TestObserveRepeatUnapprovedKeyIsPendingApproval(t *testing.T) {
	trust := newTrust()
	pub, _ := newKeyPair(t)

	_, err := trust.Observe("exec", pub)
	require.NoError(t, err)

	status, err := trust.Observe("exec", pub)
	require.NoError(t, err)
	assert.Equal(t, keystore.PendingApproval, status)
}

func TestObserveTrustedKeyIsTrusted(t *testing.T) {
	trust := newTrust()
	pub, _ := newKeyPair(t)

	require.NoError(t, trust.Trusted.Insert("exec", pub))

	status, err := trust.Observe("exec", pub)
	require.NoError(t, err)
	assert.Equal(t, keystore.Trusted, status)
}

func TestApproveMovesKeyFromUnapprovedToTrusted(t *testing.T) {
	trust := newTrust()
	pub, _ := newKeyPair(t)

	_, err := trust.Observe("exec", pub)
	require.NoError(t, err)

	approved, err := trust.Approve("exec")
	require.NoError(t, err)
	assert.Equal(t, []string{"exec"}, approved)
	assert.True(t, trust.Trusted.Has("exec", pub))
	assert.False(t, trust.Unapproved.Has("exec", pub))
}

func TestApproveUnknownClientIsNoop(t *testing.T) {
	trust := newTrust()
	approved, err := trust.Approve("ghost")
	require.NoError(t, err)
	assert.Nil(t, approved)
}

func TestApproveWildcardMovesEveryPendingKey(t *testing.T) {
	trust := newTrust()
	pub1, _ := newKeyPair(t)
	pub2, _ := newKeyPair(t)

	_, err := trust.Observe("exec1", pub1)
	require.NoError(t, err)
	_, err = trust.Observe("exec2", pub2)
	require.NoError(t, err)

	approved, err := trust.Approve("*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"exec1", "exec2"}, approved)
	assert.True(t, trust.Trusted.Has("exec1", pub1))
	assert.True(t, trust.Trusted.Has("exec2", pub2))
}

// Approving "*" with nothing pending is a no-op, not an error (§8 idempotence).
func TestApproveWildcardWithNothingPendingIsNoop(t *testing.T) {
	trust := newTrust()
	approved, err := trust.Approve("*")
	require.NoError(t, err)
	assert.Empty(t, approved)
}
