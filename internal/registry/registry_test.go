package registry_test

import (
	"path/filepath"
	"testing"

	"github.com/funtonic/taskserver/internal/keystore"
	"github.com/funtonic/taskserver/internal/predicate"
	"github.com/funtonic/taskserver/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authorizedKeyEntry = struct {
	KeyID string
	Bytes []byte
}

func openRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "known_executors.yml")
	reg, err := registry.Open(path, keystore.NewMemory())
	require.NoError(t, err)
	return reg
}

func execMeta(clientID string) predicate.ExecutorMeta {
	return predicate.ExecutorMeta{
		ClientID: clientID,
		Version:  "1.0.0",
		Tags: map[string]predicate.Tag{
			"env": predicate.NewScalarTag("prod"),
		},
	}
}

func TestRegisterAddsKnownAndConnected(t *testing.T) {
	reg := openRegistry(t)
	inbox := registry.NewInbox()

	require.NoError(t, reg.Register(execMeta("exec1"), inbox, nil))

	assert.Equal(t, 1, reg.ConnectedCount())
	known := reg.ListKnown(nil)
	require.Len(t, known, 1)
	assert.Equal(t, "exec1", known[0].ClientID)
}

func TestRegisterSeedsAuthorizedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_executors.yml")
	authKeys := keystore.NewMemory()
	reg, err := registry.Open(path, authKeys)
	require.NoError(t, err)

	pub := make([]byte, 32)
	err = reg.Register(execMeta("exec1"), registry.NewInbox(), []authorizedKeyEntry{
		{KeyID: "op1", Bytes: pub},
	})
	require.NoError(t, err)

	assert.True(t, authKeys.Has("op1", pub))
}

func TestDisconnectLeavesKnownButNotConnected(t *testing.T) {
	reg := openRegistry(t)
	require.NoError(t, reg.Register(execMeta("exec1"), registry.NewInbox(), nil))

	reg.Disconnect("exec1")

	assert.Equal(t, 0, reg.ConnectedCount())
	known := reg.ListKnown(nil)
	require.Len(t, known, 1)
}

func TestMatchExecutorsAttachesInboxOnlyWhenConnected(t *testing.T) {
	reg := openRegistry(t)
	inbox := registry.NewInbox()
	require.NoError(t, reg.Register(execMeta("exec1"), inbox, nil))
	reg.Disconnect("exec1")

	q, err := predicate.Parse("*")
	require.NoError(t, err)
	matches := reg.MatchExecutors(q)
	require.Len(t, matches, 1)
	assert.Nil(t, matches[0].Inbox)

	require.NoError(t, reg.Register(execMeta("exec1"), inbox, nil))
	matches = reg.MatchExecutors(q)
	require.Len(t, matches, 1)
	assert.NotNil(t, matches[0].Inbox)
}

func TestDropByQueryRemovesFromBothMaps(t *testing.T) {
	reg := openRegistry(t)
	require.NoError(t, reg.Register(execMeta("exec1"), registry.NewInbox(), nil))

	q, err := predicate.Parse("*")
	require.NoError(t, err)
	outcomes, err := reg.Drop(q)
	require.NoError(t, err)

	outcome, ok := outcomes["exec1"]
	require.True(t, ok)
	assert.True(t, outcome.RemovedFromKnown)
	assert.True(t, outcome.RemovedFromConnected)

	assert.Empty(t, reg.ListKnown(nil))
	assert.Empty(t, reg.ListConnected(nil))
}

func TestListConnectedFiltersByQuery(t *testing.T) {
	reg := openRegistry(t)
	require.NoError(t, reg.Register(execMeta("exec1"), registry.NewInbox(), nil))

	dev := predicate.ExecutorMeta{ClientID: "exec2", Tags: map[string]predicate.Tag{"env": predicate.NewScalarTag("dev")}}
	require.NoError(t, reg.Register(dev, registry.NewInbox(), nil))

	q, err := predicate.Parse("env:prod")
	require.NoError(t, err)
	ids := reg.ListConnected(q)
	assert.Equal(t, []string{"exec1"}, ids)
}

// Known-executors persistence survives a reopen, including nested list/map
// tag shapes, round-tripping through toTagRecord/fromTagRecord.
func TestKnownExecutorsPersistAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_executors.yml")
	authKeys := keystore.NewMemory()

	reg, err := registry.Open(path, authKeys)
	require.NoError(t, err)

	meta := predicate.ExecutorMeta{
		ClientID: "siderant",
		Version:  "2.3.1",
		Tags: map[string]predicate.Tag{
			"roles": predicate.StringListTag("foo", "bar"),
			"os": predicate.NewMapTag(map[string]predicate.Tag{
				"type":    predicate.NewScalarTag("Linux"),
				"version": predicate.NewScalarTag("18.04"),
			}),
		},
	}
	require.NoError(t, reg.Register(meta, registry.NewInbox(), nil))

	reopened, err := registry.Open(path, authKeys)
	require.NoError(t, err)

	known := reopened.ListKnown(nil)
	require.Len(t, known, 1)
	assert.Equal(t, "siderant", known[0].ClientID)
	assert.Equal(t, "2.3.1", known[0].Version)

	q, err := predicate.Parse("os:type:Linux")
	require.NoError(t, err)
	assert.Equal(t, predicate.Match, known[0].Matches(q))

	q, err = predicate.Parse("roles:bar")
	require.NoError(t, err)
	assert.Equal(t, predicate.Match, known[0].Matches(q))
}
