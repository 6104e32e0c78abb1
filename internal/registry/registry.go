// Package registry implements the executor registry (§4.5): a
// file-persisted known-executors map and an in-memory connected-executors
// map of inbox channels, grounded on the teacher's
// internal/cluster/registry.go sync.RWMutex discipline.
package registry

import (
	"sync"

	"github.com/funtonic/taskserver/api/proto/funtonicpb"
	"github.com/funtonic/taskserver/internal/fileyaml"
	"github.com/funtonic/taskserver/internal/keystore"
	"github.com/funtonic/taskserver/internal/logging"
	"github.com/funtonic/taskserver/internal/observability"
	"github.com/funtonic/taskserver/internal/predicate"
	"github.com/funtonic/taskserver/internal/signedpayload"
)

// Dispatch is what gets pushed into an executor's inbox: the commander's
// signed payload, forwarded verbatim, the channel that carries
// TaskExecutionResult events back to that commander's LaunchTask stream,
// and the LaunchTask span's trace context, captured at dispatch time since
// it cannot otherwise cross the channel hand-off to the executor's goroutine.
type Dispatch struct {
	Payload *signedpayload.Envelope
	Reply   chan *funtonicpb.TaskExecutionResult
	Trace   observability.TraceContext
}

// Inbox is the per-executor task queue (§4.6, §5: "channels are unbounded;
// consumers are expected to drain promptly"). Go has no native unbounded
// channel, so NewInbox gives it a generous fixed buffer instead: a
// commander's non-blocking send into it falls through to the Disconnected
// branch only once InboxBufferSize dispatches are already queued, rather
// than whenever the executor hasn't reached its next receive yet, which an
// unbuffered channel would do on essentially every dispatch.
type Inbox chan *Dispatch

// InboxBufferSize bounds the approximation of "unbounded" described above.
const InboxBufferSize = 4096

// NewInbox allocates a buffered Inbox ready for Register.
func NewInbox() Inbox {
	return make(Inbox, InboxBufferSize)
}

// connectedExecutor holds a connected executor's live inbox.
type connectedExecutor struct {
	inbox Inbox
}

// Match is one row of a match_executors(query) result: a known executor,
// optionally attached to its live inbox when connected.
type Match struct {
	ClientID string
	Meta     predicate.ExecutorMeta
	Inbox    Inbox // nil if known but disconnected
}

// DropOutcome reports whether drop(query) removed clientID from each map.
type DropOutcome struct {
	RemovedFromKnown     bool
	RemovedFromConnected bool
}

// Registry holds the known-executors YAML store and the connected-executors
// in-memory map, plus the authorized-keys store that executor registration
// can seed (§4.5 step 3).
type Registry struct {
	mu    sync.RWMutex
	path  string
	known map[string]predicate.ExecutorMeta

	connMu    sync.RWMutex
	connected map[string]*connectedExecutor

	AuthorizedKeys keystore.Store
}

type knownExecutorRecord struct {
	ClientID string                `yaml:"client_id"`
	Version  string                `yaml:"version"`
	Tags     map[string]tagRecord  `yaml:"tags"`
}

// tagRecord is the YAML-serializable mirror of predicate.Tag.
type tagRecord struct {
	Scalar string               `yaml:"scalar,omitempty"`
	List   []tagRecord          `yaml:"list,omitempty"`
	Map    map[string]tagRecord `yaml:"map,omitempty"`
}

func toTagRecord(t predicate.Tag) tagRecord {
	switch t.Kind {
	case predicate.TagList:
		list := make([]tagRecord, len(t.List))
		for i, v := range t.List {
			list[i] = toTagRecord(v)
		}
		return tagRecord{List: list}
	case predicate.TagMap:
		m := make(map[string]tagRecord, len(t.Map))
		for k, v := range t.Map {
			m[k] = toTagRecord(v)
		}
		return tagRecord{Map: m}
	default:
		return tagRecord{Scalar: t.Scalar}
	}
}

func fromTagRecord(r tagRecord) predicate.Tag {
	switch {
	case r.List != nil:
		list := make([]predicate.Tag, len(r.List))
		for i, v := range r.List {
			list[i] = fromTagRecord(v)
		}
		return predicate.NewListTag(list)
	case r.Map != nil:
		m := make(map[string]predicate.Tag, len(r.Map))
		for k, v := range r.Map {
			m[k] = fromTagRecord(v)
		}
		return predicate.NewMapTag(m)
	default:
		return predicate.NewScalarTag(r.Scalar)
	}
}

// Open loads the known-executors file at path (creating it if absent).
func Open(path string, authorizedKeys keystore.Store) (*Registry, error) {
	r := &Registry{
		path:           path,
		known:          make(map[string]predicate.ExecutorMeta),
		connected:      make(map[string]*connectedExecutor),
		AuthorizedKeys: authorizedKeys,
	}

	raw := make(map[string]knownExecutorRecord)
	if err := fileyaml.EnsureExists(path, raw); err != nil {
		return nil, err
	}
	if err := fileyaml.Load(path, &raw); err != nil {
		return nil, err
	}
	for clientID, rec := range raw {
		tags := make(map[string]predicate.Tag, len(rec.Tags))
		for k, v := range rec.Tags {
			tags[k] = fromTagRecord(v)
		}
		r.known[clientID] = predicate.ExecutorMeta{
			ClientID: clientID,
			Version:  rec.Version,
			Tags:     tags,
		}
	}
	return r, nil
}

func (r *Registry) save() error {
	raw := make(map[string]knownExecutorRecord, len(r.known))
	for clientID, meta := range r.known {
		tags := make(map[string]tagRecord, len(meta.Tags))
		for k, v := range meta.Tags {
			tags[k] = toTagRecord(v)
		}
		raw[clientID] = knownExecutorRecord{ClientID: clientID, Version: meta.Version, Tags: tags}
	}
	return fileyaml.Save(r.path, raw)
}

// Register runs §4.5's register(meta, inbox): overwrite the connected entry,
// persist the known entry, and seed authorized_keys. Storage errors abort
// and leave neither map mutated (the spec's abort-on-storage-error rule,
// stricter than the teacher's best-effort heartbeat persistence — see
// DESIGN.md). A nil inbox records the known entry only: the executor is not
// added to, and does not replace an entry in, the connected map.
func (r *Registry) Register(meta predicate.ExecutorMeta, inbox Inbox, authorizedKeys []struct {
	KeyID string
	Bytes []byte
}) error {
	r.mu.Lock()
	prev, existed := r.known[meta.ClientID]
	r.known[meta.ClientID] = meta
	if err := r.save(); err != nil {
		if existed {
			r.known[meta.ClientID] = prev
		} else {
			delete(r.known, meta.ClientID)
		}
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()

	if inbox != nil {
		r.connMu.Lock()
		r.connected[meta.ClientID] = &connectedExecutor{inbox: inbox}
		r.connMu.Unlock()
	}

	for _, k := range authorizedKeys {
		if err := r.AuthorizedKeys.Insert(k.KeyID, k.Bytes); err != nil {
			logging.Op().Warn("failed to seed authorized key from executor registration",
				"client_id", meta.ClientID, "key_id", k.KeyID, "error", err)
		}
	}

	logging.Op().Info("executor registered", "client_id", meta.ClientID)
	return nil
}

// Disconnect removes clientID from the connected-executors map only,
// leaving it known but disconnected.
func (r *Registry) Disconnect(clientID string) {
	r.connMu.Lock()
	delete(r.connected, clientID)
	r.connMu.Unlock()
	logging.Op().Info("executor disconnected", "client_id", clientID)
}

// ConnectedCount reports the live inbox count, for internal/metrics.
func (r *Registry) ConnectedCount() int {
	r.connMu.RLock()
	defer r.connMu.RUnlock()
	return len(r.connected)
}

// MatchExecutors runs §4.5's match_executors(query): every known executor
// whose metadata matches q, each attached to its live inbox if connected.
func (r *Registry) MatchExecutors(q *predicate.Query) []Match {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []Match
	for clientID, meta := range r.known {
		if meta.Matches(q) != predicate.Match {
			continue
		}
		m := Match{ClientID: clientID, Meta: meta}

		r.connMu.RLock()
		if ce, ok := r.connected[clientID]; ok {
			m.Inbox = ce.inbox
		}
		r.connMu.RUnlock()

		matches = append(matches, m)
	}
	return matches
}

// Drop runs §4.5's drop(query): remove every known executor matching q from
// both maps, reporting per-entry outcome. A nil q matches every known
// executor.
func (r *Registry) Drop(q *predicate.Query) (map[string]DropOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	outcomes := make(map[string]DropOutcome)
	changed := false
	for clientID, meta := range r.known {
		if q != nil && meta.Matches(q) != predicate.Match {
			continue
		}
		outcome := DropOutcome{}

		delete(r.known, clientID)
		outcome.RemovedFromKnown = true
		changed = true

		r.connMu.Lock()
		if _, ok := r.connected[clientID]; ok {
			delete(r.connected, clientID)
			outcome.RemovedFromConnected = true
		}
		r.connMu.Unlock()

		outcomes[clientID] = outcome
	}

	if changed {
		if err := r.save(); err != nil {
			return nil, err
		}
	}
	return outcomes, nil
}

// ListKnown returns a snapshot of every known executor, optionally filtered
// by q (nil means no filter), for admin list-known-executors.
func (r *Registry) ListKnown(q *predicate.Query) []predicate.ExecutorMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]predicate.ExecutorMeta, 0, len(r.known))
	for _, meta := range r.known {
		if q != nil && meta.Matches(q) != predicate.Match {
			continue
		}
		out = append(out, meta)
	}
	return out
}

// ListConnected returns the client_ids currently holding an open inbox,
// optionally filtered by q against their known metadata.
func (r *Registry) ListConnected(q *predicate.Query) []string {
	r.connMu.RLock()
	ids := make([]string, 0, len(r.connected))
	for clientID := range r.connected {
		ids = append(ids, clientID)
	}
	r.connMu.RUnlock()

	if q == nil {
		return ids
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := ids[:0]
	for _, clientID := range ids {
		meta, ok := r.known[clientID]
		if ok && meta.Matches(q) == predicate.Match {
			out = append(out, clientID)
		}
	}
	return out
}
