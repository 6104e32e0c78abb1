package keystore

import "crypto/ed25519"

// TOFUStatus classifies the outcome of observing an executor's public key
// against the trusted/unapproved pair (§4.4).
type TOFUStatus int

const (
	// Trusted means the key matches the trusted store; the connection
	// proceeds normally.
	Trusted TOFUStatus = iota
	// PendingApproval means the key already sits in unapproved, awaiting
	// admin action; the request is rejected but the connection may still
	// proceed for metadata capture (§4.5).
	PendingApproval
	// NewlyPending means this is the first time this key_id/key_bytes pair
	// was observed; it has just been recorded into unapproved.
	NewlyPending
)

// ExecutorTrust coordinates the trusted/unapproved executor-key pair
// (§3/§8). Observe records an unseen client_id in unapproved only; a
// client_id that is already trusted under a different key gets the new key
// recorded in unapproved as well, so both stores hold an entry for it until
// Approve replaces the trusted key.
type ExecutorTrust struct {
	Trusted    Store
	Unapproved Store
}

// Observe runs the TOFU flow for an incoming (client_id, public_key) pair.
func (t *ExecutorTrust) Observe(clientID string, pub ed25519.PublicKey) (TOFUStatus, error) {
	if t.Trusted.Has(clientID, pub) {
		return Trusted, nil
	}
	if t.Unapproved.Has(clientID, pub) {
		return PendingApproval, nil
	}
	if err := t.Unapproved.Insert(clientID, pub); err != nil {
		return NewlyPending, err
	}
	return NewlyPending, nil
}

// Approve atomically moves clientID from unapproved to trusted. Passing
// "*" approves every pending key. Returns the client_ids that were moved.
// Approving "*" with nothing pending is a no-op (§8 idempotence).
func (t *ExecutorTrust) Approve(clientID string) ([]string, error) {
	if clientID == "*" {
		pending := t.Unapproved.ListAll()
		approved := make([]string, 0, len(pending))
		for id, pub := range pending {
			if err := t.moveToTrusted(id, pub); err != nil {
				return approved, err
			}
			approved = append(approved, id)
		}
		return approved, nil
	}

	pub, ok := t.Unapproved.Lookup(clientID)
	if !ok {
		return nil, nil
	}
	if err := t.moveToTrusted(clientID, pub); err != nil {
		return nil, err
	}
	return []string{clientID}, nil
}

func (t *ExecutorTrust) moveToTrusted(clientID string, pub ed25519.PublicKey) error {
	if err := t.Trusted.Insert(clientID, pub); err != nil {
		return err
	}
	_, _ = t.Unapproved.Remove(clientID)
	return nil
}
