package gate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// ReplayStore is the consumed-proof set behind the gate's replay
// protection. Consume must be atomic: for concurrent calls with the same
// key, exactly one returns true.
type ReplayStore interface {
	// Consume records key as spent until expiresAt. Returns true if this
	// call inserted the key, false if it was already present.
	Consume(ctx context.Context, key, payer string, expiresAt time.Time) (bool, error)
}

// ProofKey derives the replay key for a payment proof: SHA-256 over the
// exact payload bytes, which include the signature and nonce. A re-signed
// payment gets a fresh key; a byte-identical resubmission collides.
func ProofKey(payloadBytes []byte) string {
	hash := sha256.Sum256(payloadBytes)
	return hex.EncodeToString(hash[:])
}

// InMemoryReplayStore keeps consumed proof keys in a mutex-protected map
// with lazy expiry sweeps. Suitable for single-instance deployments; use
// the SQLite-backed journal store when consumed proofs must survive
// restarts.
type InMemoryReplayStore struct {
	mu      sync.Mutex
	expiry  map[string]time.Time
	nowFunc func() time.Time
}

func NewInMemoryReplayStore() *InMemoryReplayStore {
	return &InMemoryReplayStore{
		expiry:  make(map[string]time.Time),
		nowFunc: time.Now,
	}
}

func (s *InMemoryReplayStore) Consume(_ context.Context, key, _ string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	if expiry, exists := s.expiry[key]; exists {
		if now.Before(expiry) {
			return false, nil
		}
		// Expired entry: the key may be consumed again. The authorization
		// it guarded has itself expired by now, so the validity check
		// rejects stale proofs before the replay set is consulted.
	}

	s.expiry[key] = expiresAt
	s.sweepLocked(now)
	return true, nil
}

// Len reports the number of live entries, for tests and stats.
func (s *InMemoryReplayStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expiry)
}

func (s *InMemoryReplayStore) sweepLocked(now time.Time) {
	for key, expiry := range s.expiry {
		if now.After(expiry) {
			delete(s.expiry, key)
		}
	}
}
