package dr

import (
	"fmt"
	"sync"
	"time"
)

// ConflictPolicyLastWriteWins is the only conflict-resolution policy
// this controller ships. The tracker does not resolve conflicts itself;
// the replication pipeline reports how many it resolved.
const ConflictPolicyLastWriteWins = "last-write-wins"

// SecondaryState is a secondary's point-in-time replication position.
type SecondaryState struct {
	Lag      time.Duration `json:"lag"`
	SyncedAt time.Time     `json:"synced_at"`
}

// ReplicationState is a snapshot of the tracker.
type ReplicationState struct {
	Primary           string                    `json:"primary"`
	Secondaries       []string                  `json:"secondaries"`
	Positions         map[string]SecondaryState `json:"positions"`
	ConflictsResolved int64                     `json:"conflicts_resolved"`
	PendingWrites     int64                     `json:"pending_writes"`
	ConflictPolicy    string                    `json:"conflict_policy"`
}

// ReplicationTracker keeps per-secondary lag and sync recency. It holds
// no history; the failover engine's convergence wait and lag alerting
// only need the current position.
type ReplicationTracker struct {
	mu                sync.RWMutex
	primary           string
	secondaries       []string
	positions         map[string]SecondaryState
	conflictsResolved int64
	pendingWrites     int64
}

// NewReplicationTracker builds a tracker for the given topology. The
// secondary set is always every region except the primary, in order.
func NewReplicationTracker(regionIDs []string, primary string) *ReplicationTracker {
	t := &ReplicationTracker{
		positions: make(map[string]SecondaryState),
	}
	t.setPrimaryLocked(regionIDs, primary)
	return t
}

func (t *ReplicationTracker) setPrimaryLocked(regionIDs []string, primary string) {
	t.primary = primary
	t.secondaries = t.secondaries[:0]
	for _, id := range regionIDs {
		if id != primary {
			t.secondaries = append(t.secondaries, id)
		}
	}
}

// ReportLag overwrites a secondary's lag and last-sync timestamp.
// Point-in-time only; called by the external replication pipeline.
func (t *ReplicationTracker) ReportLag(regionID string, lag time.Duration, syncedAt time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if regionID == t.primary {
		return fmt.Errorf("dr: %q is the primary, not a secondary", regionID)
	}
	found := false
	for _, id := range t.secondaries {
		if id == regionID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("dr: unknown secondary %q", regionID)
	}

	t.positions[regionID] = SecondaryState{Lag: lag, SyncedAt: syncedAt}
	return nil
}

// Lag returns the recorded lag for a region, zero if never reported.
func (t *ReplicationTracker) Lag(regionID string) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.positions[regionID].Lag
}

// Promote swaps the primary. Called by the failover engine after the
// target's writable flag is set. The promoted region's own position is
// dropped; the demoted region starts unreported.
func (t *ReplicationTracker) Promote(regionIDs []string, newPrimary string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.setPrimaryLocked(regionIDs, newPrimary)
	delete(t.positions, newPrimary)
}

// AddConflictsResolved bumps the cumulative conflicts counter, reported
// by the replication pipeline under the last-write-wins policy.
func (t *ReplicationTracker) AddConflictsResolved(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conflictsResolved += n
}

// SetPendingWrites records the primary's pending-write backlog.
func (t *ReplicationTracker) SetPendingWrites(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingWrites = n
}

// Snapshot returns a deep copy of the current replication state.
func (t *ReplicationTracker) Snapshot() ReplicationState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state := ReplicationState{
		Primary:           t.primary,
		Secondaries:       make([]string, len(t.secondaries)),
		Positions:         make(map[string]SecondaryState, len(t.positions)),
		ConflictsResolved: t.conflictsResolved,
		PendingWrites:     t.pendingWrites,
		ConflictPolicy:    ConflictPolicyLastWriteWins,
	}
	copy(state.Secondaries, t.secondaries)
	for id, pos := range t.positions {
		state.Positions[id] = pos
	}
	return state
}

// LaggingSecondaries returns the secondaries whose recorded lag exceeds
// max. Evaluated once per monitoring round for alerting.
func (t *ReplicationTracker) LaggingSecondaries(max time.Duration) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var lagging []string
	for _, id := range t.secondaries {
		if pos, ok := t.positions[id]; ok && pos.Lag > max {
			lagging = append(lagging, id)
		}
	}
	return lagging
}
