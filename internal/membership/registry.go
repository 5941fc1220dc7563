package membership

import (
	"math/rand"
	"sync"

	"github.com/thirstycrow/atomix/internal/domain"
)

// registry is the in-memory map of MemberId -> MemberRecord plus a
// randomized peer list used by probing and gossip to spread load (§4.A).
//
// All mutations happen on the scheduler goroutine (see scheduler.go); the
// mutex exists only so that Get and Snapshot remain safe to call from
// arbitrary caller goroutines (the public query methods of Service).
type registry struct {
	mu      sync.RWMutex
	localID domain.MemberId
	members map[domain.MemberId]*domain.MemberRecord
	peers   []domain.MemberId // non-local member ids, insertion order
}

func newRegistry(localID domain.MemberId) *registry {
	return &registry{
		localID: localID,
		members: make(map[domain.MemberId]*domain.MemberRecord),
	}
}

// get returns the record for id, or nil if absent.
func (r *registry) get(id domain.MemberId) *domain.MemberRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.members[id]
}

// snapshot returns immutable copies of every record currently held.
func (r *registry) snapshot() []domain.ImmutableMember {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ImmutableMember, 0, len(r.members))
	for _, rec := range r.members {
		out = append(out, rec.Snapshot())
	}
	return out
}

// size returns the number of records currently held, local member included.
func (r *registry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// insert adds or replaces the record for rec.Id and maintains the peer list.
func (r *registry) insert(rec *domain.MemberRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, existed := r.members[rec.Id]
	r.members[rec.Id] = rec
	if !existed && rec.Id != r.localID {
		r.peers = append(r.peers, rec.Id)
	}
}

// remove deletes the record for id and maintains the peer list. Removing an
// id that is not present is a no-op.
func (r *registry) remove(id domain.MemberId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; !ok {
		return
	}
	delete(r.members, id)
	for i, p := range r.peers {
		if p == id {
			r.peers = append(r.peers[:i], r.peers[i+1:]...)
			break
		}
	}
}

// shuffledPeers returns a private, randomized copy of the non-local peer
// ids, used by probing and gossip so that repeated callers do not always
// walk the registry in the same order.
func (r *registry) shuffledPeers() []domain.MemberId {
	r.mu.RLock()
	cp := make([]domain.MemberId, len(r.peers))
	copy(cp, r.peers)
	r.mu.RUnlock()

	rand.Shuffle(len(cp), func(i, j int) {
		cp[i], cp[j] = cp[j], cp[i]
	})
	return cp
}

// randomPeers returns up to n distinct non-local peer ids, excluding
// excludeID, in randomized order.
func (r *registry) randomPeers(n int, excludeID domain.MemberId) []domain.MemberId {
	shuffled := r.shuffledPeers()
	out := make([]domain.MemberId, 0, n)
	for _, id := range shuffled {
		if id == excludeID {
			continue
		}
		out = append(out, id)
		if len(out) == n {
			break
		}
	}
	return out
}
