package membership

import (
	"log"
	"sync"

	"github.com/thirstycrow/atomix/internal/domain"
	"github.com/thirstycrow/atomix/internal/infra/observability"
)

// gossipEngine implements §4.D: an update queue fed by the reconciler,
// drained on every gossip tick and fanned out to a random subset of
// peers; plus targeted unicast broadcasts for disputes and suspect
// notifications.
type gossipEngine struct {
	reg     *registry
	cfg     Config
	unicast domain.UnicastService
	codec   domain.MemberCodec

	// reconcile is the single entry point back into the state machine;
	// wired to reconciler.updateState.
	reconcile func(domain.ImmutableMember) bool

	// submit dispatches a function onto the scheduler goroutine. Wired to
	// scheduler.submit by the owning Service; defaults to running inline so
	// a gossipEngine can be exercised standalone in tests.
	submit func(func())

	mu    sync.Mutex
	queue []domain.ImmutableMember
}

func newGossipEngine(reg *registry, cfg Config, unicast domain.UnicastService, codec domain.MemberCodec) *gossipEngine {
	return &gossipEngine{reg: reg, cfg: cfg, unicast: unicast, codec: codec, submit: func(f func()) { f() }}
}

// enqueue appends an update to the queue. Single-owner: only ever called
// from the scheduler goroutine.
func (g *gossipEngine) enqueue(m domain.ImmutableMember) {
	g.mu.Lock()
	g.queue = append(g.queue, m)
	depth := len(g.queue)
	g.mu.Unlock()
	observability.GossipQueueDepth.Set(float64(depth))
}

// drain snapshots and clears the update queue atomically.
func (g *gossipEngine) drain() []domain.ImmutableMember {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.queue) == 0 {
		return nil
	}
	out := g.queue
	g.queue = nil
	observability.GossipQueueDepth.Set(0)
	return out
}

// tick drains the queue and, if non-empty, gossips it to gossipFanout
// random peers. Intended to be the third step of the gossip-tick sequence
// in §4.D.
func (g *gossipEngine) tick() {
	updates := g.drain()
	if len(updates) == 0 {
		return
	}
	observability.GossipRoundsTotal.Inc()
	g.gossip(updates)
}

// gossip sends MEMBERSHIP_GOSSIP with the update vector to the first
// gossipFanout peers of a freshly shuffled peer list, fire-and-forget.
func (g *gossipEngine) gossip(updates []domain.ImmutableMember) {
	payload, err := g.codec.EncodeBatch(updates)
	if err != nil {
		log.Printf("[gossip] encode batch: %v", err)
		return
	}

	peers := g.reg.shuffledPeers()
	fanout := g.cfg.GossipFanout
	if fanout > len(peers) {
		fanout = len(peers)
	}
	for _, id := range peers[:fanout] {
		rec := g.reg.get(id)
		if rec == nil {
			continue
		}
		if err := g.unicast.Unicast(rec.Address, TopicGossip, payload); err != nil {
			log.Printf("[gossip] unicast to %s dropped: %v", id, err)
			continue
		}
		observability.GossipUpdatesSent.WithLabelValues("fanout").Inc()
	}
}

// broadcast unicasts a single-entry update to every non-local registry
// member. Used for dispute and SUSPECT notifications.
func (g *gossipEngine) broadcast(update domain.ImmutableMember) {
	payload, err := g.codec.EncodeBatch([]domain.ImmutableMember{update})
	if err != nil {
		log.Printf("[gossip] encode broadcast: %v", err)
		return
	}
	for _, id := range g.reg.shuffledPeers() {
		rec := g.reg.get(id)
		if rec == nil {
			continue
		}
		if err := g.unicast.Unicast(rec.Address, TopicGossip, payload); err != nil {
			log.Printf("[gossip] broadcast to %s dropped: %v", id, err)
			continue
		}
		observability.GossipUpdatesSent.WithLabelValues("broadcast").Inc()
	}
}

// notifyOne gossips a single update to one random peer, used when
// NotifySuspect fires on local demotion of a peer.
func (g *gossipEngine) notifyOne(update domain.ImmutableMember) {
	peers := g.reg.randomPeers(1, update.Id)
	if len(peers) == 0 {
		return
	}
	payload, err := g.codec.EncodeBatch([]domain.ImmutableMember{update})
	if err != nil {
		log.Printf("[gossip] encode notify: %v", err)
		return
	}
	rec := g.reg.get(peers[0])
	if rec == nil {
		return
	}
	if err := g.unicast.Unicast(rec.Address, TopicGossip, payload); err != nil {
		log.Printf("[gossip] notify %s dropped: %v", peers[0], err)
		return
	}
	observability.GossipUpdatesSent.WithLabelValues("notify").Inc()
}

// handleGossipUpdates feeds each entry of an inbound gossip batch into the
// reconciler, in the order received.
func (g *gossipEngine) handleGossipUpdates(updates []domain.ImmutableMember) {
	for _, u := range updates {
		g.reconcile(u)
	}
}

// handleInboundGossip is the UnicastHandler installed for TopicGossip: it
// decodes the payload on the caller's goroutine and resubmits applying the
// batch onto the scheduler, since handleGossipUpdates mutates the registry
// through the reconciler (§4.E/§5). Unlike handleProbe/handleProbeRequest,
// there is no reply to wait for, so this never blocks the caller.
func (g *gossipEngine) handleInboundGossip(_ domain.Address, payload []byte) {
	updates, err := g.codec.DecodeBatch(payload)
	if err != nil {
		log.Printf("[gossip] malformed inbound payload: %v", err)
		return
	}
	g.submit(func() { g.handleGossipUpdates(updates) })
}
