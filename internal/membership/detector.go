package membership

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/thirstycrow/atomix/internal/domain"
	"github.com/thirstycrow/atomix/internal/infra/observability"
)

// failureDetector implements §4.C: periodic direct probing, indirect
// probing through peers on direct failure, the dispute mechanism in the
// probe handler, and the suspicion timeout that promotes SUSPECT to DEAD.
type failureDetector struct {
	reg   *registry
	cfg   Config
	rrs   domain.RequestResponseService
	codec domain.MemberCodec

	// reconcile is the single entry point back into the state machine.
	reconcile func(domain.ImmutableMember) bool
	// broadcastFn unicasts an update to every non-local peer (dispute and
	// post-indirect-probe-failure notifications).
	broadcastFn func(domain.ImmutableMember)
	post        func(domain.Event)
	nowFn       func() time.Time

	// submit dispatches a function onto the scheduler goroutine. Wired to
	// scheduler.submit by the owning Service; defaults to running inline so
	// a failureDetector can be exercised standalone in tests.
	submit func(func())

	// discoveryNodes returns the nodes known to the discovery collaborator;
	// candidateTargets drops those already reflected in the registry.
	discoveryNodes func() []domain.Node

	mu      sync.Mutex
	counter uint64
}

func newFailureDetector(reg *registry, cfg Config, rrs domain.RequestResponseService, codec domain.MemberCodec) *failureDetector {
	return &failureDetector{
		reg:            reg,
		cfg:            cfg,
		rrs:            rrs,
		codec:          codec,
		reconcile:      func(domain.ImmutableMember) bool { return false },
		broadcastFn:    func(domain.ImmutableMember) {},
		post:           func(domain.Event) {},
		nowFn:          time.Now,
		discoveryNodes: func() []domain.Node { return nil },
		submit:         func(f func()) { f() },
	}
}

func (fd *failureDetector) now() time.Time {
	if fd.nowFn != nil {
		return fd.nowFn()
	}
	return time.Now()
}

// probeTarget is the unit produced by the combined discovery/registry union
// in probeOne.
type probeTarget struct {
	id   domain.MemberId
	addr domain.Address
}

// probeOne selects the next target via the discovery-union round-robin of
// §4.C and probes it. A no-op when both discovery and the registry peer
// list are empty.
func (fd *failureDetector) probeOne() {
	targets := fd.candidateTargets()
	if len(targets) == 0 {
		return
	}

	fd.mu.Lock()
	i := fd.counter % uint64(len(targets))
	fd.counter++
	fd.mu.Unlock()

	fd.probe(targets[i])
}

// probeAll probes every candidate target once; used for the one-shot kick
// at startup.
func (fd *failureDetector) probeAll() {
	for _, t := range fd.candidateTargets() {
		fd.probe(t)
	}
}

// candidateTargets builds (discovered nodes not yet in the registry,
// sorted by id) followed by (shuffled registry peers).
func (fd *failureDetector) candidateTargets() []probeTarget {
	var fresh []probeTarget
	for _, n := range fd.discoveryNodes() {
		if fd.reg.get(n.Id) == nil {
			fresh = append(fresh, probeTarget{id: n.Id, addr: n.Address})
		}
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].id < fresh[j].id })

	peers := fd.reg.shuffledPeers()
	out := make([]probeTarget, 0, len(fresh)+len(peers))
	out = append(out, fresh...)
	for _, id := range peers {
		rec := fd.reg.get(id)
		if rec == nil {
			continue
		}
		out = append(out, probeTarget{id: id, addr: rec.Address})
	}
	return out
}

// probe sends MEMBERSHIP_PROBE to target and reconciles the response. On
// transport failure it requests indirect probes, provided the record is
// still present and its term has not changed since this probe was sent.
//
// The transport call runs off the scheduler goroutine (§5: "Network I/O is
// asynchronous; only the completion callback runs on the scheduler"), so a
// slow or unreachable peer never blocks the next probeOne/gossipTick. The
// reconcile/failure continuation is resubmitted onto the scheduler once the
// call completes, since it touches the registry.
func (fd *failureDetector) probe(target probeTarget) {
	view := fd.viewOf(target)
	payload, err := fd.codec.Encode(view)
	if err != nil {
		log.Printf("[detector] encode probe target %s: %v", target.id, err)
		return
	}
	sentTerm := view.Term

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), fd.cfg.ProbeTimeout)
		defer cancel()
		reply, err := fd.rrs.SendAndReceive(ctx, target.addr, TopicProbe, payload)

		fd.submit(func() {
			if err != nil {
				observability.ProbesTotal.WithLabelValues("direct", "failure").Inc()
				if rec := fd.reg.get(target.id); rec != nil && rec.Term == sentTerm {
					fd.requestProbes(target)
				}
				return
			}
			observability.ProbesTotal.WithLabelValues("direct", "success").Inc()

			member, decErr := fd.codec.Decode(reply)
			if decErr != nil {
				log.Printf("[detector] malformed probe reply from %s: %v", target.id, decErr)
				return
			}
			fd.reconcile(member)
		})
	}()
}

// viewOf returns the local view of target as an ImmutableMember carrying
// its last known term/state, or a fresh bootstrap stub if target is not
// yet in the registry.
func (fd *failureDetector) viewOf(target probeTarget) domain.ImmutableMember {
	if rec := fd.reg.get(target.id); rec != nil {
		return rec.Snapshot()
	}
	return domain.ImmutableMember{Id: target.id, Address: target.addr, State: domain.ALIVE}
}

// requestProbes asks up to SuspectProbes random peers to probe suspect on
// this node's behalf. If every response comes back unsuccessful, a SUSPECT
// record for suspect is fed to the reconciler.
//
// The fan-out and its wait for results run off the scheduler goroutine, for
// the same reason probe does: this may be called either directly (tests) or
// from within a scheduler-submitted continuation, and must never block
// further ticks on a round trip to SuspectProbes peers. Only the final
// reconcile/broadcast step is resubmitted onto the scheduler.
func (fd *failureDetector) requestProbes(suspect probeTarget) {
	view := fd.viewOf(suspect)
	peerIDs := fd.reg.randomPeers(fd.cfg.SuspectProbes, suspect.id)
	if len(peerIDs) == 0 {
		// Boundary: zero eligible peers never promotes to SUSPECT.
		return
	}

	payload, err := fd.codec.Encode(view)
	if err != nil {
		log.Printf("[detector] encode probe-request target %s: %v", suspect.id, err)
		return
	}

	var addrs []domain.Address
	for _, id := range peerIDs {
		rec := fd.reg.get(id)
		if rec == nil {
			continue
		}
		addrs = append(addrs, rec.Address)
	}
	if len(addrs) == 0 {
		return
	}

	go func() {
		var wg sync.WaitGroup
		results := make([]bool, len(addrs))
		for i, addr := range addrs {
			wg.Add(1)
			go func(i int, addr domain.Address) {
				defer wg.Done()
				ctx, cancel := context.WithTimeout(context.Background(), fd.cfg.ProbeTimeout)
				defer cancel()
				reply, err := fd.rrs.SendAndReceive(ctx, addr, TopicProbeRequest, payload)
				if err != nil {
					return
				}
				ok, err := fd.codec.DecodeBool(reply)
				if err != nil {
					return
				}
				results[i] = ok
			}(i, addr)
		}
		wg.Wait()

		anySuccess := false
		for _, ok := range results {
			if ok {
				anySuccess = true
				break
			}
		}

		fd.submit(func() {
			if anySuccess {
				observability.ProbesTotal.WithLabelValues("indirect", "success").Inc()
				return
			}
			observability.ProbesTotal.WithLabelValues("indirect", "failure").Inc()

			suspectView := view
			suspectView.State = domain.SUSPECT
			if fd.reconcile(suspectView) && fd.cfg.BroadcastUpdates {
				fd.broadcastFn(suspectView)
			}
		})
	}()
}

// handleProbe answers TopicProbe. It implements the dispute mechanism: any
// peer whose probe carries a newer term, or who believes the local node is
// SUSPECT, causes the local term to advance.
//
// Decoding happens on the caller's goroutine (net/rpc's per-connection
// goroutine in production), but the mutation of the local record is
// resubmitted onto the scheduler per §4.E/§5 before touching shared state;
// this handler blocks only the transport goroutine, waiting for that
// scheduler-side completion before replying.
func (fd *failureDetector) handleProbe(ctx context.Context, _ domain.Address, payload []byte) ([]byte, error) {
	incoming, err := fd.codec.Decode(payload)
	if err != nil {
		return nil, err
	}

	type result struct {
		reply []byte
		err   error
	}
	done := make(chan result, 1)
	fd.submit(func() {
		local := fd.reg.get(fd.reg.localID)
		if local == nil {
			done <- result{err: domain.ErrNotJoined}
			return
		}

		disputed := false
		if incoming.Term > local.Term {
			local.Term = incoming.Term + 1
			disputed = true
		} else if incoming.State == domain.SUSPECT {
			local.Term++
			disputed = true
		}
		if disputed {
			observability.DisputesTotal.Inc()
			if fd.cfg.BroadcastDisputes {
				fd.broadcastFn(local.Snapshot())
			}
		}

		reply, encErr := fd.codec.Encode(local.Snapshot())
		done <- result{reply: reply, err: encErr}
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.reply, r.err
	}
}

// handleProbeRequest answers TopicProbeRequest: probe the nominated member
// and report whether the response arrived without error. The probe itself
// runs on the caller's goroutine (it is already off the scheduler), but the
// resulting reconciliation is resubmitted onto the scheduler before this
// handler replies.
func (fd *failureDetector) handleProbeRequest(ctx context.Context, _ domain.Address, payload []byte) ([]byte, error) {
	suspect, err := fd.codec.Decode(payload)
	if err != nil {
		return nil, err
	}

	reply, err := fd.rrs.SendAndReceive(ctx, suspect.Address, TopicProbe, payload)
	ok := err == nil
	if ok {
		if member, decErr := fd.codec.Decode(reply); decErr == nil {
			done := make(chan struct{})
			fd.submit(func() {
				fd.reconcile(member)
				close(done)
			})
			select {
			case <-ctx.Done():
			case <-done:
			}
		}
	}
	return fd.codec.EncodeBool(ok)
}

// checkFailures promotes every SUSPECT member whose timestamp is older
// than FailureTimeout to DEAD. Invoked at each gossip tick (§4.D step 1).
func (fd *failureDetector) checkFailures() {
	now := fd.now()
	for _, id := range fd.reg.shuffledPeers() {
		rec := fd.reg.get(id)
		if rec == nil || rec.State != domain.SUSPECT {
			continue
		}
		if now.Sub(rec.Timestamp) <= fd.cfg.FailureTimeout {
			continue
		}
		snapshot := rec.Snapshot()
		snapshot.State = domain.DEAD
		fd.reg.remove(id)
		observability.SuspectPromotions.Inc()
		fd.post(domain.Event{Type: domain.MemberRemoved, Member: snapshot})
	}
}
