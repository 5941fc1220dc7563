package membership

import (
	"context"
	"sync"
	"time"

	"github.com/thirstycrow/atomix/internal/domain"
	"github.com/thirstycrow/atomix/internal/infra/observability"
)

// Service is the public façade named in §6: join, leave, member queries and
// event subscription. It wires the registry, reconciler, failure detector,
// gossip engine, scheduler and event bus together and is the only type a
// caller outside this package needs to hold.
type Service struct {
	cfg       Config
	rrs       domain.RequestResponseService
	unicast   domain.UnicastService
	discovery domain.DiscoveryService
	codec     domain.MemberCodec

	reg   *registry
	rc    *reconciler
	fd    *failureDetector
	ge    *gossipEngine
	sched *scheduler
	bus   *eventBus

	mu                sync.Mutex
	joined            bool
	cancel            context.CancelFunc
	discoveryToken    int
	hasDiscoveryToken bool
}

// New constructs a Service for the given local member id. It performs no
// I/O; Join starts the timers and registers with the transport
// collaborators.
func New(
	localID domain.MemberId,
	cfg Config,
	rrs domain.RequestResponseService,
	unicast domain.UnicastService,
	discovery domain.DiscoveryService,
	codec domain.MemberCodec,
) *Service {
	reg := newRegistry(localID)
	rc := newReconciler(reg, cfg, time.Now)
	fd := newFailureDetector(reg, cfg, rrs, codec)
	ge := newGossipEngine(reg, cfg, unicast, codec)

	s := &Service{
		cfg:       cfg,
		rrs:       rrs,
		unicast:   unicast,
		discovery: discovery,
		codec:     codec,
		reg:       reg,
		rc:        rc,
		fd:        fd,
		ge:        ge,
		sched:     newScheduler(),
		bus:       newEventBus(),
	}

	// Wire the components to each other per §2's data-flow description.
	ge.reconcile = rc.updateState
	fd.reconcile = rc.updateState
	fd.broadcastFn = ge.broadcast
	rc.notifyOne = ge.notifyOne
	rc.enqueue = ge.enqueue
	// Handlers invoked off the scheduler goroutine (transport callbacks,
	// spawned probe goroutines) resubmit their registry-mutating
	// continuation through this, per §4.E/§5.
	fd.submit = s.sched.submit
	ge.submit = s.sched.submit
	observe := func(e domain.Event) {
		observability.EventsEmitted.WithLabelValues(e.Type.String()).Inc()
		s.bus.post(e)
	}
	rc.post = observe
	fd.post = observe
	fd.discoveryNodes = s.undiscoveredNodes

	return s
}

// undiscoveredNodes returns the nodes the discovery collaborator currently
// reports, for candidateTargets to subtract against the registry.
func (s *Service) undiscoveredNodes() []domain.Node {
	if s.discovery == nil {
		return nil
	}
	return s.discovery.GetNodes()
}

// Join creates the local record and posts MEMBER_ADDED for it, registers
// transport handlers, starts the
// gossip and probe timers, and kicks an immediate probeAll. Idempotent:
// calls after the first successful one are no-ops (§4.E, §7).
func (s *Service) Join(self domain.ImmutableMember) error {
	s.mu.Lock()
	if s.joined {
		s.mu.Unlock()
		return nil
	}
	s.joined = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	self.State = domain.ALIVE
	local := domain.NewRecord(self, time.Now())
	local.Term = time.Now().UnixMilli()
	s.reg.insert(local)
	s.rc.post(domain.Event{Type: domain.MemberAdded, Member: local.Snapshot()})
	s.refreshStateGauge()

	if err := s.rrs.Register(TopicProbe, s.fd.handleProbe); err != nil {
		return err
	}
	if err := s.rrs.Register(TopicProbeRequest, s.fd.handleProbeRequest); err != nil {
		return err
	}
	if err := s.unicast.AddListener(TopicGossip, s.ge.handleInboundGossip); err != nil {
		return err
	}

	if s.discovery != nil {
		token, err := s.discovery.AddListener(s.onDiscoveryEvent)
		if err != nil {
			return err
		}
		s.discoveryToken = token
		s.hasDiscoveryToken = true
	}

	s.sched.start()
	s.bus.start()

	s.sched.every(ctx, s.cfg.ProbeInterval, s.fd.probeOne)
	s.sched.every(ctx, s.cfg.GossipInterval, s.gossipTick)
	s.sched.submit(s.fd.probeAll)

	return nil
}

// gossipTick is the ordered sequence of §4.D: failure sweep, metadata
// drift check, then queue drain and fanout.
func (s *Service) gossipTick() {
	s.fd.checkFailures()
	s.rc.checkMetadata()
	s.ge.tick()
	s.refreshStateGauge()
}

// refreshStateGauge recomputes the members-by-state gauge from a fresh
// registry snapshot.
func (s *Service) refreshStateGauge() {
	counts := map[domain.State]int{domain.ALIVE: 0, domain.SUSPECT: 0, domain.DEAD: 0}
	for _, m := range s.reg.snapshot() {
		counts[m.State]++
	}
	for state, n := range counts {
		observability.MembersByState.WithLabelValues(state.String()).Set(float64(n))
	}
}

// onDiscoveryEvent implements the discovery listener of §4.E: JOIN probes
// a fresh stub for unseen nodes; LEAVE removes the record only when it is
// not active (in practice a no-op, preserved verbatim per the open
// question in the design notes).
func (s *Service) onDiscoveryEvent(ev domain.DiscoveryEvent) {
	switch ev.Kind {
	case domain.DiscoveryJoin:
		if s.reg.get(ev.Node.Id) == nil {
			s.sched.submit(func() {
				s.fd.probe(probeTarget{id: ev.Node.Id, addr: ev.Node.Address})
			})
		}
	case domain.DiscoveryLeave:
		s.sched.submit(func() {
			rec := s.reg.get(ev.Node.Id)
			if rec != nil && !rec.State.Active() {
				s.reg.remove(ev.Node.Id)
			}
		})
	}
}

// Leave tears the service down: removes the discovery listener, cancels
// timers, shuts down both executors, marks the local member DEAD, clears
// the registry, and unregisters transport handlers. Idempotent.
func (s *Service) Leave() error {
	s.mu.Lock()
	if !s.joined {
		s.mu.Unlock()
		return nil
	}
	s.joined = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if s.discovery != nil && s.hasDiscoveryToken {
		s.discovery.RemoveListener(s.discoveryToken)
		s.hasDiscoveryToken = false
	}

	s.sched.stop()
	s.bus.stop()

	if local := s.reg.get(s.reg.localID); local != nil {
		local.State = domain.DEAD
	}
	for _, id := range s.reg.shuffledPeers() {
		s.reg.remove(id)
	}
	s.reg.remove(s.reg.localID)

	s.rrs.Unregister(TopicProbe)
	s.rrs.Unregister(TopicProbeRequest)
	s.unicast.RemoveListener(TopicGossip)

	return nil
}

// GetMembers returns a snapshot of every member currently held, local
// member included.
func (s *Service) GetMembers() []domain.ImmutableMember {
	return s.reg.snapshot()
}

// GetMember returns the snapshot for id, or false if no record exists.
func (s *Service) GetMember(id domain.MemberId) (domain.ImmutableMember, bool) {
	rec := s.reg.get(id)
	if rec == nil {
		return domain.ImmutableMember{}, false
	}
	return rec.Snapshot(), true
}

// AddListener subscribes l to membership events and returns a token usable
// with RemoveListener.
func (s *Service) AddListener(l domain.Listener) int {
	return s.bus.subscribe(l)
}

// RemoveListener unsubscribes the listener registered under token.
func (s *Service) RemoveListener(token int) {
	s.bus.unsubscribe(token)
}

// SetLocalProperties mutates the local member's metadata. The change is
// picked up by checkMetadata on the next gossip tick (§8 scenario 6).
func (s *Service) SetLocalProperties(props domain.Properties) {
	s.sched.submit(func() { s.rc.setLocalProperties(props) })
}
