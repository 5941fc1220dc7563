package membership

import (
	"time"

	"github.com/thirstycrow/atomix/internal/domain"
)

// reconciler is the pure decision function of §4.B: given an incoming
// record and the current registry, decide whether to accept it; when
// accepted, mutate the registry, enqueue a gossip update, and emit events.
//
// Every method here is expected to run on the scheduler goroutine (§5); it
// holds no lock of its own beyond what registry already provides.
type reconciler struct {
	reg    *registry
	cfg    Config
	nowFn  func() time.Time
	post   func(domain.Event)
	enqueue func(domain.ImmutableMember)
	// notifyOne gossips a single update to one random peer immediately;
	// wired to the gossip engine, and called only when NotifySuspect is
	// enabled.
	notifyOne func(domain.ImmutableMember)

	// localProps shadows the local record's properties so checkMetadata
	// can detect drift between gossip ticks.
	localProps domain.Properties
}

func newReconciler(reg *registry, cfg Config, nowFn func() time.Time) *reconciler {
	return &reconciler{
		reg:   reg,
		cfg:   cfg,
		nowFn: nowFn,
		post:  func(domain.Event) {},
		enqueue: func(domain.ImmutableMember) {},
		notifyOne: func(domain.ImmutableMember) {},
	}
}

func (rc *reconciler) now() time.Time {
	if rc.nowFn != nil {
		return rc.nowFn()
	}
	return time.Now()
}

// updateState is the public entry point named in §4.B.
func (rc *reconciler) updateState(incoming domain.ImmutableMember) bool {
	// Rule 1: self-update is always rejected.
	if incoming.Id == rc.reg.localID {
		return false
	}

	current := rc.reg.get(incoming.Id)

	// Rule 2: first observation.
	if current == nil {
		rec := domain.NewRecord(domain.ImmutableMember{
			Id:         incoming.Id,
			Address:    incoming.Address,
			Zone:       incoming.Zone,
			Rack:       incoming.Rack,
			Host:       incoming.Host,
			Version:    incoming.Version,
			Properties: incoming.Properties,
			State:      domain.ALIVE, // always ALIVE regardless of incoming.State
			Term:       incoming.Term,
		}, rc.now())
		rc.reg.insert(rec)
		rc.post(domain.Event{Type: domain.MemberAdded, Member: rec.Snapshot()})
		rc.enqueue(rec.Snapshot())
		return true
	}

	// Rule 3: strictly newer term.
	if incoming.Term > current.Term {
		if incoming.Version != current.Version {
			old := current.Snapshot()
			rc.reg.remove(current.Id)
			rc.post(domain.Event{Type: domain.MemberRemoved, Member: old})

			rec := domain.NewRecord(domain.ImmutableMember{
				Id:         incoming.Id,
				Address:    incoming.Address,
				Zone:       incoming.Zone,
				Rack:       incoming.Rack,
				Host:       incoming.Host,
				Version:    incoming.Version,
				Properties: incoming.Properties,
				State:      domain.ALIVE,
				Term:       incoming.Term,
			}, rc.now())
			rc.reg.insert(rec)
			rc.post(domain.Event{Type: domain.MemberAdded, Member: rec.Snapshot()})
			rc.enqueue(rec.Snapshot())
			return true
		}

		current.Term = incoming.Term
		rc.applyStateDelta(current, incoming)
		return true
	}

	// Rule 4: same term, state strictly advances along the ordinal order.
	if incoming.Term == current.Term && incoming.State > current.State {
		rc.advanceState(current, incoming.State)
		return true
	}

	// Rule 5: everything else is rejected.
	return false
}

// applyStateDelta implements the same-version branch of Rule 3.
func (rc *reconciler) applyStateDelta(current *domain.MemberRecord, incoming domain.ImmutableMember) {
	propsDiffer := !current.Properties.Equal(incoming.Properties)

	switch {
	case incoming.State == domain.ALIVE && current.State != domain.ALIVE:
		current.State = domain.ALIVE
		current.Timestamp = rc.now()
		rc.post(domain.Event{Type: domain.ReachabilityChanged, Member: current.Snapshot()})
		if propsDiffer {
			current.Properties = incoming.Properties.Clone()
			rc.post(domain.Event{Type: domain.MetadataChanged, Member: current.Snapshot()})
		}
		rc.enqueue(current.Snapshot())

	case incoming.State == domain.SUSPECT && current.State != domain.SUSPECT:
		if propsDiffer {
			current.Properties = incoming.Properties.Clone()
			rc.post(domain.Event{Type: domain.MetadataChanged, Member: current.Snapshot()})
		}
		current.State = domain.SUSPECT
		current.Timestamp = rc.now()
		rc.post(domain.Event{Type: domain.ReachabilityChanged, Member: current.Snapshot()})
		if rc.cfg.NotifySuspect {
			rc.notifyOne(current.Snapshot())
		}
		rc.enqueue(current.Snapshot())

	case incoming.State == domain.DEAD && current.State != domain.DEAD:
		if current.State == domain.ALIVE {
			current.State = domain.SUSPECT
			current.Timestamp = rc.now()
			rc.post(domain.Event{Type: domain.ReachabilityChanged, Member: current.Snapshot()})
		}
		removed := current.Snapshot()
		removed.State = domain.DEAD
		rc.reg.remove(current.Id)
		rc.post(domain.Event{Type: domain.MemberRemoved, Member: removed})
		rc.enqueue(removed)

	default:
		// Only properties differ.
		if propsDiffer {
			current.Properties = incoming.Properties.Clone()
			rc.post(domain.Event{Type: domain.MetadataChanged, Member: current.Snapshot()})
		}
		rc.enqueue(current.Snapshot())
	}
}

// advanceState implements Rule 4: a same-term ordinal advance.
func (rc *reconciler) advanceState(current *domain.MemberRecord, newState domain.State) {
	switch newState {
	case domain.SUSPECT:
		current.State = domain.SUSPECT
		current.Timestamp = rc.now()
		rc.post(domain.Event{Type: domain.ReachabilityChanged, Member: current.Snapshot()})
		if rc.cfg.NotifySuspect {
			rc.notifyOne(current.Snapshot())
		}
		rc.enqueue(current.Snapshot())
	case domain.DEAD:
		removed := current.Snapshot()
		removed.State = domain.DEAD
		rc.reg.remove(current.Id)
		rc.post(domain.Event{Type: domain.MemberRemoved, Member: removed})
		rc.enqueue(removed)
	default:
		current.State = newState
		current.Timestamp = rc.now()
		rc.enqueue(current.Snapshot())
	}
}

// checkMetadata compares the local record's properties to the shadowed
// snapshot. On drift it bumps the local term by one, emits
// METADATA_CHANGED, and enqueues an update (§4.B).
func (rc *reconciler) checkMetadata() {
	local := rc.reg.get(rc.reg.localID)
	if local == nil {
		return
	}
	if local.Properties.Equal(rc.localProps) {
		return
	}
	rc.localProps = local.Properties.Clone()
	local.Term++
	rc.post(domain.Event{Type: domain.MetadataChanged, Member: local.Snapshot()})
	rc.enqueue(local.Snapshot())
}

// setLocalProperties mutates the local record's properties in place. It is
// the entry point a caller uses to trigger the drift checkMetadata detects
// on the next gossip tick.
func (rc *reconciler) setLocalProperties(props domain.Properties) {
	local := rc.reg.get(rc.reg.localID)
	if local == nil {
		return
	}
	local.Properties = props.Clone()
}
