// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import "time"

// ─── Identity Types ─────────────────────────────────────────────────────────

// MemberId is an opaque, stable identifier for a cluster member.
type MemberId string

// Address is a host+port locator consumed by the transport collaborators.
type Address string

// Version is an opaque, comparable identity for a member's software or
// schema incarnation. Two records for the same MemberId with different
// Versions represent different incarnations of that member — a restart,
// not a mutation.
type Version string

// Properties is an order-insensitive string-to-string metadata bag
// attached to a member.
type Properties map[string]string

// Equal reports whether two Properties maps hold the same keys and values.
func (p Properties) Equal(other Properties) bool {
	if len(p) != len(other) {
		return false
	}
	for k, v := range p {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Clone returns a shallow copy of the properties map.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ─── Reachability State ─────────────────────────────────────────────────────

// State is the ordered reachability lattice a member record travels
// through. Ordinal order matters: the reconciler only accepts a same-term
// transition when it strictly increases the ordinal.
type State int

const (
	// ALIVE members are considered active and reachable.
	ALIVE State = iota
	// SUSPECT members are still tracked but have failed direct and
	// indirect probes; they are active but not reachable.
	SUSPECT
	// DEAD members are inactive and unreachable. Dead records are not
	// retained in the registry.
	DEAD
)

// String renders the state name, used for logging and the HTTP API's member
// view. The JSON wire codec encodes State as its integer ordinal.
func (s State) String() string {
	switch s {
	case ALIVE:
		return "ALIVE"
	case SUSPECT:
		return "SUSPECT"
	case DEAD:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// Active reports whether the state counts as a live cluster participant.
func (s State) Active() bool {
	return s == ALIVE || s == SUSPECT
}

// Reachable reports whether probes are expected to succeed against a
// member in this state.
func (s State) Reachable() bool {
	return s == ALIVE
}

// ─── Node & Member Records ──────────────────────────────────────────────────

// Node is the minimal locator the discovery collaborator hands the core:
// an id paired with a dial address.
type Node struct {
	Id      MemberId
	Address Address
}

// MemberRecord is the mutable, per-peer record held in the registry.
// Identity fields (Id, Address, Zone, Rack, Host, Version) are set once at
// creation. Properties, State, Term and Timestamp mutate over the record's
// life in the registry.
type MemberRecord struct {
	Id      MemberId
	Address Address
	Zone    string
	Rack    string
	Host    string
	Version Version // may be empty for bootstrap stubs

	Properties Properties
	State      State

	// Term is a monotonic logical timestamp. For the local record it is
	// seeded from wall-clock milliseconds at creation and bumped on
	// dispute or metadata change; for remote records it is adopted from
	// whichever peer most recently advanced it.
	Term int64

	// Timestamp is the wall-clock time of the last State change, used by
	// the suspicion timeout to age SUSPECT records out to DEAD.
	Timestamp time.Time
}

// Snapshot returns an immutable value copy of the record, safe to publish
// to gossip, the wire, or event subscribers without additional locking.
func (m *MemberRecord) Snapshot() ImmutableMember {
	return ImmutableMember{
		Id:         m.Id,
		Address:    m.Address,
		Zone:       m.Zone,
		Rack:       m.Rack,
		Host:       m.Host,
		Version:    m.Version,
		Properties: m.Properties.Clone(),
		State:      m.State,
		Term:       m.Term,
	}
}

// ImmutableMember is the value-typed, wire-safe unit exchanged between
// nodes and delivered to listeners. It never mutates after construction.
type ImmutableMember struct {
	Id         MemberId   `json:"id"`
	Address    Address    `json:"address"`
	Zone       string     `json:"zone,omitempty"`
	Rack       string     `json:"rack,omitempty"`
	Host       string     `json:"host,omitempty"`
	Version    Version    `json:"version,omitempty"`
	Properties Properties `json:"properties,omitempty"`
	State      State      `json:"state"`
	Term       int64      `json:"term"`
}

// NewRecord builds a mutable MemberRecord from an ImmutableMember, stamping
// Timestamp to now. Used whenever the reconciler materializes a record for
// the registry.
func NewRecord(m ImmutableMember, now time.Time) *MemberRecord {
	return &MemberRecord{
		Id:         m.Id,
		Address:    m.Address,
		Zone:       m.Zone,
		Rack:       m.Rack,
		Host:       m.Host,
		Version:    m.Version,
		Properties: m.Properties.Clone(),
		State:      m.State,
		Term:       m.Term,
		Timestamp:  now,
	}
}

// ─── Membership Events ──────────────────────────────────────────────────────

// EventType classifies a membership event posted to the event bus.
type EventType int

const (
	MemberAdded EventType = iota
	MemberRemoved
	ReachabilityChanged
	MetadataChanged
)

// String renders the event type name for logging.
func (t EventType) String() string {
	switch t {
	case MemberAdded:
		return "MEMBER_ADDED"
	case MemberRemoved:
		return "MEMBER_REMOVED"
	case ReachabilityChanged:
		return "REACHABILITY_CHANGED"
	case MetadataChanged:
		return "METADATA_CHANGED"
	default:
		return "UNKNOWN_EVENT"
	}
}

// Event pairs an EventType with the member snapshot it concerns.
type Event struct {
	Type   EventType
	Member ImmutableMember
}

// Listener receives membership events in the order the reconciler posted
// them to the event bus.
type Listener func(Event)
