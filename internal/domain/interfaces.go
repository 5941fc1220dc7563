package domain

import "context"

// ─── Transport Collaborators ────────────────────────────────────────────────
// These interfaces are the external boundary named in §6: the core depends
// on them but never implements them. Infrastructure provides concrete
// adapters; the core only ever sees these shapes.

// RequestHandler answers a request/response call with a reply payload or an
// error. Handlers run on whatever executor the implementation chooses to
// invoke them on; the core re-serializes onto its own scheduler before
// touching any shared state.
type RequestHandler func(ctx context.Context, peer Address, payload []byte) ([]byte, error)

// RequestResponseService is the synchronous request/response transport used
// for probe and probe-request exchanges.
type RequestResponseService interface {
	Register(topic string, handler RequestHandler) error
	Unregister(topic string) error
	SendAndReceive(ctx context.Context, addr Address, topic string, payload []byte) ([]byte, error)
}

// UnicastHandler receives a fire-and-forget datagram.
type UnicastHandler func(peer Address, payload []byte)

// UnicastService is the fire-and-forget transport used for gossip fanout
// and dispute/suspect broadcasts.
type UnicastService interface {
	AddListener(topic string, handler UnicastHandler) error
	RemoveListener(topic string) error
	Unicast(addr Address, topic string, payload []byte) error
}

// DiscoveryKind classifies a DiscoveryEvent.
type DiscoveryKind int

const (
	DiscoveryJoin DiscoveryKind = iota
	DiscoveryLeave
)

// DiscoveryEvent is delivered by the DiscoveryService when a node joins or
// leaves the set of known addresses (distinct from membership ALIVE/SUSPECT/
// DEAD, which is this core's own derived view).
type DiscoveryEvent struct {
	Kind DiscoveryKind
	Node Node
}

// DiscoveryListener receives discovery events.
type DiscoveryListener func(DiscoveryEvent)

// DiscoveryService seeds and tracks peer addresses independently of the
// membership state machine. AddListener returns a registration token;
// RemoveListener takes that token rather than the listener value itself,
// since Go function values are not comparable and a DiscoveryService must
// be able to detach a specific registration.
type DiscoveryService interface {
	GetNodes() []Node
	AddListener(l DiscoveryListener) (int, error)
	RemoveListener(token int) error
}

// ─── Codec ───────────────────────────────────────────────────────────────────

// MemberCodec encodes and decodes the wire unit exchanged between nodes.
// Serialization format is explicitly out of scope (§1); the core only
// depends on this shape.
type MemberCodec interface {
	Encode(m ImmutableMember) ([]byte, error)
	Decode(b []byte) (ImmutableMember, error)
	EncodeBatch(ms []ImmutableMember) ([]byte, error)
	DecodeBatch(b []byte) ([]ImmutableMember, error)
	EncodeBool(v bool) ([]byte, error)
	DecodeBool(b []byte) (bool, error)
}
