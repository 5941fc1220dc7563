package transport

import (
	"sync"

	"github.com/thirstycrow/atomix/internal/domain"
)

// StaticDiscovery is the simplest DiscoveryService: a fixed seed list
// configured at startup, with join/leave notifications driven externally
// (e.g. by a config reload or an operator command) rather than by an
// actual discovery protocol. Node discovery itself is explicitly out of
// scope for the membership core (§1).
type StaticDiscovery struct {
	mu        sync.RWMutex
	nodes     map[domain.MemberId]domain.Node
	listeners map[int]domain.DiscoveryListener
	nextToken int
}

// NewStaticDiscovery seeds the discovery set with the given nodes.
func NewStaticDiscovery(seed []domain.Node) *StaticDiscovery {
	nodes := make(map[domain.MemberId]domain.Node, len(seed))
	for _, n := range seed {
		nodes[n.Id] = n
	}
	return &StaticDiscovery{
		nodes:     nodes,
		listeners: make(map[int]domain.DiscoveryListener),
	}
}

// GetNodes returns every node currently known to this discovery set.
func (d *StaticDiscovery) GetNodes() []domain.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Node, 0, len(d.nodes))
	for _, n := range d.nodes {
		out = append(out, n)
	}
	return out
}

// AddListener registers l and returns a token usable with RemoveListener.
// StaticDiscovery tracks listeners by registration token rather than
// function identity, since Go function values are not comparable.
func (d *StaticDiscovery) AddListener(l domain.DiscoveryListener) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	token := d.nextToken
	d.nextToken++
	d.listeners[token] = l
	return token, nil
}

// RemoveListener detaches the listener registered under token. Removing an
// unknown or already-removed token is a no-op.
func (d *StaticDiscovery) RemoveListener(token int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.listeners, token)
	return nil
}

// AddNode admits a node and fires DiscoveryJoin to every listener.
func (d *StaticDiscovery) AddNode(n domain.Node) {
	d.mu.Lock()
	d.nodes[n.Id] = n
	listeners := d.snapshotListeners()
	d.mu.Unlock()

	for _, l := range listeners {
		l(domain.DiscoveryEvent{Kind: domain.DiscoveryJoin, Node: n})
	}
}

// RemoveNode evicts a node and fires DiscoveryLeave to every listener.
func (d *StaticDiscovery) RemoveNode(n domain.Node) {
	d.mu.Lock()
	delete(d.nodes, n.Id)
	listeners := d.snapshotListeners()
	d.mu.Unlock()

	for _, l := range listeners {
		l(domain.DiscoveryEvent{Kind: domain.DiscoveryLeave, Node: n})
	}
}

func (d *StaticDiscovery) snapshotListeners() []domain.DiscoveryListener {
	out := make([]domain.DiscoveryListener, 0, len(d.listeners))
	for _, l := range d.listeners {
		out = append(out, l)
	}
	return out
}
