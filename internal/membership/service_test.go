package membership

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/thirstycrow/atomix/internal/domain"
)

// fakeDiscovery is a static DiscoveryService used by Service tests.
type fakeDiscovery struct {
	nodes []domain.Node
}

func (f *fakeDiscovery) GetNodes() []domain.Node                      { return f.nodes }
func (f *fakeDiscovery) AddListener(domain.DiscoveryListener) (int, error) { return 0, nil }
func (f *fakeDiscovery) RemoveListener(int) error                     { return nil }

// loopbackTransport wires Register/SendAndReceive/Unicast/AddListener
// directly against in-memory peer services, keyed by address, so a small
// cluster of Services can be driven without real sockets.
type loopbackTransport struct {
	mu        sync.Mutex
	rrsByAddr map[domain.Address]map[string]domain.RequestHandler
	ucByAddr  map[domain.Address]map[string]domain.UnicastHandler
}

func newLoopbackTransport() *loopbackTransport {
	return &loopbackTransport{
		rrsByAddr: map[domain.Address]map[string]domain.RequestHandler{},
		ucByAddr:  map[domain.Address]map[string]domain.UnicastHandler{},
	}
}

// rrsFor returns a per-node RequestResponseService view onto the shared
// transport.
func (lt *loopbackTransport) rrsFor(addr domain.Address) domain.RequestResponseService {
	return &loopbackRRS{lt: lt, self: addr}
}

func (lt *loopbackTransport) unicastFor(addr domain.Address) domain.UnicastService {
	return &loopbackUnicast{lt: lt, self: addr}
}

type loopbackRRS struct {
	lt   *loopbackTransport
	self domain.Address
}

func (r *loopbackRRS) Register(topic string, h domain.RequestHandler) error {
	r.lt.mu.Lock()
	defer r.lt.mu.Unlock()
	m, ok := r.lt.rrsByAddr[r.self]
	if !ok {
		m = map[string]domain.RequestHandler{}
		r.lt.rrsByAddr[r.self] = m
	}
	m[topic] = h
	return nil
}

func (r *loopbackRRS) Unregister(topic string) error {
	r.lt.mu.Lock()
	defer r.lt.mu.Unlock()
	delete(r.lt.rrsByAddr[r.self], topic)
	return nil
}

func (r *loopbackRRS) SendAndReceive(ctx context.Context, addr domain.Address, topic string, payload []byte) ([]byte, error) {
	r.lt.mu.Lock()
	h := r.lt.rrsByAddr[addr][topic]
	r.lt.mu.Unlock()
	if h == nil {
		return nil, errNoHandler
	}
	return h(ctx, r.self, payload)
}

type loopbackUnicast struct {
	lt   *loopbackTransport
	self domain.Address
}

func (u *loopbackUnicast) AddListener(topic string, h domain.UnicastHandler) error {
	u.lt.mu.Lock()
	defer u.lt.mu.Unlock()
	m, ok := u.lt.ucByAddr[u.self]
	if !ok {
		m = map[string]domain.UnicastHandler{}
		u.lt.ucByAddr[u.self] = m
	}
	m[topic] = h
	return nil
}

func (u *loopbackUnicast) RemoveListener(topic string) error {
	u.lt.mu.Lock()
	defer u.lt.mu.Unlock()
	delete(u.lt.ucByAddr[u.self], topic)
	return nil
}

func (u *loopbackUnicast) Unicast(addr domain.Address, topic string, payload []byte) error {
	u.lt.mu.Lock()
	h := u.lt.ucByAddr[addr][topic]
	u.lt.mu.Unlock()
	if h == nil {
		return errNoHandler
	}
	go h(u.self, payload)
	return nil
}

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

const errNoHandler = sentinelErr("loopback: no handler registered")

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.ProbeInterval = 20 * time.Millisecond
	cfg.GossipInterval = 20 * time.Millisecond
	cfg.FailureTimeout = 80 * time.Millisecond
	cfg.GossipFanout = 2
	cfg.SuspectProbes = 2
	return cfg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestService_JoinAndConverge(t *testing.T) {
	lt := newLoopbackTransport()
	cfg := fastConfig()

	nodes := map[domain.MemberId]domain.Address{"A": "a:1", "B": "b:1", "C": "c:1"}
	services := map[domain.MemberId]*Service{}
	for id, addr := range nodes {
		var peers []domain.Node
		for pid, paddr := range nodes {
			if pid != id {
				peers = append(peers, domain.Node{Id: pid, Address: paddr})
			}
		}
		svc := New(id, cfg, lt.rrsFor(addr), lt.unicastFor(addr), &fakeDiscovery{nodes: peers}, jsonCodec{})
		services[id] = svc
	}

	for id, addr := range nodes {
		if err := services[id].Join(domain.ImmutableMember{Id: id, Address: addr}); err != nil {
			t.Fatalf("Join(%s): %v", id, err)
		}
	}
	defer func() {
		for _, svc := range services {
			svc.Leave()
		}
	}()

	waitFor(t, 3*time.Second, func() bool {
		return len(services["A"].GetMembers()) == 3
	})

	members := services["A"].GetMembers()
	seen := map[domain.MemberId]bool{}
	for _, m := range members {
		seen[m.Id] = true
		if m.State != domain.ALIVE {
			t.Errorf("member %s state = %s, want ALIVE", m.Id, m.State)
		}
	}
	for id := range nodes {
		if !seen[id] {
			t.Errorf("expected %s to appear in A's registry", id)
		}
	}
}

func TestService_Join_IsIdempotent(t *testing.T) {
	lt := newLoopbackTransport()
	cfg := fastConfig()
	svc := New("A", cfg, lt.rrsFor("a:1"), lt.unicastFor("a:1"), &fakeDiscovery{}, jsonCodec{})

	if err := svc.Join(domain.ImmutableMember{Id: "A", Address: "a:1"}); err != nil {
		t.Fatalf("first Join: %v", err)
	}
	if err := svc.Join(domain.ImmutableMember{Id: "A", Address: "a:1"}); err != nil {
		t.Fatalf("second Join must be a no-op, got error: %v", err)
	}
	svc.Leave()
}

func TestService_Leave_IsIdempotent(t *testing.T) {
	lt := newLoopbackTransport()
	cfg := fastConfig()
	svc := New("A", cfg, lt.rrsFor("a:1"), lt.unicastFor("a:1"), &fakeDiscovery{}, jsonCodec{})
	svc.Join(domain.ImmutableMember{Id: "A", Address: "a:1"})

	if err := svc.Leave(); err != nil {
		t.Fatalf("first Leave: %v", err)
	}
	if err := svc.Leave(); err != nil {
		t.Fatalf("second Leave must be a no-op, got error: %v", err)
	}
	if len(svc.GetMembers()) != 0 {
		t.Error("registry must be empty after Leave")
	}
}

func TestService_AddListener_ReceivesLocalMemberAdded(t *testing.T) {
	lt := newLoopbackTransport()
	cfg := fastConfig()
	svc := New("A", cfg, lt.rrsFor("a:1"), lt.unicastFor("a:1"),
		&fakeDiscovery{nodes: []domain.Node{{Id: "B", Address: "b:1"}}}, jsonCodec{})

	events := make(chan domain.Event, 16)
	svc.AddListener(func(e domain.Event) { events <- e })

	if err := svc.Join(domain.ImmutableMember{Id: "A", Address: "a:1"}); err != nil {
		t.Fatal(err)
	}
	defer svc.Leave()

	// Join posts MEMBER_ADDED for the local member. B never responds, so it
	// is never admitted to the registry and produces no event of its own.
	var seen []domain.EventType
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case e := <-events:
			seen = append(seen, e.Type)
			if e.Type == domain.MemberAdded && e.Member.Id == "A" {
				return
			}
		case <-time.After(20 * time.Millisecond):
		}
	}
	t.Fatalf("expected a MEMBER_ADDED event for the local member A, saw %v", seen)
}
