// Package transport provides a net/rpc based implementation of the
// request/response and unicast collaborators the membership core depends
// on (domain.RequestResponseService, domain.UnicastService). Serialization
// format, connection pooling and retry policy live here, outside the core,
// per §1/§6 of the design.
package transport

import (
	"context"
	"errors"
	"log"
	"net"
	"net/rpc"
	"sync"

	"github.com/thirstycrow/atomix/internal/domain"
)

// CallArgs is the RPC payload for a request/response exchange.
type CallArgs struct {
	Topic   string
	Payload []byte
}

// CallReply carries the handler's response payload.
type CallReply struct {
	Payload []byte
}

// SendArgs is the RPC payload for a fire-and-forget unicast.
type SendArgs struct {
	Topic   string
	Payload []byte
}

// SendReply is empty; unicast semantics discard the response.
type SendReply struct{}

// Endpoint is the net/rpc service registered on each node. Its exported
// methods are the only ones net/rpc can dispatch to.
type Endpoint struct {
	mu          sync.RWMutex
	reqHandlers map[string]domain.RequestHandler
	ucHandlers  map[string]domain.UnicastHandler
}

func newEndpoint() *Endpoint {
	return &Endpoint{
		reqHandlers: make(map[string]domain.RequestHandler),
		ucHandlers:  make(map[string]domain.UnicastHandler),
	}
}

// Call dispatches a request/response RPC to the locally registered handler
// for args.Topic.
func (e *Endpoint) Call(args CallArgs, reply *CallReply) error {
	e.mu.RLock()
	h := e.reqHandlers[args.Topic]
	e.mu.RUnlock()
	if h == nil {
		return errors.New("transport: no handler registered for topic " + args.Topic)
	}
	out, err := h(context.Background(), "", args.Payload)
	if err != nil {
		return err
	}
	reply.Payload = out
	return nil
}

// Send dispatches a fire-and-forget unicast to the locally registered
// listener for args.Topic.
func (e *Endpoint) Send(args SendArgs, reply *SendReply) error {
	e.mu.RLock()
	h := e.ucHandlers[args.Topic]
	e.mu.RUnlock()
	if h != nil {
		h("", args.Payload)
	}
	return nil
}

// RPC is a node's transport: it serves an Endpoint over TCP and dials
// peers on demand to deliver outbound calls and sends.
type RPC struct {
	listener net.Listener
	server   *rpc.Server
	endpoint *Endpoint

	mu      sync.Mutex
	clients map[domain.Address]*rpc.Client
}

// Listen binds bindAddr and starts serving RPC requests in the background.
// Call Close to release the listener.
func Listen(bindAddr string) (*RPC, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}

	endpoint := newEndpoint()
	server := rpc.NewServer()
	if err := server.RegisterName("Endpoint", endpoint); err != nil {
		ln.Close()
		return nil, err
	}

	t := &RPC{
		listener: ln,
		server:   server,
		endpoint: endpoint,
		clients:  make(map[domain.Address]*rpc.Client),
	}
	go t.serveLoop()
	return t, nil
}

func (t *RPC) serveLoop() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			return
		}
		go t.server.ServeConn(conn)
	}
}

// Close stops accepting new connections and drops cached client
// connections. In-flight calls may still complete; the core must treat
// that as safe to drop per §5.
func (t *RPC) Close() error {
	t.mu.Lock()
	for addr, c := range t.clients {
		c.Close()
		delete(t.clients, addr)
	}
	t.mu.Unlock()
	return t.listener.Close()
}

func (t *RPC) dial(addr domain.Address) (*rpc.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.clients[addr]; ok {
		return c, nil
	}
	c, err := rpc.Dial("tcp", string(addr))
	if err != nil {
		return nil, err
	}
	t.clients[addr] = c
	return c, nil
}

func (t *RPC) dropClient(addr domain.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.clients[addr]; ok {
		c.Close()
		delete(t.clients, addr)
	}
}

// ─── domain.RequestResponseService ──────────────────────────────────────────

// Register installs handler for topic. Only one handler per topic; a
// second Register for the same topic replaces the first.
func (t *RPC) Register(topic string, handler domain.RequestHandler) error {
	t.endpoint.mu.Lock()
	defer t.endpoint.mu.Unlock()
	t.endpoint.reqHandlers[topic] = handler
	return nil
}

// Unregister removes the handler installed for topic.
func (t *RPC) Unregister(topic string) error {
	t.endpoint.mu.Lock()
	defer t.endpoint.mu.Unlock()
	delete(t.endpoint.reqHandlers, topic)
	return nil
}

// SendAndReceive dials addr (reusing a cached connection where possible)
// and makes a synchronous request/response call.
func (t *RPC) SendAndReceive(ctx context.Context, addr domain.Address, topic string, payload []byte) ([]byte, error) {
	client, err := t.dial(addr)
	if err != nil {
		return nil, err
	}

	var reply CallReply
	call := client.Go("Endpoint.Call", CallArgs{Topic: topic, Payload: payload}, &reply, make(chan *rpc.Call, 1))

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-call.Done:
		if res.Error != nil {
			t.dropClient(addr)
			return nil, res.Error
		}
		return reply.Payload, nil
	}
}

// ─── domain.UnicastService ──────────────────────────────────────────────────

// AddListener installs handler for topic's inbound unicasts.
func (t *RPC) AddListener(topic string, handler domain.UnicastHandler) error {
	t.endpoint.mu.Lock()
	defer t.endpoint.mu.Unlock()
	t.endpoint.ucHandlers[topic] = handler
	return nil
}

// RemoveListener removes the listener installed for topic.
func (t *RPC) RemoveListener(topic string) error {
	t.endpoint.mu.Lock()
	defer t.endpoint.mu.Unlock()
	delete(t.endpoint.ucHandlers, topic)
	return nil
}

// Unicast dials addr and fires the send without waiting for the remote
// handler to run. A dial failure is returned to the caller; a failure of
// the send itself is logged and dropped, matching the fire-and-forget
// semantics of §4.D/§7.
func (t *RPC) Unicast(addr domain.Address, topic string, payload []byte) error {
	client, err := t.dial(addr)
	if err != nil {
		return err
	}
	var reply SendReply
	call := client.Go("Endpoint.Send", SendArgs{Topic: topic, Payload: payload}, &reply, nil)
	go func() {
		res := <-call.Done
		if res.Error != nil {
			log.Printf("[transport] unicast to %s/%s dropped: %v", addr, topic, res.Error)
			t.dropClient(addr)
		}
	}()
	return nil
}
