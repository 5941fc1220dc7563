package transport

import (
	"context"
	"testing"
	"time"

	"github.com/thirstycrow/atomix/internal/domain"
)

func TestRPC_SendAndReceive(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network integration test in short mode")
	}

	server, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()

	server.Register("echo", func(ctx context.Context, peer domain.Address, payload []byte) ([]byte, error) {
		out := append([]byte("echo:"), payload...)
		return out, nil
	})

	client, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen (client): %v", err)
	}
	defer client.Close()

	addr := domain.Address(server.listener.Addr().String())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reply, err := client.SendAndReceive(ctx, addr, "echo", []byte("hi"))
	if err != nil {
		t.Fatalf("SendAndReceive: %v", err)
	}
	if string(reply) != "echo:hi" {
		t.Errorf("reply = %q, want %q", reply, "echo:hi")
	}
}

func TestRPC_Unicast(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network integration test in short mode")
	}

	server, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()

	received := make(chan []byte, 1)
	server.AddListener("gossip", func(peer domain.Address, payload []byte) {
		received <- payload
	})

	client, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen (client): %v", err)
	}
	defer client.Close()

	addr := domain.Address(server.listener.Addr().String())
	if err := client.Unicast(addr, "gossip", []byte("update")); err != nil {
		t.Fatalf("Unicast: %v", err)
	}

	select {
	case payload := <-received:
		if string(payload) != "update" {
			t.Errorf("payload = %q, want %q", payload, "update")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("unicast payload never arrived")
	}
}

func TestRPC_SendAndReceive_UnknownTopicErrors(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network integration test in short mode")
	}

	server, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()

	client, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen (client): %v", err)
	}
	defer client.Close()

	addr := domain.Address(server.listener.Addr().String())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := client.SendAndReceive(ctx, addr, "nope", nil); err == nil {
		t.Fatal("expected an error for an unregistered topic")
	}
}
