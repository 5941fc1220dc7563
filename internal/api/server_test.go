package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/thirstycrow/atomix/internal/codec"
	"github.com/thirstycrow/atomix/internal/domain"
	"github.com/thirstycrow/atomix/internal/membership"
)

// noopRRS/noopUnicast/noopDiscovery are inert transport collaborators: the
// API layer only reads from the service's registry, it never drives a
// probe or gossip round, so nothing needs to actually answer a request.
type noopRRS struct{}

func (noopRRS) Register(string, domain.RequestHandler) error   { return nil }
func (noopRRS) Unregister(string) error                        { return nil }
func (noopRRS) SendAndReceive(context.Context, domain.Address, string, []byte) ([]byte, error) {
	return nil, errUnreachable
}

type errString string

func (e errString) Error() string { return string(e) }

const errUnreachable = errString("no peer reachable")

type noopUnicast struct{}

func (noopUnicast) AddListener(string, domain.UnicastHandler) error { return nil }
func (noopUnicast) RemoveListener(string) error                     { return nil }
func (noopUnicast) Unicast(domain.Address, string, []byte) error    { return nil }

type noopDiscovery struct{}

func (noopDiscovery) GetNodes() []domain.Node                           { return nil }
func (noopDiscovery) AddListener(domain.DiscoveryListener) (int, error) { return 0, nil }
func (noopDiscovery) RemoveListener(int) error                          { return nil }

func newTestServer(t *testing.T) (*Server, *membership.Service) {
	t.Helper()
	cfg := membership.DefaultConfig()
	cfg.ProbeInterval = time.Hour
	cfg.GossipInterval = time.Hour

	svc := membership.New("A", cfg, noopRRS{}, noopUnicast{}, noopDiscovery{}, codec.JSON{})
	if err := svc.Join(domain.ImmutableMember{Id: "A", Address: "a:1"}); err != nil {
		t.Fatalf("Join: %v", err)
	}
	t.Cleanup(func() { svc.Leave() })

	return NewServer(svc), svc
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestServer_ListMembers(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/members/", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var views []map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("len(views) = %d, want 1 (local member only)", len(views))
	}
	if views[0]["id"] != "A" || views[0]["state"] != "ALIVE" {
		t.Errorf("unexpected view: %+v", views[0])
	}
}

func TestServer_GetMember_Found(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/members/A", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestServer_GetMember_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/members/ghost", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestServer_Metrics_DisabledByDefault(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 when metrics are not enabled", w.Code)
	}
}

func TestServer_Metrics_EnabledExposesPrometheusFormat(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.EnableMetrics()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
