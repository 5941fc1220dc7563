package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/thirstycrow/atomix/internal/api"
	"github.com/thirstycrow/atomix/internal/codec"
	"github.com/thirstycrow/atomix/internal/config"
	"github.com/thirstycrow/atomix/internal/domain"
	"github.com/thirstycrow/atomix/internal/infra/sqlite"
	"github.com/thirstycrow/atomix/internal/membership"
	"github.com/thirstycrow/atomix/internal/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start this node and join the cluster",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		return fmt.Errorf("serve: --config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := sqlite.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("serve: open storage: %w", err)
	}
	defer db.Close()

	rpc, err := transport.Listen(cfg.Node.Address)
	if err != nil {
		return fmt.Errorf("serve: listen on %s: %w", cfg.Node.Address, err)
	}
	defer rpc.Close()

	var seedNodes []domain.Node
	for _, s := range cfg.Seeds {
		seedNodes = append(seedNodes, domain.Node{Id: domain.MemberId(s.ID), Address: domain.Address(s.Address)})
	}
	discovery := transport.NewStaticDiscovery(seedNodes)

	svc := membership.New(domain.MemberId(cfg.Node.ID), cfg.MembershipConfig(), rpc, rpc, discovery, codec.JSON{})
	svc.AddListener(func(e domain.Event) {
		log.Printf("[clusterd] %s %s (%s, term=%d)", e.Type, e.Member.Id, e.Member.State, e.Member.Term)
		_ = db.InsertEvent(e.Type.String(), string(e.Member.Id), string(e.Member.Address), e.Member.State.String(), e.Member.Term)
		if e.Member.State == domain.DEAD {
			_ = db.RemoveSnapshot(string(e.Member.Id))
		} else {
			_ = db.UpsertSnapshot(string(e.Member.Id), string(e.Member.Address), e.Member.Zone, e.Member.Rack, e.Member.Host, string(e.Member.Version), e.Member.State.String(), e.Member.Term)
		}
	})

	self := domain.ImmutableMember{
		Id:      domain.MemberId(cfg.Node.ID),
		Address: domain.Address(cfg.Node.Address),
		Version: domain.Version(cfg.Node.Version),
	}
	if err := svc.Join(self); err != nil {
		return fmt.Errorf("serve: join: %w", err)
	}
	defer svc.Leave()

	server := api.NewServer(svc)
	if cfg.API.EnableMetrics {
		server.EnableMetrics()
	}
	httpSrv := &http.Server{Addr: cfg.API.ListenAddress, Handler: server.Handler()}

	go func() {
		log.Printf("[clusterd] node %s listening for membership traffic on %s, API on %s", cfg.Node.ID, cfg.Node.Address, cfg.API.ListenAddress)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[clusterd] http server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[clusterd] shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(ctx)
}
