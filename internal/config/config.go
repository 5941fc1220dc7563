// Package config loads the TOML configuration file that binds together a
// membership node's tunables, its transport bind address, its discovery
// seed list, and its storage path. Defaults mirror membership.DefaultConfig
// so a partial file still produces a working node; the file must exist and
// must set node.id.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/thirstycrow/atomix/internal/membership"
)

// SeedNode is one statically configured discovery seed.
type SeedNode struct {
	ID      string `toml:"id"`
	Address string `toml:"address"`
}

// Config is the root of ~/.atomix/config.toml (or a path passed via
// --config).
type Config struct {
	Node struct {
		ID      string `toml:"id"`
		Address string `toml:"address"`
		// Version identifies this process incarnation. Left blank in the
		// file, it is stamped with a fresh uuid on every Load so that a
		// restart is always recognized as a new incarnation rather than a
		// mutation of the previous one.
		Version string `toml:"version"`
	} `toml:"node"`

	Membership struct {
		ProbeIntervalMS  int64 `toml:"probe_interval_ms"`
		ProbeTimeoutMS   int64 `toml:"probe_timeout_ms"`
		GossipIntervalMS int64 `toml:"gossip_interval_ms"`
		GossipFanout     int   `toml:"gossip_fanout"`
		SuspectProbes    int   `toml:"suspect_probes"`
		FailureTimeoutMS int64 `toml:"failure_timeout_ms"`
		NotifySuspect    bool  `toml:"notify_suspect"`
	} `toml:"membership"`

	Seeds []SeedNode `toml:"seeds"`

	Storage struct {
		Path string `toml:"path"`
	} `toml:"storage"`

	API struct {
		ListenAddress  string `toml:"listen_address"`
		EnableMetrics  bool   `toml:"enable_metrics"`
	} `toml:"api"`
}

// Default returns a Config with membership tunables matching
// membership.DefaultConfig and an in-memory store, suitable for a single
// local node with no seeds configured.
func Default() Config {
	var cfg Config
	cfg.Node.Address = "127.0.0.1:7946"
	d := membership.DefaultConfig()
	cfg.Membership.ProbeIntervalMS = d.ProbeInterval.Milliseconds()
	cfg.Membership.ProbeTimeoutMS = d.ProbeTimeout.Milliseconds()
	cfg.Membership.GossipIntervalMS = d.GossipInterval.Milliseconds()
	cfg.Membership.GossipFanout = d.GossipFanout
	cfg.Membership.SuspectProbes = d.SuspectProbes
	cfg.Membership.FailureTimeoutMS = d.FailureTimeout.Milliseconds()
	cfg.Membership.NotifySuspect = d.NotifySuspect
	cfg.Storage.Path = ":memory:"
	cfg.API.ListenAddress = "127.0.0.1:8080"
	return cfg
}

// Load reads and parses the TOML file at path, starting from Default() so
// unset fields keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if cfg.Node.ID == "" {
		return Config{}, fmt.Errorf("config: node.id is required")
	}
	if cfg.Node.Version == "" {
		cfg.Node.Version = uuid.NewString()
	}
	return cfg, nil
}

// MembershipConfig translates the TOML tunables into a membership.Config,
// filling in the defaults' remaining fields (BroadcastDisputes and
// BroadcastUpdates, which are not currently exposed as file settings).
func (c Config) MembershipConfig() membership.Config {
	d := membership.DefaultConfig()
	return membership.Config{
		ProbeInterval:     time.Duration(c.Membership.ProbeIntervalMS) * time.Millisecond,
		ProbeTimeout:      time.Duration(c.Membership.ProbeTimeoutMS) * time.Millisecond,
		GossipInterval:    time.Duration(c.Membership.GossipIntervalMS) * time.Millisecond,
		GossipFanout:      c.Membership.GossipFanout,
		SuspectProbes:     c.Membership.SuspectProbes,
		FailureTimeout:    time.Duration(c.Membership.FailureTimeoutMS) * time.Millisecond,
		NotifySuspect:     c.Membership.NotifySuspect,
		BroadcastDisputes: d.BroadcastDisputes,
		BroadcastUpdates:  d.BroadcastUpdates,
	}
}
