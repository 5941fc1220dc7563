package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad_MinimalFile(t *testing.T) {
	path := writeTemp(t, `
[node]
id = "A"
address = "127.0.0.1:9001"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Node.ID != "A" {
		t.Errorf("Node.ID = %q, want A", cfg.Node.ID)
	}
	if cfg.Membership.GossipFanout != 3 {
		t.Errorf("Membership.GossipFanout = %d, want the default 3", cfg.Membership.GossipFanout)
	}
}

func TestLoad_StampsVersionWhenUnset(t *testing.T) {
	path := writeTemp(t, `
[node]
id = "A"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Node.Version == "" {
		t.Error("expected Load to stamp a non-empty Version")
	}
}

func TestLoad_MissingNodeID(t *testing.T) {
	path := writeTemp(t, `
[node]
address = "127.0.0.1:9001"
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error when node.id is missing")
	}
}

func TestLoad_OverridesMembershipTunables(t *testing.T) {
	path := writeTemp(t, `
[node]
id = "A"

[membership]
probe_interval_ms = 500
gossip_fanout = 5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Membership.ProbeIntervalMS != 500 {
		t.Errorf("ProbeIntervalMS = %d, want 500", cfg.Membership.ProbeIntervalMS)
	}
	if cfg.Membership.GossipFanout != 5 {
		t.Errorf("GossipFanout = %d, want 5", cfg.Membership.GossipFanout)
	}
}

func TestLoad_ParsesSeeds(t *testing.T) {
	path := writeTemp(t, `
[node]
id = "A"

[[seeds]]
id = "B"
address = "127.0.0.1:9002"

[[seeds]]
id = "C"
address = "127.0.0.1:9003"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.Seeds) != 2 {
		t.Fatalf("len(Seeds) = %d, want 2", len(cfg.Seeds))
	}
	if cfg.Seeds[0].ID != "B" || cfg.Seeds[1].Address != "127.0.0.1:9003" {
		t.Errorf("unexpected seeds: %+v", cfg.Seeds)
	}
}

func TestMembershipConfig_TranslatesMilliseconds(t *testing.T) {
	cfg := Default()
	cfg.Membership.ProbeIntervalMS = 250
	cfg.Membership.FailureTimeoutMS = 1500

	mc := cfg.MembershipConfig()
	if mc.ProbeInterval.Milliseconds() != 250 {
		t.Errorf("ProbeInterval = %s, want 250ms", mc.ProbeInterval)
	}
	if mc.FailureTimeout.Milliseconds() != 1500 {
		t.Errorf("FailureTimeout = %s, want 1500ms", mc.FailureTimeout)
	}
}
