// Package membership implements the core of a decentralized SWIM-style
// cluster-membership service: a member registry, a state reconciler, a
// failure detector, a gossip dissemination engine, and the scheduler and
// event bus that serialize them onto two single-threaded execution
// contexts.
package membership

import "time"

// Config holds the tunable parameters of the membership core. Transport,
// discovery, serialization, logging and process lifecycle are supplied by
// the caller and are not configured here.
type Config struct {
	// ProbeInterval is the period between direct probes.
	ProbeInterval time.Duration
	// ProbeTimeout bounds how long a single direct or indirect probe call
	// may take before it is treated as a failure. Probes run off the
	// scheduler goroutine (§5), so this timeout protects the spawned
	// transport call, not the scheduler itself.
	ProbeTimeout time.Duration
	// GossipInterval is the period between the failure sweep and the
	// gossip fanout.
	GossipInterval time.Duration
	// GossipFanout is the maximum number of peers contacted per gossip
	// batch.
	GossipFanout int
	// SuspectProbes is the number of indirect-probe peers requested per
	// suspect.
	SuspectProbes int
	// FailureTimeout is how long a member may remain SUSPECT before it
	// is promoted to DEAD.
	FailureTimeout time.Duration
	// NotifySuspect, if true, gossips a single SUSPECT update immediately
	// on local demotion of a peer.
	NotifySuspect bool
	// BroadcastDisputes, if true, broadcasts the local record to every
	// peer when the local term advances in response to a hostile probe.
	BroadcastDisputes bool
	// BroadcastUpdates, if true, broadcasts a SUSPECT update to every
	// registry peer once all indirect probes for a target have failed.
	BroadcastUpdates bool
}

// DefaultConfig returns conservative defaults suitable for a small cluster.
func DefaultConfig() Config {
	return Config{
		ProbeInterval:     1 * time.Second,
		ProbeTimeout:      2 * time.Second,
		GossipInterval:    1 * time.Second,
		GossipFanout:      3,
		SuspectProbes:     3,
		FailureTimeout:    5 * time.Second,
		NotifySuspect:     true,
		BroadcastDisputes: true,
		BroadcastUpdates:  true,
	}
}
