package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Lifecycle errors
	ErrAlreadyJoined = errors.New("membership: join already called")
	ErrNotJoined     = errors.New("membership: join has not been called")

	// Registry errors
	ErrMemberNotFound = errors.New("membership: member not found in registry")
	ErrSelfUpdate     = errors.New("membership: cannot apply an update for the local member")

	// Transport errors (surfaced only where the spec requires it; most
	// transport failures are absorbed by the failure detector and never
	// reach a caller as an error value)
	ErrProbeFailed        = errors.New("membership: probe transport failed")
	ErrNoEligiblePeers    = errors.New("membership: no eligible peers for indirect probe")
	ErrMalformedPayload   = errors.New("membership: inbound payload failed to decode")
	ErrUnknownDiscoveryEvent = errors.New("membership: discovery event of unknown kind")
)
