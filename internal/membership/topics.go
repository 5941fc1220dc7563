package membership

// Topic names used to register handlers on the request/response and
// unicast transport collaborators (§6).
const (
	TopicProbe        = "atomix-membership-probe"
	TopicProbeRequest = "atomix-membership-probe-request"
	TopicGossip       = "atomix-membership-gossip"
)
