package room

// Peer is the hub's view of one connected session: just enough to address
// and write to it. The session layer owns the actual socket; the hub only
// ever touches this struct, which is how spec §9's "shared-state mutation
// from many connections" concern is resolved — every mutation funnels
// through the single goroutine running Hub.run.
//
// Send is scoped to one room membership, not to the session's connection
// lifetime: the session forwards frames out of Send into its own
// longer-lived outbound queue rather than sharing that queue directly, so
// the hub closing Send (a reconnect eviction, a backpressure drop, or a
// room shutdown) never closes that queue itself; the session reacts by
// closing its connection. A session that leaves a room voluntarily drops
// its Peer without the hub ever closing Send at all.
type Peer struct {
	SessionID string
	UserID    string
	Username  string

	// Send is the bounded outbound queue the hub writes to for this
	// membership. The hub waits at most outboundSendTimeout on a full
	// queue before applying the backpressure policy of spec §4.4.
	Send chan []byte
}

// NewPeer creates a peer with the bounded outbound queue size the session
// layer uses for every connection.
func NewPeer(sessionID, userID, username string, queueSize int) *Peer {
	return &Peer{
		SessionID: sessionID,
		UserID:    userID,
		Username:  username,
		Send:      make(chan []byte, queueSize),
	}
}
