package relay

// Peer is the relay's handle on one remote party. Implementations must not
// block: Send either queues the frame or reports false when the peer is
// gone or its buffer is full.
type Peer interface {
	Send(data []byte) bool
	// Close releases the peer. A non-empty reason is sent to the remote
	// side as a close frame before the connection is torn down.
	Close(reason string)
}
