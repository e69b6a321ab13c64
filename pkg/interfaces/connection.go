package interfaces

// Connection represents a classroom client socket registered on a channel
// ARCHITECTURAL DISCOVERY: The registry and broadcast router depend only on this
// abstraction, so fan-out can be exercised without a live WebSocket
type Connection interface {
	// ID returns the server-assigned identifier of this socket
	// FUNCTIONAL DISCOVERY: Identifier is the membership key inside a channel set
	ID() string

	// Channel returns the channel the socket subscribed to
	Channel() string

	// WriteJSON sends a JSON message to the client (thread-safe)
	// FUNCTIONAL DISCOVERY: An error means the socket can no longer be trusted
	// for delivery and must be pruned from its channel
	WriteJSON(v interface{}) error

	// Close closes the connection and cleans up resources (idempotent)
	Close() error
}
