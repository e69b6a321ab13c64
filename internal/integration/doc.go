// Package integration exercises a fully wired callboard application over
// real HTTP and WebSocket connections.
package integration
