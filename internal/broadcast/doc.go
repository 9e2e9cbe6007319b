// Package broadcast delivers poll change events to WebSocket clients.
//
// The Registry is an actor: one goroutine owns the connection and
// subscription maps, and all public methods post commands to it. Each
// connection gets a dedicated clientWriter goroutine with a bounded buffer;
// a client that cannot keep up is evicted rather than allowed to block
// fan-out to the others. The Dispatcher translates change events into wire
// messages and picks the fan-out scope per event kind.
package broadcast
