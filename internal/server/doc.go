// Package server implements the WebSocket relay surface for roomcast.
//
// The implementation is organized into specialized files: the Relay decodes
// inbound envelopes and drives the room registry, the Hub tracks connection
// lifecycles and schedules grace-period evictions, and Client runs the
// per-connection read/write pumps. HTTP routing, origin checks, and rate
// limiting round out the edges.
package server
