// Package server exposes the poll API over HTTP and websocket.
//
// REST endpoints under /api/v1 create, list, vote on, close and delete
// polls. Two websocket endpoints feed live updates: /ws is a global feed
// that can attach to a poll via control messages, /ws/:poll_id subscribes
// immediately and replays the current poll state as the first frame.
// Connection registration and fan-out live in the broadcast package; this
// package only upgrades connections, runs their read pumps and enforces
// per-IP limits.
package server
