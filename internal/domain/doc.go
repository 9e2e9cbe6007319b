// Package domain defines the core poll types, change events, and the
// contracts between the state engine, the store adapter, and the broadcast
// layer.
//
// Concept-oriented files (poll.go, events.go, errors.go, store.go) hold
// shared types and cross-cutting interfaces with no implementation code,
// keeping the dependency direction pointing inward and preventing circular
// imports.
package domain
