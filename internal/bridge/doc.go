// Package bridge connects the backend's change-notification channel to the
// in-process broadcast layer. It holds the single pattern subscription for
// all poll event channels and survives backend outages by resubscribing
// with backoff.
package bridge
