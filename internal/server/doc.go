// Package server implements the WebSocket transport for the roomcast
// coordinator.
//
// The Hub tracks connections by server-assigned ID, manages named broadcast
// groups, and dispatches inbound command frames serially to the registered
// protocol handlers. Configuration, origin validation, rate limiting, and
// HTTP wiring live in their own files to keep the package maintainable as it
// grows.
package server
