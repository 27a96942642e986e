// Package server wires HTTP handlers into a ServeMux for the roomcast
// application.
package server

import "net/http"

// SetupRoutes configures and returns the application's HTTP routes: the
// health check, the multi-room chat endpoint, and the legacy single-room
// lobby endpoint.
func SetupRoutes(chatHub, lobbyHub *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", WebSocketHandler(chatHub))
	mux.HandleFunc("/lobby", WebSocketHandler(lobbyHub))
	return mux
}
