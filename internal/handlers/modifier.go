// internal/handlers/modifier.go
package handlers

import (
	"encoding/json"
	"net/http"
)

// ListModifiersHandler returns the gameplay modifiers clients may request
// in a join message.
func ListModifiersHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.Registry.List())
	}
}
