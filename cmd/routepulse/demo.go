package main

import (
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"time"
)

// registerDemo mounts the sample routes whose traffic the middleware records.
func registerDemo(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/users", func(w http.ResponseWriter, r *http.Request) {
		if !pause(r, 200*time.Millisecond) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": []string{"Alice", "Bob", "Charlie"}})
	})

	mux.HandleFunc("GET /api/orders", func(w http.ResponseWriter, r *http.Request) {
		if !pause(r, 150*time.Millisecond) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"orders": []map[string]int{{"id": 1, "total": 100}}})
	})

	mux.HandleFunc("POST /api/auth", func(w http.ResponseWriter, r *http.Request) {
		if rand.Float64() > 0.8 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		if !pause(r, 300*time.Millisecond) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": "abc123"})
	})
}

// pause sleeps a random duration below max. It returns false when the
// client went away first.
func pause(r *http.Request, max time.Duration) bool {
	t := time.NewTimer(rand.N(max))
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.Context().Done():
		return false
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
