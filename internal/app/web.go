package app

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/location_recorder/internal/recorder"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// NewWebMux exposes the running session:
//
//	GET /api/session  recorder status
//	GET /api/latest   most recent sample, 503 until there is one
//	GET /ws           status pushed after every flush
func NewWebMux(rec *recorder.Recorder, hub *statusHub) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/session", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, rec.Status())
	})

	mux.HandleFunc("GET /api/latest", func(w http.ResponseWriter, r *http.Request) {
		s, ok := rec.Latest()
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, s)
	})

	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}
		c := hub.add(conn, rec.Status())
		defer hub.remove(c)

		// read until the client goes away; incoming messages are ignored
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("json encode error: %v", err)
	}
}
