package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

type Handler struct {
	hub         *Hub
	gate        *Gate
	dataDir     string
	maxUploadMB int64
}

func New(hub *Hub, gate *Gate, dataDir string, maxUploadMB int64) *Handler {
	if maxUploadMB <= 0 {
		maxUploadMB = 8
	}
	return &Handler{hub: hub, gate: gate, dataDir: dataDir, maxUploadMB: maxUploadMB}
}

// makeUpgrader builds a WebSocket upgrader that validates the Origin header.
// allowedOrigin is e.g. "https://chat.yourdomain.com". If empty, only
// same-host origins (matching the request Host header) are permitted.
func makeUpgrader(allowedOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients (curl, API tools) send no Origin — allow.
				return true
			}
			if allowedOrigin != "" {
				return origin == allowedOrigin
			}
			// Default: allow same host only (covers both http and https).
			return origin == "http://"+r.Host || origin == "https://"+r.Host
		},
	}
}

// --- Response helpers ---

func respond(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func ok(w http.ResponseWriter, data interface{}) {
	respond(w, http.StatusOK, data)
}

func errResp(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]string{"error": msg})
}

// --- WebSocket handler ---

// WebSocket upgrades the connection and starts the session lifecycle:
// connect → identify → authorize (per gate mode) → history replay → relay
// loop → disconnect.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := makeUpgrader(h.hub.allowedOrigin)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	socketID := newID()
	client := &Client{
		hub:      h.hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		socketID: socketID,
		autor:    anonTag(socketID),
	}
	// In open mode everyone is authorized the moment they connect, before
	// the read loop can see any publish.
	if h.gate.Mode() == ModeOpen {
		client.authorized = true
	}
	h.hub.register <- client
	log.Printf("[+] Nuevo socket conectado: %s (%s)", socketID, client.Autor())

	go client.writePump()
	go client.readPump()

	switch h.gate.Mode() {
	case ModeOpen:
		client.sendEvent(WSEvent{Type: "identidad", Data: map[string]string{"autor": client.Autor()}})
		client.sendEvent(WSEvent{Type: "historial", Data: h.hub.snapshotHistory()})
	case ModeSecret:
		client.sendEvent(WSEvent{Type: "identidad", Data: map[string]string{"autor": client.Autor()}})
	case ModeJoin:
		// Identity arrives with joinOk once the join event is accepted.
	}
}

// newID generates a random hex ID for socket tags and filenames
func newID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// anonTag derives the per-connection display tag. Only groups messages and
// logs; it is not a verified identity.
func anonTag(socketID string) string {
	if len(socketID) > 5 {
		socketID = socketID[:5]
	}
	return "anon-" + socketID
}
