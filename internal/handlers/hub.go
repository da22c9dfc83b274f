package handlers

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/JesusBorbon/chat-seguro/internal/history"
	"github.com/JesusBorbon/chat-seguro/internal/message"
	"github.com/JesusBorbon/chat-seguro/internal/metrics"
	"github.com/JesusBorbon/chat-seguro/internal/store"
)

// denyDelay is how long a denied socket stays open so the denial event can
// flush before the forced close.
const denyDelay = 300 * time.Millisecond

// storeTimeout bounds every durable-store call; the relay never waits on one.
const storeTimeout = 10 * time.Second

// WSEvent is the envelope for all WebSocket messages
type WSEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Client represents a single WebSocket connection
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	socketID string

	mu         sync.Mutex
	autor      string // anon tag, or the display name supplied at join
	authorized bool
	denyTimer  *time.Timer

	writeMu sync.Mutex
}

// Hub manages all active WebSocket clients and owns the relay path:
// every append+broadcast pair runs under publishMu so messages share a
// single global order. Durable writes are detached and unordered.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	gate    *Gate
	history *history.Store
	durable store.Store // nil in memory-only mode

	publishMu sync.Mutex

	allowedOrigin string // used by WS upgrader origin check
}

func NewHub(gate *Gate, hist *history.Store, durable store.Store, allowedOrigin string) *Hub {
	return &Hub{
		clients:       make(map[*Client]bool),
		broadcast:     make(chan []byte, 256),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		gate:          gate,
		history:       hist,
		durable:       durable,
		allowedOrigin: allowedOrigin,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			metrics.ConnectionsTotal.Inc()
			metrics.ConnectedClients.Inc()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				metrics.ConnectedClients.Dec()
			}
			h.mu.Unlock()
			client.stopDenyTimer()

		case data := <-h.broadcast:
			// Collect dead clients under RLock, then evict under write lock
			// to avoid a map-write-while-read-locked data race.
			h.mu.RLock()
			var dead []*Client
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					dead = append(dead, client)
				}
			}
			h.mu.RUnlock()
			if len(dead) > 0 {
				h.mu.Lock()
				for _, client := range dead {
					if _, ok := h.clients[client]; ok {
						close(client.send)
						delete(h.clients, client)
						metrics.ConnectedClients.Dec()
					}
				}
				h.mu.Unlock()
			}
		}
	}
}

// Broadcast sends an event to every connected client, authorized or not.
func (h *Hub) Broadcast(event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Println("ws marshal error:", err)
		return
	}
	h.broadcast <- data
}

// BroadcastAuthorized sends an event to the authorized group only. An
// unauthorized session never receives mensaje or reaccion-actualizada.
func (h *Hub) BroadcastAuthorized(event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Println("ws marshal error:", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.isAuthorized() {
			continue
		}
		select {
		case client.send <- data:
		default:
		}
	}
}

// Publish appends rec to the bounded history and fans it out as one
// critical section, then mirrors it to the durable store in the background.
// The ungated variant broadcasts to every socket; the gated variants only
// ever reach the authorized group.
func (h *Hub) Publish(rec message.Record) {
	h.publishMu.Lock()
	h.history.Append(rec)
	evt := WSEvent{Type: "mensaje", Data: rec}
	if h.gate.Mode() == ModeOpen {
		h.Broadcast(evt)
	} else {
		h.BroadcastAuthorized(evt)
	}
	h.publishMu.Unlock()

	metrics.MessagesRelayed.Inc()
	if h.durable != nil {
		go h.persistAppend(rec)
	}
}

// ToggleReaction applies the reaction toggle for reactor on the message with
// the given id. Disallowed emojis, blank arguments and unknown ids are all
// silent no-ops.
func (h *Hub) ToggleReaction(mensajeID, emoji, reactor string) {
	mensajeID = strings.TrimSpace(mensajeID)
	emoji = strings.TrimSpace(emoji)
	if mensajeID == "" || emoji == "" {
		return
	}

	h.publishMu.Lock()
	var updated map[string][]string
	changed := false
	found := h.history.Mutate(mensajeID, func(rec *message.Record) {
		changed = rec.ToggleReaction(emoji, reactor)
		updated = rec.Clone().Reacciones
	})
	if !found || !changed {
		h.publishMu.Unlock()
		if !found {
			log.Printf("[!] reaccion sobre mensaje desconocido: %s", mensajeID)
		}
		return
	}
	if updated == nil {
		updated = map[string][]string{}
	}
	h.BroadcastAuthorized(WSEvent{Type: "reaccion-actualizada", Data: map[string]interface{}{
		"mensajeId":  mensajeID,
		"reacciones": updated,
	}})
	h.publishMu.Unlock()

	metrics.ReactionsToggled.Inc()
	if h.durable != nil {
		go h.persistReactions(mensajeID, updated)
	}
}

// persistAppend mirrors one record into the durable store, then trims the
// collection back to the history capacity in the same call chain.
func (h *Hub) persistAppend(rec message.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := h.durable.Append(ctx, rec); err != nil {
		log.Printf("[DB] Error guardando mensaje: %v", err)
		metrics.StoreErrors.Inc()
		return
	}

	count, err := h.durable.Count(ctx)
	if err != nil {
		log.Printf("[DB] Error contando mensajes: %v", err)
		metrics.StoreErrors.Inc()
		return
	}
	if excess := count - int64(h.history.Capacity()); excess > 0 {
		if err := h.durable.DeleteOldest(ctx, excess); err != nil {
			log.Printf("[DB] Error eliminando mensajes antiguos: %v", err)
			metrics.StoreErrors.Inc()
			return
		}
		log.Printf("[DB] Eliminados %d mensajes antiguos.", excess)
	}
}

func (h *Hub) persistReactions(mensajeID string, reacciones map[string][]string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.durable.UpdateReactions(ctx, mensajeID, reacciones); err != nil {
		log.Printf("[DB] Error guardando reacciones: %v", err)
		metrics.StoreErrors.Inc()
	}
}

// snapshotHistory returns the replay sequence oldest-first: the durable
// store when configured and reachable, the in-memory buffer otherwise.
func (h *Hub) snapshotHistory() []message.Record {
	if h.durable != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		recent, err := h.durable.ListRecent(ctx, h.history.Capacity())
		if err == nil {
			// Most-recent-first internally; replay wants oldest-first.
			for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
				recent[i], recent[j] = recent[j], recent[i]
			}
			return recent
		}
		log.Printf("[DB] Error leyendo historial: %v", err)
		metrics.StoreErrors.Inc()
	}
	return h.history.Snapshot()
}

// --- Client ---

func (c *Client) Autor() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autor
}

func (c *Client) isAuthorized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authorized
}

// markAuthorized flips the session to authorized, once. Authorization is
// monotonic for the connection's lifetime; later credential events cannot
// reset it. Returns false if the session was already authorized.
func (c *Client) markAuthorized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authorized {
		return false
	}
	c.authorized = true
	if c.denyTimer != nil {
		c.denyTimer.Stop()
		c.denyTimer = nil
	}
	return true
}

// scheduleDenyClose arms the forced-close timer after a denial. A later
// successful auth or the disconnect path cancels it; re-submission in the
// meantime is permitted.
func (c *Client) scheduleDenyClose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.denyTimer != nil || c.authorized {
		return
	}
	c.denyTimer = time.AfterFunc(denyDelay, func() {
		c.conn.Close()
	})
}

func (c *Client) stopDenyTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.denyTimer != nil {
		c.denyTimer.Stop()
		c.denyTimer = nil
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.write(msg); err != nil {
			break
		}
	}
}

func (c *Client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

type rawClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		log.Printf("[-] Socket desconectado: %s (%s)", c.socketID, c.Autor())
	}()
	// Limit incoming message size to prevent memory-exhaustion DoS.
	c.conn.SetReadLimit(64 * 1024) // 64 KB per message
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var evt rawClientMessage
		if err := json.Unmarshal(msg, &evt); err != nil {
			continue
		}
		c.handleMessage(evt)
	}
}

func (c *Client) handleMessage(evt rawClientMessage) {
	switch evt.Type {

	case "auth":
		if c.hub.gate.Mode() != ModeSecret {
			return
		}
		var d struct {
			Clave string `json:"clave"`
		}
		if json.Unmarshal(evt.Data, &d) != nil {
			return
		}
		if c.isAuthorized() {
			return
		}
		if !c.hub.gate.Verify(d.Clave) {
			metrics.AuthDenials.Inc()
			log.Printf("[!] Clave incorrecta de %s", c.socketID)
			c.sendEvent(WSEvent{Type: "auth-denegado"})
			c.scheduleDenyClose()
			return
		}
		c.markAuthorized()
		c.sendEvent(WSEvent{Type: "auth-ok"})
		c.sendEvent(WSEvent{Type: "historial", Data: c.hub.snapshotHistory()})

	case "join":
		if c.hub.gate.Mode() != ModeJoin {
			return
		}
		var d struct {
			Nombre string `json:"nombre"`
			Clave  string `json:"clave"`
		}
		if json.Unmarshal(evt.Data, &d) != nil {
			return
		}
		if c.isAuthorized() {
			return
		}
		d.Nombre = strings.TrimSpace(d.Nombre)
		if d.Nombre == "" || !c.hub.gate.Verify(d.Clave) {
			metrics.AuthDenials.Inc()
			log.Printf("[!] Join rechazado para %s", c.socketID)
			// Written directly so the error reaches the wire before the
			// immediate close.
			if data, err := json.Marshal(WSEvent{Type: "joinError"}); err == nil {
				c.write(data)
			}
			c.conn.Close()
			return
		}
		c.mu.Lock()
		c.autor = d.Nombre
		c.mu.Unlock()
		c.markAuthorized()
		c.sendEvent(WSEvent{Type: "joinOk", Data: map[string]string{"autor": d.Nombre}})
		c.sendEvent(WSEvent{Type: "historial", Data: c.hub.snapshotHistory()})

	case "mensaje":
		if !c.isAuthorized() {
			log.Printf("[!] Socket no autorizado intentando mandar mensaje: %s", c.socketID)
			return
		}
		var raw message.Incoming
		if json.Unmarshal(evt.Data, &raw) != nil {
			return
		}
		rec, err := message.Normalize(raw, c.Autor())
		if err != nil {
			log.Printf("[!] Mensaje inválido de %s: %v", c.socketID, err)
			return
		}
		c.hub.Publish(rec)

	case "reaccion":
		if !c.isAuthorized() {
			log.Printf("[!] Socket no autorizado intentando reaccionar: %s", c.socketID)
			return
		}
		var d struct {
			MensajeID string `json:"mensajeId"`
			Emoji     string `json:"emoji"`
		}
		if json.Unmarshal(evt.Data, &d) != nil {
			return
		}
		c.hub.ToggleReaction(d.MensajeID, d.Emoji, c.Autor())
	}
}

func (c *Client) sendEvent(event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
