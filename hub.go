package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client represents one connected UI over WebSocket.
type Client struct {
	conn    *websocket.Conn
	id      string
	writeMu sync.Mutex // Serialize writes to WebSocket (required by gorilla/websocket)
}

// Hub fans the reader's snapshots, decoded events and action statuses out to
// every connected UI.
type Hub struct {
	clients    map[*websocket.Conn]*Client
	broadcast  chan []byte
	register   chan *Client
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	done       chan struct{}
	wg         sync.WaitGroup
}

// wsEnvelope is the frame format on the wire: a type tag plus one payload.
type wsEnvelope struct {
	Type     string          `json:"type"` // "snapshot", "status", "event", "story"
	Snapshot *ChainSnapshot  `json:"snapshot,omitempty"`
	Status   *Status         `json:"status,omitempty"`
	Event    json.RawMessage `json:"event,omitempty"`
	Story    string          `json:"story,omitempty"`
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn, 64),
		done:       make(chan struct{}),
	}
}

// stop signals the hub goroutine to exit and waits for it to finish
func (h *Hub) stop() {
	close(h.done)
	h.wg.Wait()
}

func (h *Hub) run() {
	h.wg.Add(1)
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client %s connected. Total: %d", client.id, total)

		case conn := <-h.unregister:
			h.mu.Lock()
			if client, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				DebugLog("hub.unregister", "Client %s disconnected", client.id)
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client disconnected. Total: %d", total)

		case message := <-h.broadcast:
			var dead []*websocket.Conn
			h.mu.RLock()
			for conn, client := range h.clients {
				// Serialize writes to each connection
				client.writeMu.Lock()
				err := conn.WriteMessage(websocket.TextMessage, message)
				client.writeMu.Unlock()

				if err != nil {
					log.Printf("WebSocket write error: %v", err)
					dead = append(dead, conn)
				}
			}
			h.mu.RUnlock()

			// Evict failed connections right away instead of waiting for
			// their read loops to notice.
			for _, conn := range dead {
				h.mu.Lock()
				if client, ok := h.clients[conn]; ok {
					delete(h.clients, conn)
					conn.Close()
					DebugLog("hub.evict", "Client %s dropped after write error", client.id)
				}
				h.mu.Unlock()
			}
		}
	}
}

// send marshals and broadcasts one envelope; drops it when the hub is
// backed up rather than blocking the caller.
func (h *Hub) send(env wsEnvelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		log.Printf("Hub: marshal %s envelope: %v", env.Type, err)
		return
	}
	LogWSMessage("OUT", env.Type, string(payload))
	select {
	case h.broadcast <- payload:
	case <-h.done:
	default:
		log.Printf("Hub: dropping %s frame, broadcast queue full", env.Type)
	}
}

// SendSnapshot pushes a fresh chain snapshot to every UI.
func (h *Hub) SendSnapshot(snap *ChainSnapshot) {
	h.send(wsEnvelope{Type: "snapshot", Snapshot: snap})
}

// SendStory streams a chunk of narrator output.
func (h *Hub) SendStory(text string) {
	h.send(wsEnvelope{Type: "story", Story: text})
}

// SendEvent forwards a decoded contract event.
func (h *Hub) SendEvent(ev GameEvent) {
	payload, err := json.Marshal(map[string]interface{}{
		"kind":       ev.Kind,
		"player":     ev.Player,
		"seat":       ev.Seat,
		"faction":    ev.Faction,
		"actionType": ev.ActionType,
	})
	if err != nil {
		log.Printf("Hub: marshal event: %v", err)
		return
	}
	h.send(wsEnvelope{Type: "event", Event: payload})
}

// handleWebSocket upgrades a UI connection and parks it in the hub. Inbound
// frames are ignored: actions arrive over the HTTP API, the socket is a
// one-way state feed.
func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var upgrader = websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{conn: conn, id: uuid.NewString()}
	h.register <- client

	go func() {
		defer func() {
			h.unregister <- conn
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}
