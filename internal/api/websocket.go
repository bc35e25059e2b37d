package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/truthmarkets/integrity-engine/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is enforced by the CORS middleware
	},
}

// Hub maintains the set of active websocket clients and broadcasts alert
// payloads to review dashboards.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mu        sync.Mutex
	log       zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		broadcast: make(chan []byte, 256),
		clients:   make(map[*websocket.Conn]bool),
		log:       logger.With().Str("component", "ws").Logger(),
	}
}

func (h *Hub) Run() {
	for message := range h.broadcast {
		h.mu.Lock()
		for client := range h.clients {
			// Write deadline prevents one blocked client from hanging the hub.
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				h.log.Warn().Err(err).Msg("websocket write failed, dropping client")
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mu.Unlock()
	}
}

// Broadcast queues a raw payload for all connected clients.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		h.log.Warn().Msg("broadcast buffer full, dropping message")
	}
}

// Subscribe upgrades an incoming connection and registers it with the hub.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mu.Unlock()

	h.log.Info().Int("clients", total).Msg("websocket client connected")

	// Reader loop only exists to detect disconnects.
	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// BroadcastAlert is wired as the AlertManager broadcast callback.
func BroadcastAlert(hub *Hub) func(models.Alert) {
	return func(alert models.Alert) {
		payload, err := json.Marshal(gin.H{
			"type":  "integrity_alert",
			"alert": alert,
		})
		if err != nil {
			return
		}
		hub.Broadcast(payload)
	}
}
