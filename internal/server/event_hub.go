package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/p2e-inferno/teerex-sub003/internal/store"
)

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

// AttestationHub fans mirrored attestations out to websocket
// subscribers as they land, from both the relay and the indexer.
type AttestationHub struct {
	mu       sync.RWMutex
	clients  map[*feedClient]struct{}
	upgrader websocket.Upgrader
	logger   *log.Logger
}

func NewAttestationHub(logger *log.Logger) *AttestationHub {
	return &AttestationHub{
		clients: make(map[*feedClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

type feedMessage struct {
	UID         string     `json:"uid"`
	SchemaUID   string     `json:"schemaUid"`
	EventID     string     `json:"eventId,omitempty"`
	Attester    string     `json:"attester"`
	Recipient   string     `json:"recipient"`
	TxHash      string     `json:"txHash,omitempty"`
	BlockNumber uint64     `json:"blockNumber,omitempty"`
	IsRevoked   bool       `json:"isRevoked"`
	RevokedAt   *time.Time `json:"revokedAt,omitempty"`
}

func (h *AttestationHub) PublishAttestation(att *store.Attestation) {
	msg := feedMessage{
		UID:         att.UID,
		SchemaUID:   att.SchemaUID,
		EventID:     att.EventID,
		Attester:    att.Attester,
		Recipient:   att.Recipient,
		TxHash:      att.TxHash,
		BlockNumber: att.BlockNumber,
		IsRevoked:   att.IsRevoked,
		RevokedAt:   att.RevocationTime,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logf("marshal attestation: %v", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			go h.closeClient(client)
		}
	}
}

func (h *AttestationHub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logf("upgrade websocket: %v", err)
		return
	}
	client := &feedClient{
		conn: conn,
		send: make(chan []byte, 32),
	}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go client.writePump()
	go client.readPump(func() {
		h.closeClient(client)
	})
}

func (h *AttestationHub) Run(ctx context.Context) {
	<-ctx.Done()
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.conn.Close()
		delete(h.clients, client)
	}
}

func (h *AttestationHub) closeClient(client *feedClient) {
	h.mu.Lock()
	_, tracked := h.clients[client]
	if tracked {
		delete(h.clients, client)
	}
	h.mu.Unlock()
	if tracked {
		close(client.send)
	}
	client.conn.Close()
}

func (h *AttestationHub) logf(format string, args ...any) {
	if h.logger != nil {
		h.logger.Printf("attestationhub: "+format, args...)
	}
}

func (c *feedClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, open := <-c.send:
			if !open {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *feedClient) readPump(onClose func()) {
	defer onClose()
	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
