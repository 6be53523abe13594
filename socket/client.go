package socket

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"codocs/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // full-text snapshots
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The editor is served from a different origin in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one websocket connection. It may be subscribed to several rooms.
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// ServeWs upgrades the request and starts the connection's pumps. A docId
// query parameter joins that room right away.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	client := &Client{
		ID:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	if !hub.Register(client) {
		conn.Close()
		return
	}
	logger.Sugar.Debugf("Client %s connected from %s", client.ID, r.RemoteAddr)

	go client.writePump()
	go client.readPump()

	if docID := strings.TrimSpace(r.URL.Query().Get("docId")); docID != "" {
		hub.Join(client, docID)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		logger.Sugar.Debugf("Client %s disconnected", c.ID)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Sugar.Warnf("Client %s sent malformed frame: %v", c.ID, err)
			c.hub.sendDirect(c, errorFrame("Malformed message"))
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg Message) {
	switch msg.Event {
	case JoinDocumentEvent:
		docID := parseDocID(msg.Data)
		if docID == "" {
			c.hub.sendDirect(c, errorFrame("docId is required"))
			return
		}
		c.hub.Join(c, docID)

	case EditEvent:
		var p EditPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil || strings.TrimSpace(p.DocID) == "" {
			c.hub.sendDirect(c, errorFrame("edit requires docId and content"))
			return
		}
		frame, err := encode(UpdateTextEvent, p.Content)
		if err != nil {
			c.hub.sendDirect(c, errorFrame("Failed to encode edit"))
			return
		}
		c.hub.BroadcastEdit(c, p.DocID, p.Content, frame)

	case BoldEvent, ItalicEvent, UnderlineEvent:
		var p StylePayload
		if err := json.Unmarshal(msg.Data, &p); err != nil || strings.TrimSpace(p.DocID) == "" {
			c.hub.sendDirect(c, errorFrame(msg.Event+" requires docId and a boolean content"))
			return
		}
		frame, err := encode(styleEvents[msg.Event], p.Content)
		if err != nil {
			c.hub.sendDirect(c, errorFrame("Failed to encode style"))
			return
		}
		c.hub.Broadcast(c, p.DocID, frame)

	default:
		c.hub.sendDirect(c, errorFrame("Unknown event: "+msg.Event))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return // Connection is dead
			}
		}
	}
}
