package socket

import (
	"context"
	"errors"
	"time"

	"codocs/internal/document/model"
	"codocs/pkg/apperror"
	"codocs/pkg/logger"

	"go.uber.org/zap"
)

const snapshotTimeout = 10 * time.Second

// Directory loads the initial state of a room.
type Directory interface {
	Snapshot(ctx context.Context, docID string) (*model.Snapshot, error)
}

// Autosaver receives every edit so the latest text is eventually persisted.
type Autosaver interface {
	Touch(docID, content string)
	Forget(docID string)
}

type subscription struct {
	client *Client
	docID  string
}

// roomEvent is an already-encoded frame for every member of docID except sender.
type roomEvent struct {
	sender  *Client
	docID   string
	frame   []byte
	edit    bool
	content string
}

type directMessage struct {
	client *Client
	frame  []byte
}

// Hub owns all room membership. Every mutation and fan-out runs on the Run
// goroutine, so events on a room are delivered in the order the hub received them.
type Hub struct {
	rooms   map[string]map[*Client]bool
	clients map[*Client]map[string]bool

	register   chan *Client
	unregister chan *Client
	subscribe  chan subscription
	broadcast  chan roomEvent
	direct     chan directMessage
	inspect    chan func()
	done       chan struct{}

	directory Directory
	autosave  Autosaver
}

func NewHub(directory Directory, autosave Autosaver) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		clients:    make(map[*Client]map[string]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		subscribe:  make(chan subscription),
		broadcast:  make(chan roomEvent),
		direct:     make(chan directMessage),
		inspect:    make(chan func()),
		done:       make(chan struct{}),
		directory:  directory,
		autosave:   autosave,
	}
}

// Run processes hub events until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.removeClient(client)
			}
			logger.Sugar.Info("Hub stopped")
			return

		case client := <-h.register:
			h.clients[client] = make(map[string]bool)

		case client := <-h.unregister:
			h.removeClient(client)

		case sub := <-h.subscribe:
			topics, ok := h.clients[sub.client]
			if !ok {
				continue
			}
			if h.rooms[sub.docID] == nil {
				h.rooms[sub.docID] = make(map[*Client]bool)
			}
			h.rooms[sub.docID][sub.client] = true
			topics[sub.docID] = true
			logger.Log.Debug("Client joined room",
				zap.String("client_id", sub.client.ID),
				zap.String("doc_id", sub.docID),
				zap.Int("members", len(h.rooms[sub.docID])))

			// Storage is slow; the snapshot comes back through h.direct.
			go h.deliverSnapshot(sub.client, sub.docID)

		case ev := <-h.broadcast:
			if ev.edit && h.autosave != nil {
				h.autosave.Touch(ev.docID, ev.content)
			}
			for client := range h.rooms[ev.docID] {
				if client != ev.sender {
					h.send(client, ev.frame)
				}
			}

		case msg := <-h.direct:
			if _, ok := h.clients[msg.client]; ok {
				h.send(msg.client, msg.frame)
			}

		case fn := <-h.inspect:
			fn()
		}
	}
}

// send never blocks the loop: a client that cannot keep up is disconnected.
func (h *Hub) send(client *Client, frame []byte) {
	select {
	case client.send <- frame:
	default:
		logger.Sugar.Warnf("Client %s's send buffer is full. Unregistering.", client.ID)
		h.removeClient(client)
	}
}

func (h *Hub) removeClient(client *Client) {
	topics, ok := h.clients[client]
	if !ok {
		return
	}
	for docID := range topics {
		delete(h.rooms[docID], client)
		if len(h.rooms[docID]) == 0 {
			delete(h.rooms, docID)
			if h.autosave != nil {
				h.autosave.Forget(docID)
			}
			logger.Sugar.Infof("Closed empty room: %s", docID)
		}
	}
	delete(h.clients, client)
	close(client.send)
}

func (h *Hub) deliverSnapshot(client *Client, docID string) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	snap, err := h.directory.Snapshot(ctx, docID)
	if err != nil {
		logger.Log.Warn("Failed to load document",
			zap.String("client_id", client.ID), zap.String("doc_id", docID), zap.Error(err))
		message := "Failed to load document"
		if errors.Is(err, apperror.ErrNotFound) {
			message = "Document not found"
		}
		h.sendDirect(client, errorFrame(message))
		return
	}

	frame, err := encode(LoadDocumentEvent, snap)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling snapshot for %s: %v", docID, err)
		h.sendDirect(client, errorFrame("Failed to load document"))
		return
	}
	h.sendDirect(client, frame)
}

// The methods below are safe to call from any goroutine. They return without
// effect once the hub has stopped.

func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Join subscribes client to docID's room. Joining twice is harmless.
func (h *Hub) Join(client *Client, docID string) {
	select {
	case h.subscribe <- subscription{client: client, docID: docID}:
	case <-h.done:
	}
}

func (h *Hub) Broadcast(sender *Client, docID string, frame []byte) {
	h.publish(roomEvent{sender: sender, docID: docID, frame: frame})
}

// BroadcastEdit fans out an edit and hands its content to the autosaver.
func (h *Hub) BroadcastEdit(sender *Client, docID, content string, frame []byte) {
	h.publish(roomEvent{sender: sender, docID: docID, frame: frame, edit: true, content: content})
}

func (h *Hub) publish(ev roomEvent) {
	select {
	case h.broadcast <- ev:
	case <-h.done:
	}
}

func (h *Hub) sendDirect(client *Client, frame []byte) {
	select {
	case h.direct <- directMessage{client: client, frame: frame}:
	case <-h.done:
	}
}

// RoomSize reports how many connections are subscribed to docID.
func (h *Hub) RoomSize(docID string) int {
	result := make(chan int, 1)
	select {
	case h.inspect <- func() { result <- len(h.rooms[docID]) }:
		return <-result
	case <-h.done:
		return 0
	}
}
