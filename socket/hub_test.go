package socket

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codocs/internal/autosave"
	"codocs/internal/document/model"
	docrepo "codocs/internal/document/repository"
	docservice "codocs/internal/document/service"
	userrepo "codocs/internal/user/repository"
	userservice "codocs/internal/user/service"
	"codocs/pkg/apperror"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type offlineNames struct{}

func (offlineNames) Generate(context.Context) (string, error) {
	return "", apperror.Upstream("call namegen", errors.New("unreachable"))
}

type testEnv struct {
	hub   *Hub
	docs  *docservice.DocumentService
	store *docrepo.MemoryRepository
	wsURL string
}

func newTestEnv(t *testing.T, delay time.Duration) *testEnv {
	t.Helper()
	store := docrepo.NewMemoryRepository()
	users := userservice.NewUserService(userrepo.NewMemoryRepository(), offlineNames{})
	docs := docservice.NewDocumentService(store, users)
	saver := autosave.New(docs, delay)

	hub := NewHub(docs, saver)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	t.Cleanup(func() {
		server.Close()
		cancel()
		saver.Close(context.Background())
	})

	return &testEnv{
		hub:   hub,
		docs:  docs,
		store: store,
		wsURL: "ws" + strings.TrimPrefix(server.URL, "http") + "/ws",
	}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	frame, err := json.Marshal(Message{Event: event, Data: raw})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

// Helper function to read messages from a WebSocket connection with a timeout.
func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	var msg Message
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, p, err := conn.ReadMessage()
	require.NoError(t, err, "Failed to read message from WebSocket")
	require.NoError(t, json.Unmarshal(p, &msg), "Failed to unmarshal Message JSON")
	return msg
}

// expectSilence asserts nothing arrives for a while. A timed-out gorilla
// connection cannot be read again, so call it last for conn.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, p, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame: %s", p)
	var netErr net.Error
	require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "expected timeout, got %v", err)
}

func joinAndLoad(t *testing.T, conn *websocket.Conn, docID string) model.Snapshot {
	t.Helper()
	send(t, conn, JoinDocumentEvent, docID)
	msg := readMessage(t, conn)
	require.Equal(t, LoadDocumentEvent, msg.Event, "data: %s", msg.Data)
	var snap model.Snapshot
	require.NoError(t, json.Unmarshal(msg.Data, &snap))
	return snap
}

func TestEditRoundTrip(t *testing.T) {
	env := newTestEnv(t, 100*time.Millisecond)
	ctx := context.Background()

	u1, docID, err := env.docs.CreateDocument(ctx, "")
	require.NoError(t, err)
	u2, _, err := env.docs.JoinDocument(ctx, model.JoinDocRequest{DocID: docID})
	require.NoError(t, err)

	conn1 := env.dial(t)
	conn2 := env.dial(t)

	snap := joinAndLoad(t, conn1, docID)
	assert.Equal(t, "", snap.Content)
	require.Len(t, snap.Users, 2)
	assert.Equal(t, u1.Username, snap.Users[0].Username)
	assert.Equal(t, u2.Avatar, snap.Users[1].Avatar)
	joinAndLoad(t, conn2, docID)

	send(t, conn1, EditEvent, EditPayload{DocID: docID, Content: "hello"})

	msg := readMessage(t, conn2)
	assert.Equal(t, UpdateTextEvent, msg.Event)
	var text string
	require.NoError(t, json.Unmarshal(msg.Data, &text))
	assert.Equal(t, "hello", text)

	// The sender never gets its own echo; the joiner's snapshot was not broadcast either.
	expectSilence(t, conn1)

	require.Eventually(t, func() bool {
		doc, err := env.store.FindByID(ctx, docID)
		return err == nil && doc.Content == "hello"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStyleToggles(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	_, docID, err := env.docs.CreateDocument(context.Background(), "")
	require.NoError(t, err)

	conn1 := env.dial(t)
	conn2 := env.dial(t)
	joinAndLoad(t, conn1, docID)
	joinAndLoad(t, conn2, docID)

	send(t, conn1, BoldEvent, StylePayload{DocID: docID, Content: true})
	send(t, conn1, ItalicEvent, StylePayload{DocID: docID, Content: true})
	send(t, conn2, UnderlineEvent, StylePayload{DocID: docID, Content: true})
	send(t, conn1, BoldEvent, StylePayload{DocID: docID, Content: false})

	want := []struct {
		event string
		value bool
	}{
		{SetBoldEvent, true},
		{SetItalicEvent, true},
		{SetBoldEvent, false},
	}
	for _, w := range want {
		msg := readMessage(t, conn2)
		assert.Equal(t, w.event, msg.Event)
		var v bool
		require.NoError(t, json.Unmarshal(msg.Data, &v))
		assert.Equal(t, w.value, v)
	}

	msg := readMessage(t, conn1)
	assert.Equal(t, SetUnderlineEvent, msg.Event)
	assert.JSONEq(t, "true", string(msg.Data))
}

func TestRoomsAreIsolated(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	_, docA, err := env.docs.CreateDocument(ctx, "")
	require.NoError(t, err)
	_, docB, err := env.docs.CreateDocument(ctx, "")
	require.NoError(t, err)

	connA1 := env.dial(t)
	connA2 := env.dial(t)
	connB := env.dial(t)
	joinAndLoad(t, connA1, docA)
	joinAndLoad(t, connA2, docA)
	joinAndLoad(t, connB, docB)

	send(t, connA1, EditEvent, EditPayload{DocID: docA, Content: "only for A"})
	assert.Equal(t, UpdateTextEvent, readMessage(t, connA2).Event)
	expectSilence(t, connB)
}

func TestRejoinDoesNotDuplicateDelivery(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	_, docID, err := env.docs.CreateDocument(context.Background(), "")
	require.NoError(t, err)

	conn1 := env.dial(t)
	conn2 := env.dial(t)
	joinAndLoad(t, conn1, docID)
	joinAndLoad(t, conn2, docID)
	joinAndLoad(t, conn2, docID)
	assert.Equal(t, 2, env.hub.RoomSize(docID))

	send(t, conn1, EditEvent, EditPayload{DocID: docID, Content: "once"})
	assert.Equal(t, UpdateTextEvent, readMessage(t, conn2).Event)
	expectSilence(t, conn2)
}

func TestJoinUnknownDocumentSendsScopedError(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	_, docID, err := env.docs.CreateDocument(context.Background(), "")
	require.NoError(t, err)

	bystander := env.dial(t)
	joinAndLoad(t, bystander, docID)

	conn := env.dial(t)
	send(t, conn, JoinDocumentEvent, "no-such-doc")
	msg := readMessage(t, conn)
	assert.Equal(t, ErrorEvent, msg.Event)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, "Document not found", payload.Message)

	// The connection stays usable.
	joinAndLoad(t, conn, docID)
	expectSilence(t, bystander)
}

func TestMalformedFramesAreReportedToSender(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	conn := env.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, ErrorEvent, readMessage(t, conn).Event)

	send(t, conn, EditEvent, map[string]string{"content": "no doc id"})
	assert.Equal(t, ErrorEvent, readMessage(t, conn).Event)

	send(t, conn, BoldEvent, map[string]string{"docId": "d", "content": "yes"})
	assert.Equal(t, ErrorEvent, readMessage(t, conn).Event)

	send(t, conn, "cursor", map[string]int{"pos": 3})
	assert.Equal(t, ErrorEvent, readMessage(t, conn).Event)

	send(t, conn, JoinDocumentEvent, "")
	assert.Equal(t, ErrorEvent, readMessage(t, conn).Event)
}

func TestDisconnectLeavesRoom(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	_, docID, err := env.docs.CreateDocument(context.Background(), "")
	require.NoError(t, err)

	conn1 := env.dial(t)
	conn2 := env.dial(t)
	joinAndLoad(t, conn1, docID)
	joinAndLoad(t, conn2, docID)
	require.Equal(t, 2, env.hub.RoomSize(docID))

	conn2.Close()
	require.Eventually(t, func() bool { return env.hub.RoomSize(docID) == 1 }, time.Second, 10*time.Millisecond)

	// The remaining member keeps editing without trouble.
	send(t, conn1, EditEvent, EditPayload{DocID: docID, Content: "alone"})
	expectSilence(t, conn1)

	conn1.Close()
	require.Eventually(t, func() bool { return env.hub.RoomSize(docID) == 0 }, time.Second, 10*time.Millisecond)
}

func TestQueryParamJoinsRoom(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	_, docID, err := env.docs.CreateDocument(context.Background(), "")
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(env.wsURL+"?docId="+docID, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, LoadDocumentEvent, readMessage(t, conn).Event)
}

func TestSlowClientIsEvicted(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	_, docID, err := env.docs.CreateDocument(context.Background(), "")
	require.NoError(t, err)

	fast := env.dial(t)
	joinAndLoad(t, fast, docID)

	// No write pump drains this client; its single slot is taken by the snapshot.
	slow := &Client{ID: "slow", hub: env.hub, send: make(chan []byte, 1)}
	require.True(t, env.hub.Register(slow))
	env.hub.Join(slow, docID)
	require.Eventually(t, func() bool { return len(slow.send) == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, 2, env.hub.RoomSize(docID))

	send(t, fast, EditEvent, EditPayload{DocID: docID, Content: "too fast"})
	require.Eventually(t, func() bool { return env.hub.RoomSize(docID) == 1 }, time.Second, 10*time.Millisecond)

	frame, ok := <-slow.send
	require.True(t, ok)
	assert.Contains(t, string(frame), LoadDocumentEvent)
	_, ok = <-slow.send
	assert.False(t, ok, "evicted client's send channel should be closed")

	// The loop is still serving the remaining member.
	peer := env.dial(t)
	joinAndLoad(t, peer, docID)
	send(t, peer, EditEvent, EditPayload{DocID: docID, Content: "still live"})
	msg := readMessage(t, fast)
	assert.Equal(t, UpdateTextEvent, msg.Event)
	assert.JSONEq(t, `"still live"`, string(msg.Data))
}
