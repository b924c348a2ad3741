package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startManager(t *testing.T, maxConn int) (*Manager, *httptest.Server) {
	t.Helper()

	m := NewManager(maxConn, time.Second, time.Minute, 30*time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(r.URL.Query().Get("id"), r.URL.Query().Get("user"), conn, m)
		m.Register <- client
		go client.WritePump()
		go client.ReadPump()
	}))

	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return m, srv
}

func dial(t *testing.T, srv *httptest.Server, id, user string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?id=" + id + "&user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) *Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return &msg
}

func TestManager_NotifyNotesChanged(t *testing.T) {
	m, srv := startManager(t, 5)

	ann1 := dial(t, srv, "c1", "ann")
	ann2 := dial(t, srv, "c2", "ann")
	bob := dial(t, srv, "c3", "bob")

	require.Eventually(t, func() bool {
		return m.GetUserConnections("ann") == 2 && m.GetUserConnections("bob") == 1
	}, 2*time.Second, 10*time.Millisecond)

	m.NotifyNotesChanged("ann", "update")

	assert.Equal(t, TypeNotesChanged, readMessage(t, ann1).Type)
	assert.Equal(t, TypeNotesChanged, readMessage(t, ann2).Type)

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := bob.ReadMessage()
	assert.Error(t, err, "other users must not be notified")
}

func TestManager_PingPong(t *testing.T) {
	m, srv := startManager(t, 5)
	conn := dial(t, srv, "c1", "ann")

	require.Eventually(t, func() bool { return m.GetUserConnections("ann") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(&Message{Type: TypePing}))
	assert.Equal(t, TypePong, readMessage(t, conn).Type)
}

func TestManager_MaxConnectionsPerUser(t *testing.T) {
	m, srv := startManager(t, 1)

	dial(t, srv, "c1", "ann")
	require.Eventually(t, func() bool { return m.GetUserConnections("ann") == 1 }, 2*time.Second, 10*time.Millisecond)

	extra := dial(t, srv, "c2", "ann")
	require.NoError(t, extra.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := extra.ReadMessage()
	assert.Error(t, err, "connection over the limit should be closed")
	assert.Equal(t, 1, m.GetUserConnections("ann"))
}

func TestManager_UnregisterOnDisconnect(t *testing.T) {
	m, srv := startManager(t, 5)

	conn := dial(t, srv, "c1", "ann")
	require.Eventually(t, func() bool { return m.GetUserConnections("ann") == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return m.GetUserConnections("ann") == 0 }, 2*time.Second, 10*time.Millisecond)
}
