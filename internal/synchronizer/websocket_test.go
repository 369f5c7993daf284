package synchronizer

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/revgraph/internal/ir"
	"github.com/roach88/revgraph/internal/syncqueue"
)

func readMessage(t *testing.T, conn *websocket.Conn) ir.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, mt)
	m, err := ir.DecodeMessage(string(data))
	require.NoError(t, err)
	return m
}

func TestWebSocketHub_EndToEnd(t *testing.T) {
	s := openStore(t)
	q := syncqueue.New()
	srv := NewServer(s, q, WithServerLogger(discardLogger()))
	hub := NewWebSocketHub(
		WithIDGenerator(NewFixedGenerator("c1", "c2")),
		WithHubLogger(discardLogger()),
	)
	relay := NewRelay(srv, q, hub, WithRelayLogger(discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx, 20*time.Millisecond) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	ts := httptest.NewServer(hub.Handler(relay))
	t.Cleanup(ts.Close)
	url := "ws" + strings.TrimPrefix(ts.URL, "http")

	c1, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer c1.Close()
	assert.Equal(t, ir.MessageSetup, readMessage(t, c1).Type)

	c2, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer c2.Close()
	assert.Equal(t, ir.MessageSetup, readMessage(t, c2).Type)

	require.NoError(t, c1.WriteMessage(websocket.TextMessage, []byte(commitText(t, ir.None, 7))))

	for _, conn := range []*websocket.Conn{c1, c2} {
		push := readMessage(t, conn)
		assert.Equal(t, ir.MessagePush, push.Type)
		require.Len(t, push.Revisions, 1)
		assert.Equal(t, "c1", push.Revisions[0].Origin)
		assert.Equal(t, ir.KindRemote, push.Revisions[0].Kind)
	}

	// A commit by another writer reaches clients on the next tick.
	_, err = s.Append(context.Background(), setA(1, 8))
	require.NoError(t, err)
	push := readMessage(t, c2)
	assert.Equal(t, ir.RevisionNumber(2), push.Revisions[0].Number)
}

func TestWebSocketHub_SendUnknownClient(t *testing.T) {
	hub := NewWebSocketHub(WithHubLogger(discardLogger()))

	err := hub.Send(context.Background(), "nobody", "{}")
	assert.True(t, errors.Is(err, ErrClientGone))
	assert.Equal(t, 0, hub.Connected())
	assert.NoError(t, hub.Close())
}
