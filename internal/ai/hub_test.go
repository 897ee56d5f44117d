package ai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/auth"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResponder struct {
	mu    sync.Mutex
	calls []string
	users []*int64
	err   error
}

func (f *fakeResponder) Chat(_ context.Context, userID *int64, role, message string) (Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, role+"|"+message)
	f.users = append(f.users, userID)
	if f.err != nil {
		return Reply{}, f.err
	}
	return Reply{Response: "echo " + message, TokensUsed: 3}, nil
}

func startHub(t *testing.T, r Responder, session *auth.Session, opts ...func(*Hub)) (*Hub, string, context.CancelFunc) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub(r, nil, logger.Discard())
	hub.CheckEvery = 10 * time.Millisecond
	for _, o := range opts {
		o(hub)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/ws/chat", func(c *gin.Context) {
		if session != nil {
			auth.SetSession(c, *session)
		}
		hub.ServeWs(c)
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	t.Cleanup(cancel)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat", cancel
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestHubAnswersFrames(t *testing.T) {
	responder := &fakeResponder{}
	hub, url, _ := startHub(t, responder, &auth.Session{UserID: 4, Roles: []string{"User"}})
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "nhà ở Đà Nẵng?"}))
	var got outbound
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, outbound{Type: "reply", Response: "echo nhà ở Đà Nẵng?", TokensUsed: 3}, got)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("plain text")))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "echo plain text", got.Response)

	responder.mu.Lock()
	assert.Equal(t, []string{"User|nhà ở Đà Nẵng?", "User|plain text"}, responder.calls)
	require.NotNil(t, responder.users[0])
	assert.Equal(t, int64(4), *responder.users[0])
	responder.mu.Unlock()
	assert.Equal(t, 1, hub.Count())
}

func TestHubGuestAndErrors(t *testing.T) {
	responder := &fakeResponder{err: errors.New("boom")}
	_, url, _ := startHub(t, responder, nil)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "   "}))
	var got outbound
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "error", got.Type)
	assert.Equal(t, "Message cannot be empty", got.Error)

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "hi"}))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "error", got.Type)

	responder.mu.Lock()
	assert.Equal(t, []string{"Guest|hi"}, responder.calls)
	assert.Nil(t, responder.users[0])
	responder.mu.Unlock()
}

func TestHubClosesInactiveConnections(t *testing.T) {
	hub, url, _ := startHub(t, &fakeResponder{}, nil, func(h *Hub) { h.MaxInactivity = 20 * time.Millisecond })
	conn := dial(t, url)

	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr), "got %v", err)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubClosesIdleConnectionThatStillAnswersPings(t *testing.T) {
	hub, url, _ := startHub(t, &fakeResponder{}, nil, func(h *Hub) {
		h.MaxInactivity = 100 * time.Millisecond
		h.PingEvery = 10 * time.Millisecond
	})
	conn := dial(t, url)

	var pings atomic.Int32
	conn.SetPingHandler(func(data string) error {
		pings.Add(1)
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr), "got %v", err)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.GreaterOrEqual(t, pings.Load(), int32(2))
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubShutdownRefusesNewClients(t *testing.T) {
	hub, url, cancel := startHub(t, &fakeResponder{}, nil)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 5*time.Millisecond)

	late := dial(t, url)
	_, _, err = late.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://homelengo.vn"})
	req := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
	assert.True(t, check(req), "no Origin header")

	req.Header.Set("Origin", "https://homelengo.vn")
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
}
