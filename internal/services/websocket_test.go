package services

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardHub_BroadcastToClient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewDashboardHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", hub.HandleWebSocket)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Broadcast("alert", map[string]interface{}{"id": "alert-1"})

	var msg DashboardMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "alert", msg.Type)
	assert.Equal(t, "alert-1", msg.Data.(map[string]interface{})["id"])
}

func TestDashboardHub_BroadcastNeverBlocks(t *testing.T) {
	hub := NewDashboardHub(nil)
	// 未启动 Run，队列写满后应直接丢弃
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Broadcast("activity", i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked")
	}
}
