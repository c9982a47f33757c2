package services

import (
	"context"
	"net/http"
	"sync"
	"time"

	"sweepnspect/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Broadcaster 向在线看板推送事件，不等待、不保证送达
type Broadcaster interface {
	Broadcast(eventType string, data interface{})
}

// DashboardMessage 推送给看板的消息
type DashboardMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type DashboardClient struct {
	ID   string
	Conn *websocket.Conn
	Send chan DashboardMessage
	Hub  *DashboardHub
}

// DashboardHub 看板 websocket 连接管理
type DashboardHub struct {
	clients    map[string]*DashboardClient
	broadcast  chan DashboardMessage
	register   chan *DashboardClient
	unregister chan *DashboardClient
	done       chan struct{}
	mutex      sync.RWMutex
	upgrader   websocket.Upgrader
	logger     *logrus.Logger
}

func NewDashboardHub(logger *logrus.Logger) *DashboardHub {
	if logger == nil {
		logger = logrus.New()
	}
	return &DashboardHub{
		clients:    make(map[string]*DashboardClient),
		broadcast:  make(chan DashboardMessage, 256),
		register:   make(chan *DashboardClient),
		unregister: make(chan *DashboardClient),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 看板与 API 同源部署，CORS 由 gin 中间件负责
			},
		},
		logger: logger,
	}
}

// Run 事件循环，ctx 取消后关闭所有连接
func (h *DashboardHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for id, client := range h.clients {
				close(client.Send)
				delete(h.clients, id)
			}
			metrics.DashboardClients.Set(0)
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client.ID] = client
			metrics.DashboardClients.Set(float64(len(h.clients)))
			h.mutex.Unlock()
			h.logger.Infof("Dashboard client %s connected", client.ID)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
				h.logger.Infof("Dashboard client %s disconnected", client.ID)
			}
			metrics.DashboardClients.Set(float64(len(h.clients)))
			h.mutex.Unlock()

		case message := <-h.broadcast:
			h.mutex.Lock()
			for id, client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// 慢客户端直接断开
					close(client.Send)
					delete(h.clients, id)
				}
			}
			metrics.DashboardClients.Set(float64(len(h.clients)))
			h.mutex.Unlock()
		}
	}
}

// Broadcast 入队后立即返回，队列满时丢弃
func (h *DashboardHub) Broadcast(eventType string, data interface{}) {
	msg := DashboardMessage{Type: eventType, Data: data, Timestamp: time.Now()}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warnf("Dashboard broadcast queue full, dropping %s", eventType)
	}
}

func (h *DashboardHub) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &DashboardClient{
		ID:   uuid.NewString(),
		Conn: conn,
		Send: make(chan DashboardMessage, 64),
		Hub:  h,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *DashboardHub) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// 看板只读，客户端消息仅用于保活
func (c *DashboardClient) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Errorf("WebSocket error: %v", err)
			}
			break
		}
	}
}

func (c *DashboardClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(message); err != nil {
				c.Hub.logger.Errorf("WriteJSON error: %v", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
