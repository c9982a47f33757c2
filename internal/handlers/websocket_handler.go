package handlers

import (
	"net/http"

	"sweepnspect/internal/services"

	"github.com/gin-gonic/gin"
)

// WebSocketHandler 看板实时推送
type WebSocketHandler struct {
	hub *services.DashboardHub
}

func NewWebSocketHandler(hub *services.DashboardHub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

func (h *WebSocketHandler) Connect(c *gin.Context) {
	h.hub.HandleWebSocket(c)
}

func (h *WebSocketHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"clients": h.hub.GetClientCount()},
	})
}

func RegisterWebSocketRoutes(r *gin.RouterGroup, h *WebSocketHandler) {
	r.GET("/ws", h.Connect)
	r.GET("/ws/stats", h.GetStats)
}
