package handlers

import (
	"errors"
	"net/http"

	"sweepnspect/internal/models"
	"sweepnspect/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// WebhookHandler 渠道 webhook（Tawk、Facebook、短信、在线聊天）
type WebhookHandler struct {
	router *services.ChannelRouter
	logger *logrus.Logger
}

func NewWebhookHandler(router *services.ChannelRouter, logger *logrus.Logger) *WebhookHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &WebhookHandler{router: router, logger: logger}
}

// ChannelWebhookRequest 统一后的渠道消息
type ChannelWebhookRequest struct {
	ID       string                 `json:"id"`
	From     string                 `json:"from"`
	Name     string                 `json:"name"`
	Text     string                 `json:"text" binding:"required"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Receive POST /api/webhooks/:channel
func (h *WebhookHandler) Receive(c *gin.Context) {
	var req ChannelWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}

	msg, err := h.router.Route(c.Request.Context(), models.ChannelMessage{
		ID:       req.ID,
		Channel:  c.Param("channel"),
		From:     req.From,
		Name:     req.Name,
		Text:     req.Text,
		Metadata: req.Metadata,
	})
	if errors.Is(err, services.ErrUnknownChannel) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Unknown channel", Message: err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid message", Message: err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, msg)
}

// Stats GET /api/webhooks/stats
func (h *WebhookHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.router.Stats())
}

func RegisterWebhookRoutes(r *gin.RouterGroup, h *WebhookHandler) {
	webhooks := r.Group("/webhooks")
	{
		webhooks.GET("/stats", h.Stats)
		webhooks.POST("/:channel", h.Receive)
	}
}
