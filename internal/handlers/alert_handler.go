package handlers

import (
	"errors"
	"net/http"

	"sweepnspect/internal/models"
	"sweepnspect/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AlertHandler 告警接口
type AlertHandler struct {
	router *services.AlertRouter
	logger *logrus.Logger
}

func NewAlertHandler(router *services.AlertRouter, logger *logrus.Logger) *AlertHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &AlertHandler{router: router, logger: logger}
}

// SendAlertRequest 手动发送告警
type SendAlertRequest struct {
	Type     string                 `json:"type" binding:"required"`
	Severity models.Severity        `json:"severity" binding:"required"`
	Message  string                 `json:"message" binding:"required"`
	Data     map[string]interface{} `json:"data"`
}

// List GET /api/alerts?limit=50
func (h *AlertHandler) List(c *gin.Context) {
	alerts, err := h.router.GetAlerts(c.Request.Context(), queryLimit(c, 50))
	if err != nil {
		h.logger.Errorf("Failed to read alerts: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to read alerts", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, alerts)
}

// Send POST /api/alerts
func (h *AlertHandler) Send(c *gin.Context) {
	var req SendAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}
	if !req.Severity.Valid() {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid severity", Message: string(req.Severity)})
		return
	}

	alert, err := h.router.Send(c.Request.Context(), req.Type, req.Severity, req.Message, req.Data)
	if err != nil {
		h.logger.Errorf("Failed to send alert: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to send alert", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, alert)
}

// Acknowledge POST /api/alerts/:id/ack
func (h *AlertHandler) Acknowledge(c *gin.Context) {
	alert, err := h.router.Acknowledge(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Errorf("Failed to acknowledge alert: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to acknowledge alert", Message: err.Error()})
		return
	}
	if alert == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Alert not found", Message: c.Param("id")})
		return
	}
	c.JSON(http.StatusOK, alert)
}

// AcknowledgeAll POST /api/alerts/ack-all
func (h *AlertHandler) AcknowledgeAll(c *gin.Context) {
	n, err := h.router.AcknowledgeAll(c.Request.Context())
	if err != nil {
		h.logger.Errorf("Failed to acknowledge alerts: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to acknowledge alerts", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Alerts acknowledged", Data: gin.H{"count": n}})
}

// GetConfig GET /api/alerts/config
func (h *AlertHandler) GetConfig(c *gin.Context) {
	cfg, err := h.router.Config(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to read alert config", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// UpdateConfig PUT /api/alerts/config
func (h *AlertHandler) UpdateConfig(c *gin.Context) {
	var cfg models.AlertConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}
	saved, err := h.router.UpdateConfig(c.Request.Context(), cfg)
	if errors.Is(err, services.ErrInvalidAlertConfig) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid alert config", Message: err.Error()})
		return
	}
	if err != nil {
		h.logger.Errorf("Failed to save alert config: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to save alert config", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, saved)
}

// RegisterAlertRoutes 注册告警路由
func RegisterAlertRoutes(r *gin.RouterGroup, h *AlertHandler) {
	alerts := r.Group("/alerts")
	{
		alerts.GET("", h.List)
		alerts.POST("", h.Send)
		alerts.POST("/ack-all", h.AcknowledgeAll)
		alerts.GET("/config", h.GetConfig)
		alerts.PUT("/config", h.UpdateConfig)
		alerts.POST("/:id/ack", h.Acknowledge)
	}
}
