package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"sweepnspect/internal/services"
	"sweepnspect/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RelayPinger 中继健康探测
type RelayPinger interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler 健康检查
type HealthHandler struct {
	store   store.Store
	sms     services.SMSSender
	alerts  *services.AlertRouter
	hub     *services.DashboardHub
	relay   RelayPinger
	version string
	logger  *logrus.Logger
}

// NewHealthHandler 各依赖可为 nil，对应检查项跳过
func NewHealthHandler(st store.Store, sms services.SMSSender, alerts *services.AlertRouter, hub *services.DashboardHub, version string, logger *logrus.Logger) *HealthHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &HealthHandler{store: st, sms: sms, alerts: alerts, hub: hub, version: version, logger: logger}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]ServiceInfo `json:"services"`
	System    SystemInfo             `json:"system"`
}

// ServiceInfo 服务信息
type ServiceInfo struct {
	Status  string      `json:"status"`
	Latency string      `json:"latency,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// SystemInfo 系统信息
type SystemInfo struct {
	Uptime    string `json:"uptime"`
	GoVersion string `json:"go_version"`
}

var startTime = time.Now()

// SetRelay 接入中继健康检查，未启用中继时不调用
func (h *HealthHandler) SetRelay(p RelayPinger) {
	h.relay = p
}

// Health GET /health；存储不可用时返回 503，外部通道异常只标记 degraded
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: time.Now(),
		Services:  make(map[string]ServiceInfo),
		System: SystemInfo{
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			GoVersion: runtime.Version(),
		},
	}

	if !h.checkStore(ctx, &response) {
		response.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	h.checkSMS(&response)
	h.checkBridge(&response)
	h.checkRelay(ctx, &response)

	if h.hub != nil {
		response.Services["dashboard"] = ServiceInfo{
			Status:  "healthy",
			Details: map[string]interface{}{"clients": h.hub.GetClientCount()},
		}
	}

	c.JSON(http.StatusOK, response)
}

func (h *HealthHandler) checkStore(ctx context.Context, response *HealthResponse) bool {
	if h.store == nil {
		return true
	}
	start := time.Now()
	_, err := h.store.Load(ctx, store.CollectionAlertConfig)
	info := ServiceInfo{Status: "healthy", Latency: time.Since(start).String()}
	if err != nil {
		h.logger.Warnf("health: store check failed: %v", err)
		info.Status = "unhealthy"
		info.Error = err.Error()
	}
	response.Services["store"] = info
	return err == nil
}

func (h *HealthHandler) checkSMS(response *HealthResponse) {
	if h.sms == nil {
		return
	}
	status := "healthy"
	if !h.sms.Configured() {
		status = "not_configured"
	}
	response.Services["sms"] = ServiceInfo{Status: status}
}

func (h *HealthHandler) checkRelay(ctx context.Context, response *HealthResponse) {
	if h.relay == nil {
		return
	}
	start := time.Now()
	err := h.relay.HealthCheck(ctx)
	info := ServiceInfo{Status: "healthy", Latency: time.Since(start).String()}
	if err != nil {
		h.logger.Warnf("health: relay check failed: %v", err)
		info.Status = "unhealthy"
		info.Error = err.Error()
		response.Status = "degraded"
	}
	response.Services["relay"] = info
}

func (h *HealthHandler) checkBridge(response *HealthResponse) {
	if h.alerts == nil {
		return
	}
	stats := h.alerts.BridgeStats()
	info := ServiceInfo{Status: "healthy", Details: stats}
	if configured, _ := stats["configured"].(bool); !configured {
		info.Status = "not_configured"
	} else if h.alerts.BridgeState() == services.BreakerOpen {
		info.Status = "unhealthy"
		response.Status = "degraded"
	}
	response.Services["ticket_bridge"] = info
}

// Ready GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	ready := true
	if h.store != nil {
		if _, err := h.store.Load(ctx, store.CollectionAlertConfig); err != nil {
			ready = false
		}
	}
	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, gin.H{"ready": ready, "timestamp": time.Now()})
}
