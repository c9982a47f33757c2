package handlers

import (
	"errors"
	"net/http"

	"sweepnspect/internal/models"
	"sweepnspect/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AutomationHandler 自动化规则接口
type AutomationHandler struct {
	service *services.AutomationService
	logger  *logrus.Logger
}

func NewAutomationHandler(service *services.AutomationService, logger *logrus.Logger) *AutomationHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &AutomationHandler{service: service, logger: logger}
}

// RuleRequest 创建/更新规则，enabled 缺省为 true
type RuleRequest struct {
	Name       string                 `json:"name" binding:"required"`
	Event      string                 `json:"event" binding:"required"`
	Enabled    *bool                  `json:"enabled"`
	Conditions []models.RuleCondition `json:"conditions"`
	Actions    []models.RuleAction    `json:"actions"`
}

func (r RuleRequest) toRule() models.AutomationRule {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return models.AutomationRule{
		Name:       r.Name,
		Event:      r.Event,
		Enabled:    enabled,
		Conditions: r.Conditions,
		Actions:    r.Actions,
	}
}

// EvaluateRequest 手动触发事件
type EvaluateRequest struct {
	Event string      `json:"event" binding:"required"`
	Data  interface{} `json:"data"`
}

func (h *AutomationHandler) ListRules(c *gin.Context) {
	rules, err := h.service.ListRules(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list rules", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (h *AutomationHandler) GetRule(c *gin.Context) {
	rule, err := h.service.GetRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "Failed to get rule", err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *AutomationHandler) CreateRule(c *gin.Context) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}
	rule, err := h.service.CreateRule(c.Request.Context(), req.toRule())
	if err != nil {
		h.writeError(c, "Failed to create rule", err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *AutomationHandler) UpdateRule(c *gin.Context) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}
	rule, err := h.service.UpdateRule(c.Request.Context(), c.Param("id"), req.toRule())
	if err != nil {
		h.writeError(c, "Failed to update rule", err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *AutomationHandler) DeleteRule(c *gin.Context) {
	if err := h.service.DeleteRule(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, "Failed to delete rule", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Rule deleted"})
}

// GetLog GET /api/automation/log?limit=50
func (h *AutomationHandler) GetLog(c *gin.Context) {
	log, err := h.service.GetLog(c.Request.Context(), queryLimit(c, 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to read automation log", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, log)
}

// Evaluate POST /api/automation/evaluate
func (h *AutomationHandler) Evaluate(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}
	entries := h.service.Evaluate(c.Request.Context(), req.Event, req.Data)
	if entries == nil {
		entries = []models.AutomationLogEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

func (h *AutomationHandler) writeError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, services.ErrRuleNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Rule not found", Message: err.Error()})
	case errors.Is(err, services.ErrInvalidRule):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid rule", Message: err.Error()})
	default:
		h.logger.Errorf("%s: %v", msg, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msg, Message: err.Error()})
	}
}

// RegisterAutomationRoutes 注册规则与执行记录路由
func RegisterAutomationRoutes(r *gin.RouterGroup, h *AutomationHandler) {
	rules := r.Group("/rules")
	{
		rules.GET("", h.ListRules)
		rules.POST("", h.CreateRule)
		rules.GET("/:id", h.GetRule)
		rules.PUT("/:id", h.UpdateRule)
		rules.DELETE("/:id", h.DeleteRule)
	}
	automation := r.Group("/automation")
	{
		automation.GET("/log", h.GetLog)
		automation.POST("/evaluate", h.Evaluate)
	}
}
