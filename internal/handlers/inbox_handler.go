package handlers

import (
	"net/http"
	"time"

	"sweepnspect/internal/models"
	"sweepnspect/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// InboxHandler 邮件入站与分类
type InboxHandler struct {
	router *services.EmailRouter
	logger *logrus.Logger
}

func NewInboxHandler(router *services.EmailRouter, logger *logrus.Logger) *InboxHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &InboxHandler{router: router, logger: logger}
}

// EmailRequest 轮询器推送的新邮件
type EmailRequest struct {
	UID     string              `json:"uid" binding:"required"`
	Subject string              `json:"subject"`
	From    models.EmailAddress `json:"from"`
	To      string              `json:"to"`
	Text    string              `json:"text"`
	Date    time.Time           `json:"date"`
}

func (r EmailRequest) toEmail() models.Email {
	return models.Email{UID: r.UID, Subject: r.Subject, From: r.From, To: r.To, Text: r.Text, Date: r.Date}
}

// ClassifyRequest 只分类不落库
type ClassifyRequest struct {
	Subject string              `json:"subject"`
	From    models.EmailAddress `json:"from"`
}

// ListEmails GET /api/inbox/emails
func (h *InboxHandler) ListEmails(c *gin.Context) {
	c.JSON(http.StatusOK, h.router.Recent(queryLimit(c, 50)))
}

// ProcessEmail POST /api/inbox/emails
func (h *InboxHandler) ProcessEmail(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}
	if req.From.Address == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: "from.address is required"})
		return
	}
	result, err := h.router.ProcessNew(c.Request.Context(), req.toEmail())
	if err != nil {
		h.logger.Errorf("Failed to process email %s: %v", req.UID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to process email", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Classify POST /api/inbox/classify
func (h *InboxHandler) Classify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.router.Classify(models.Email{Subject: req.Subject, From: req.From}))
}

// Categories GET /api/inbox/categories
func (h *InboxHandler) Categories(c *gin.Context) {
	c.JSON(http.StatusOK, services.Categories())
}

func RegisterInboxRoutes(r *gin.RouterGroup, h *InboxHandler) {
	inbox := r.Group("/inbox")
	{
		inbox.GET("/emails", h.ListEmails)
		inbox.POST("/emails", h.ProcessEmail)
		inbox.POST("/classify", h.Classify)
		inbox.GET("/categories", h.Categories)
	}
}
