package handlers

import (
	"errors"
	"net/http"

	"sweepnspect/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TicketHandler 工单与订阅用户接口
type TicketHandler struct {
	tickets     *services.TicketService
	subscribers *services.SubscriberService
	logger      *logrus.Logger
}

func NewTicketHandler(tickets *services.TicketService, subscribers *services.SubscriberService, logger *logrus.Logger) *TicketHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &TicketHandler{tickets: tickets, subscribers: subscribers, logger: logger}
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type AddMessageRequest struct {
	From string `json:"from"`
	Text string `json:"text" binding:"required"`
}

// ListTickets GET /api/tickets?status=&priority=&limit=
func (h *TicketHandler) ListTickets(c *gin.Context) {
	var req services.TicketListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid query", Message: err.Error()})
		return
	}
	tickets, err := h.tickets.List(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list tickets", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, tickets)
}

func (h *TicketHandler) GetTicket(c *gin.Context) {
	ticket, err := h.tickets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "Failed to get ticket", err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// UpdateStatus PUT /api/tickets/:id/status
func (h *TicketHandler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}
	ticket, err := h.tickets.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		h.writeError(c, "Failed to update ticket", err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// AddMessage POST /api/tickets/:id/messages
func (h *TicketHandler) AddMessage(c *gin.Context) {
	var req AddMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}
	if req.From == "" {
		req.From = "owner"
	}
	ticket, err := h.tickets.AddMessage(c.Request.Context(), c.Param("id"), req.From, req.Text)
	if err != nil {
		h.writeError(c, "Failed to add message", err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (h *TicketHandler) ListSubscribers(c *gin.Context) {
	subs, err := h.subscribers.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list subscribers", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, subs)
}

func (h *TicketHandler) writeError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, services.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Ticket not found", Message: err.Error()})
	case errors.Is(err, services.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid status", Message: err.Error()})
	default:
		h.logger.Errorf("%s: %v", msg, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msg, Message: err.Error()})
	}
}

func RegisterTicketRoutes(r *gin.RouterGroup, h *TicketHandler) {
	tickets := r.Group("/tickets")
	{
		tickets.GET("", h.ListTickets)
		tickets.GET("/:id", h.GetTicket)
		tickets.PUT("/:id/status", h.UpdateStatus)
		tickets.POST("/:id/messages", h.AddMessage)
	}
	r.GET("/subscribers", h.ListSubscribers)
}
