package handler

import (
	"net/http"

	"msgflow/backend/internal/messaging"
	"msgflow/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type sendRequest struct {
	To         string            `json:"to" binding:"required"`
	Body       string            `json:"body"`
	TemplateID string            `json:"templateId"`
	Variables  map[string]string `json:"variables"`
	From       string            `json:"from"`
}

func (r sendRequest) toMessaging(kind models.MessageType) messaging.Request {
	return messaging.Request{
		To:          r.To,
		MessageType: kind,
		Body:        r.Body,
		TemplateID:  r.TemplateID,
		Variables:   r.Variables,
		From:        r.From,
	}
}

func (h *Handler) SendWhatsApp(c *gin.Context) { h.send(c, models.WhatsApp) }
func (h *Handler) SendSMS(c *gin.Context)      { h.send(c, models.SMS) }

func (h *Handler) send(c *gin.Context, kind models.MessageType) {
	var in sendRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	entry, err := h.Messages.Send(c.Request.Context(), in.toMessaging(kind))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

type bulkSendRequest struct {
	Messages []sendRequest `json:"messages" binding:"required,dive"`
}

func (h *Handler) SendWhatsAppBulk(c *gin.Context) { h.sendBulk(c, models.WhatsApp) }
func (h *Handler) SendSMSBulk(c *gin.Context)      { h.sendBulk(c, models.SMS) }

func (h *Handler) sendBulk(c *gin.Context, kind models.MessageType) {
	var in bulkSendRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	reqs := make([]messaging.Request, len(in.Messages))
	for i, m := range in.Messages {
		reqs[i] = m.toMessaging(kind)
	}
	c.JSON(http.StatusOK, h.Messages.SendBulk(c.Request.Context(), reqs))
}

func (h *Handler) ListMessageLogs(c *gin.Context) {
	filter := models.MessageLogFilter{
		To:          c.Query("phoneNumber"),
		MessageType: models.MessageType(c.Query("type")),
		Status:      models.MessageStatus(c.Query("status")),
		Limit:       queryInt(c, "limit", 50),
		Offset:      queryInt(c, "offset", 0),
	}
	logs, err := h.Messages.ListLogs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": logs})
}
