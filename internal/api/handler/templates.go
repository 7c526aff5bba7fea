package handler

import (
	"net/http"

	"msgflow/backend/internal/email"

	"github.com/gin-gonic/gin"
)

type templateRequest struct {
	Name        string  `json:"name" binding:"required"`
	Content     string  `json:"content" binding:"required"`
	Description *string `json:"description"`
}

func (h *Handler) CreateTemplate(c *gin.Context) {
	var in templateRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	t, err := h.Templates.Create(c.Request.Context(), in.Name, in.Content, in.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) ListTemplates(c *gin.Context) {
	list, err := h.Templates.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetTemplate(c *gin.Context) {
	t, err := h.Templates.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) SendEmail(c *gin.Context) {
	var in email.Request
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	entry, err := h.Mail.Send(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *Handler) SendEmailBulk(c *gin.Context) {
	var in email.BulkRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.Mail.SendBulk(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListEmailLogs(c *gin.Context) {
	logs, err := h.Mail.ListLogs(c.Request.Context(), queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": logs})
}
