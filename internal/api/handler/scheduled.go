package handler

import (
	"fmt"
	"net/http"

	"msgflow/backend/internal/models"
	"msgflow/backend/internal/schedule"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ScheduleMessage(c *gin.Context) {
	var in schedule.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.Schedules.Schedule(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

type bulkScheduleRequest struct {
	Messages []schedule.Input `json:"messages" binding:"required"`
}

func (h *Handler) BulkScheduleMessages(c *gin.Context) {
	var in bulkScheduleRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Schedules.BulkSchedule(c.Request.Context(), in.Messages))
}

func (h *Handler) ListScheduledMessages(c *gin.Context) {
	status := models.ScheduledStatus(c.Query("status"))
	msgs, err := h.Schedules.List(c.Request.Context(), status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handler) GetScheduledMessage(c *gin.Context) {
	m, err := h.Schedules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) UpdateScheduledMessage(c *gin.Context) {
	var in schedule.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	if in.TemplateID == nil && in.Variables == nil && in.ScheduledTime == nil {
		badRequest(c, fmt.Errorf("%w: nothing to update", schedule.ErrValidation))
		return
	}
	m, err := h.Schedules.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) CancelScheduledMessage(c *gin.Context) {
	m, err := h.Schedules.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) SweepStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.Sweep.Status())
}

func (h *Handler) SweepStart(c *gin.Context) {
	started := h.Sweep.Start()
	c.JSON(http.StatusOK, gin.H{"running": h.Sweep.Status().Running, "changed": started})
}

func (h *Handler) SweepStop(c *gin.Context) {
	stopped := h.Sweep.Stop()
	c.JSON(http.StatusOK, gin.H{"running": h.Sweep.Status().Running, "changed": stopped})
}
