package handler

import (
	"net/http"

	"msgflow/backend/internal/chatflow"

	"github.com/gin-gonic/gin"
)

func (h *Handler) CreateFlow(c *gin.Context) {
	var in chatflow.CreateFlowInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	flow, err := h.Flows.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, flow)
}

func (h *Handler) ListFlows(c *gin.Context) {
	flows, err := h.Flows.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, flows)
}

func (h *Handler) GetFlow(c *gin.Context) {
	flow, err := h.Flows.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, flow)
}

func (h *Handler) UpdateFlow(c *gin.Context) {
	var in chatflow.UpdateFlowInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	flow, err := h.Flows.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, flow)
}

func (h *Handler) AddQuestion(c *gin.Context) {
	var in chatflow.QuestionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	q, err := h.Flows.AddQuestion(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

func (h *Handler) DeleteFlow(c *gin.Context) {
	if err := h.Flows.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) DeleteAllFlows(c *gin.Context) {
	if err := h.Flows.DeleteAll(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
