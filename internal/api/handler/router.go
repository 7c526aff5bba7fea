package handler

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE"},
		AllowHeaders:  []string{"Origin", "Authorization", "Content-Type", "Content-Length", "X-API-Key"},
		ExposeHeaders: []string{"Content-Type", "Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// Router builds the /v1 API.
func Router(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), cors.New(corsConfig(h.AllowedOrigins)))

	v1 := r.Group("/v1")
	v1.GET("/health", h.Health)
	v1.POST("/auth/token", h.IssueToken)
	v1.POST("/whatsapp/receive", h.RequireTwilioSignature(), h.ReceiveWhatsApp)

	api := v1.Group("", h.RequireJWT())

	flows := api.Group("/chat-flows")
	flows.POST("", h.CreateFlow)
	flows.GET("", h.ListFlows)
	flows.DELETE("", h.DeleteAllFlows)
	flows.GET("/:id", h.GetFlow)
	flows.PATCH("/:id", h.UpdateFlow)
	flows.DELETE("/:id", h.DeleteFlow)
	flows.POST("/:id/questions", h.AddQuestion)

	api.POST("/whatsapp/start", h.StartConversation)

	sched := api.Group("/scheduled-messages")
	sched.POST("", h.ScheduleMessage)
	sched.POST("/bulk", h.BulkScheduleMessages)
	sched.GET("", h.ListScheduledMessages)
	sched.GET("/:id", h.GetScheduledMessage)
	sched.PATCH("/:id", h.UpdateScheduledMessage)
	sched.DELETE("/:id", h.CancelScheduledMessage)
	sched.POST("/:id/cancel", h.CancelScheduledMessage)

	api.GET("/scheduler/status", h.SweepStatus)
	api.POST("/scheduler/start", h.SweepStart)
	api.POST("/scheduler/stop", h.SweepStop)

	msgs := api.Group("/messages")
	msgs.POST("/whatsapp", h.SendWhatsApp)
	msgs.POST("/whatsapp/bulk", h.SendWhatsAppBulk)
	msgs.POST("/sms", h.SendSMS)
	msgs.POST("/sms/bulk", h.SendSMSBulk)
	msgs.GET("/logs", h.ListMessageLogs)

	tpl := api.Group("/templates")
	tpl.POST("", h.CreateTemplate)
	tpl.GET("", h.ListTemplates)
	tpl.GET("/:id", h.GetTemplate)

	api.POST("/email/send", h.SendEmail)
	api.POST("/email/bulk", h.SendEmailBulk)
	api.GET("/email/logs", h.ListEmailLogs)

	api.GET("/events/ws", h.ServeEvents)

	return r
}
