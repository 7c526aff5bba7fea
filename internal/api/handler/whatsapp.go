package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// inboundMessage is the subset of the Twilio webhook payload we read. Twilio
// posts form fields; JSON is accepted for manual testing.
type inboundMessage struct {
	From string `form:"From" json:"From"`
	Body string `form:"Body" json:"Body"`
}

const twilioSignatureHeader = "X-Twilio-Signature"

// RequireTwilioSignature rejects webhook calls that Twilio did not sign.
func (h *Handler) RequireTwilioSignature() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.Webhook == nil {
			c.Next()
			return
		}
		if err := c.Request.ParseForm(); err != nil {
			badRequest(c, err)
			c.Abort()
			return
		}
		params := make(map[string]string, len(c.Request.PostForm))
		for k, v := range c.Request.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}

		url := h.WebhookURL
		if url == "" {
			url = requestURL(c.Request)
		}
		if !h.Webhook.Validate(url, params, c.GetHeader(twilioSignatureHeader)) {
			slog.Warn("rejected unsigned webhook call", slog.String("url", url), slog.String("remote", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid Twilio signature"})
			return
		}
		c.Next()
	}
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.RequestURI
}

// ReceiveWhatsApp handles the inbound message webhook and answers with the
// reply that was sent back to the user.
func (h *Handler) ReceiveWhatsApp(c *gin.Context) {
	var in inboundMessage
	if err := c.ShouldBind(&in); err != nil {
		badRequest(c, err)
		return
	}
	slog.Info("inbound whatsapp message", slog.String("from", in.From))

	reply, err := h.Conversations.HandleInbound(c.Request.Context(), in.From, in.Body)
	if err != nil {
		slog.Error("inbound message handling failed", slog.String("from", in.From), slog.String("error", err.Error()))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": reply})
}

type startRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	ChatFlowID  string `json:"chatFlowId" binding:"required"`
}

// StartConversation puts a phone number straight into a flow.
func (h *Handler) StartConversation(c *gin.Context) {
	var in startRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	prompt, err := h.Conversations.StartConversation(c.Request.Context(), in.PhoneNumber, in.ChatFlowID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": prompt})
}
