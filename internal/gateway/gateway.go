// Package gateway sends WhatsApp and SMS messages through Twilio.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// ErrTransport wraps every provider-side failure.
var ErrTransport = errors.New("messaging provider error")

const whatsAppPrefix = "whatsapp:"

// Delivery is the provider's acknowledgement of a send.
type Delivery struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type messageAPI interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Twilio is the production Messaging Gateway.
type Twilio struct {
	api            messageAPI
	whatsAppNumber string
	smsNumber      string
}

// NewTwilio creates a gateway authenticated with the account credentials.
func NewTwilio(accountSID, authToken, whatsAppNumber, smsNumber string) *Twilio {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return newTwilio(client.Api, whatsAppNumber, smsNumber)
}

func newTwilio(api messageAPI, whatsAppNumber, smsNumber string) *Twilio {
	if smsNumber == "" {
		smsNumber = whatsAppNumber
	}
	return &Twilio{api: api, whatsAppNumber: whatsAppNumber, smsNumber: smsNumber}
}

// SendWhatsApp sends body to the WhatsApp address of to.
func (t *Twilio) SendWhatsApp(ctx context.Context, to, body string) (Delivery, error) {
	return t.send(ctx, WhatsAppAddress(to), WhatsAppAddress(t.whatsAppNumber), body)
}

// SendSMS sends body as an SMS. An empty from uses the configured number.
func (t *Twilio) SendSMS(ctx context.Context, to, body, from string) (Delivery, error) {
	if from == "" {
		from = t.smsNumber
	}
	return t.send(ctx, to, from, body)
}

func (t *Twilio) send(ctx context.Context, to, from, body string) (Delivery, error) {
	if err := ctx.Err(); err != nil {
		return Delivery{}, err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(body)

	resp, err := t.api.CreateMessage(params)
	if err != nil {
		slog.Error("twilio send failed", slog.String("to", to), slog.String("error", err.Error()))
		return Delivery{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	var d Delivery
	if resp.Sid != nil {
		d.ID = *resp.Sid
	}
	if resp.Status != nil {
		d.Status = fmt.Sprint(*resp.Status)
	}
	slog.Info("twilio message accepted", slog.String("to", to), slog.String("sid", d.ID), slog.String("status", d.Status))
	return d, nil
}

// WhatsAppAddress prefixes a phone number with "whatsapp:" unless it already
// carries the prefix.
func WhatsAppAddress(phone string) string {
	if strings.HasPrefix(phone, whatsAppPrefix) {
		return phone
	}
	return whatsAppPrefix + phone
}

// StripWhatsApp removes the "whatsapp:" prefix from an inbound sender.
func StripWhatsApp(addr string) string {
	return strings.TrimPrefix(addr, whatsAppPrefix)
}

// NewWebhookValidator checks X-Twilio-Signature headers signed with authToken.
func NewWebhookValidator(authToken string) *client.RequestValidator {
	v := client.NewRequestValidator(authToken)
	return &v
}
