package messaging

import (
	"context"
	"log/slog"

	"github.com/andesbank/leadflow/internal/flow"
	"github.com/andesbank/leadflow/internal/models"
	"github.com/andesbank/leadflow/internal/phone"
)

// ResponseHandler binds inbound messages to the conversation engine: every
// response from the transport runs one engine turn and the replies go back
// out through the same service.
type ResponseHandler struct {
	service Service
	engine  *flow.Engine
}

// NewResponseHandler creates a handler over the given service and engine.
func NewResponseHandler(service Service, engine *flow.Engine) *ResponseHandler {
	return &ResponseHandler{service: service, engine: engine}
}

// Start launches the processing loops. They run until the context is
// cancelled or the service channels close.
func (h *ResponseHandler) Start(ctx context.Context) {
	go h.processResponses(ctx)
	go h.processReceipts(ctx)
	slog.Debug("ResponseHandler started")
}

func (h *ResponseHandler) processResponses(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			slog.Debug("ResponseHandler stopping response loop")
			return
		case response, ok := <-h.service.Responses():
			if !ok {
				slog.Debug("ResponseHandler responses channel closed")
				return
			}
			h.handleResponse(ctx, response)
		}
	}
}

func (h *ResponseHandler) handleResponse(ctx context.Context, response models.Response) {
	slog.Debug("ResponseHandler processing inbound message", "from", phone.Mask(response.From), "body_length", len(response.Body))

	replies, err := h.engine.HandleMessage(ctx, response.From, response.Body)
	if err != nil {
		slog.Error("ResponseHandler engine turn failed", "error", err, "from", phone.Mask(response.From))
		return
	}

	for _, reply := range replies {
		if err := h.service.SendMessage(ctx, response.From, reply); err != nil {
			slog.Error("ResponseHandler failed to send reply", "error", err, "to", phone.Mask(response.From))
			return
		}
	}
	slog.Info("ResponseHandler turn completed", "from", phone.Mask(response.From), "replies", len(replies))
}

func (h *ResponseHandler) processReceipts(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			slog.Debug("ResponseHandler stopping receipt loop")
			return
		case receipt, ok := <-h.service.Receipts():
			if !ok {
				slog.Debug("ResponseHandler receipts channel closed")
				return
			}
			slog.Debug("ResponseHandler receipt", "to", phone.Mask(receipt.To), "status", receipt.Status)
		}
	}
}
