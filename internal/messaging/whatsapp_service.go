package messaging

import (
	"context"
	"log/slog"
	"time"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/andesbank/leadflow/internal/models"
	"github.com/andesbank/leadflow/internal/phone"
	"github.com/andesbank/leadflow/internal/whatsapp"
)

// WhatsAppService implements Service over the whatsmeow-based client.
type WhatsAppService struct {
	client     whatsapp.Sender
	waClient   *whatsapp.Client // full client when available, for event handling
	normalizer *phone.Normalizer
	receipts   chan models.Receipt
	responses  chan models.Response
	done       chan struct{}
}

// NewWhatsAppService creates a service wrapping the given sender. When the
// sender is a full *whatsapp.Client, inbound events are consumed too.
func NewWhatsAppService(client whatsapp.Sender, normalizer *phone.Normalizer) *WhatsAppService {
	service := &WhatsAppService{
		client:     client,
		normalizer: normalizer,
		receipts:   make(chan models.Receipt, DefaultChannelBufferSize),
		responses:  make(chan models.Response, DefaultChannelBufferSize),
		done:       make(chan struct{}),
	}
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}
	return service
}

// ValidateAndCanonicalizeRecipient normalizes a recipient phone number.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return s.normalizer.Normalize(recipient)
}

// Start begins consuming WhatsApp events when a full client is available.
func (s *WhatsAppService) Start(ctx context.Context) error {
	slog.Debug("WhatsAppService Start invoked")
	if s.waClient != nil {
		go s.handleEvents(ctx)
		slog.Debug("WhatsAppService event handler started")
	} else {
		slog.Debug("WhatsAppService no full client available, skipping event handling")
	}
	return nil
}

// Stop stops background processing and closes the channels.
func (s *WhatsAppService) Stop() error {
	slog.Info("WhatsAppService Stop invoked")
	close(s.done)
	close(s.receipts)
	close(s.responses)
	return nil
}

// SendMessage sends a message and emits a sent receipt.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService SendMessage validation error", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, canonical, body); err != nil {
		slog.Error("WhatsAppService SendMessage error", "error", err, "to", phone.Mask(canonical))
		return err
	}
	s.receipts <- models.Receipt{To: canonical, Status: models.MessageStatusSent, Time: time.Now().Unix()}
	slog.Info("WhatsAppService message sent and receipt emitted", "to", phone.Mask(canonical))
	return nil
}

// Receipts returns the channel of delivery receipts.
func (s *WhatsAppService) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Responses returns the channel of inbound messages.
func (s *WhatsAppService) Responses() <-chan models.Response {
	return s.responses
}

// handleEvents feeds whatsmeow events into the receipt and response channels.
func (s *WhatsAppService) handleEvents(ctx context.Context) {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Error("WhatsAppService handleEvents: no client available")
		return
	}

	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			s.handleIncomingMessage(v)
		case *events.Receipt:
			s.handleMessageReceipt(v)
		default:
		}
	})
	slog.Debug("WhatsAppService event handler registered")

	<-ctx.Done()
	slog.Debug("WhatsAppService handleEvents stopping due to context cancellation")
}

// handleIncomingMessage forwards inbound text messages from prospects.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil {
		return
	}

	var messageText string
	if evt.Message.Conversation != nil {
		messageText = *evt.Message.Conversation
	} else if evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil {
		messageText = *evt.Message.ExtendedTextMessage.Text
	} else {
		// Skip non-text messages (images, audio, etc.)
		slog.Debug("WhatsAppService ignoring non-text message", "from", evt.Info.Sender.String())
		return
	}

	fromNumber, err := s.normalizer.Normalize(evt.Info.Sender.User)
	if err != nil {
		slog.Warn("WhatsAppService could not normalize sender", "error", err)
		return
	}

	response := models.Response{
		From: fromNumber,
		Body: messageText,
		Time: evt.Info.Timestamp.Unix(),
	}

	select {
	case s.responses <- response:
		slog.Info("WhatsAppService incoming message forwarded", "from", phone.Mask(response.From))
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService responses channel blocked, dropping message", "from", phone.Mask(response.From))
	}
}

// handleMessageReceipt forwards delivery and read receipts.
func (s *WhatsAppService) handleMessageReceipt(evt *events.Receipt) {
	toNumber, err := s.normalizer.Normalize(evt.MessageSource.Sender.User)
	if err != nil {
		return
	}

	var status models.MessageStatus
	switch evt.Type {
	case events.ReceiptTypeDelivered:
		status = models.MessageStatusDelivered
	case events.ReceiptTypeRead:
		status = models.MessageStatusRead
	case events.ReceiptTypeReadSelf:
		return
	default:
		return
	}

	receipt := models.Receipt{To: toNumber, Status: status, Time: evt.Timestamp.Unix()}
	select {
	case s.receipts <- receipt:
		slog.Debug("WhatsAppService receipt forwarded", "to", phone.Mask(receipt.To), "status", receipt.Status)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService receipts channel blocked, dropping receipt", "to", phone.Mask(receipt.To))
	}
}
