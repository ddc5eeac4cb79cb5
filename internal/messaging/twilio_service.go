package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/andesbank/leadflow/internal/models"
	"github.com/andesbank/leadflow/internal/phone"
)

// twilioWhatsAppPrefix is required on Twilio WhatsApp addresses.
const twilioWhatsAppPrefix = "whatsapp:"

// TwilioService implements Service over the Twilio WhatsApp API. Inbound
// messages arrive via the webhook handler instead of a live connection.
type TwilioService struct {
	client     *twilio.RestClient
	from       string
	normalizer *phone.Normalizer
	receipts   chan models.Receipt
	responses  chan models.Response
	done       chan struct{}
	mu         sync.RWMutex
	stopped    bool
}

// NewTwilioService creates a Twilio-backed service. The from number is the
// Twilio WhatsApp sender.
func NewTwilioService(accountSID, authToken, from string, normalizer *phone.Normalizer) (*TwilioService, error) {
	if accountSID == "" || authToken == "" || from == "" {
		return nil, fmt.Errorf("twilio account SID, auth token and from number are required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	slog.Debug("TwilioService created", "from", phone.Mask(from))
	return &TwilioService{
		client:     client,
		from:       from,
		normalizer: normalizer,
		receipts:   make(chan models.Receipt, DefaultChannelBufferSize),
		responses:  make(chan models.Response, DefaultChannelBufferSize),
		done:       make(chan struct{}),
	}, nil
}

// ValidateAndCanonicalizeRecipient normalizes a recipient phone number.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return s.normalizer.Normalize(strings.TrimPrefix(recipient, twilioWhatsAppPrefix))
}

// Start is a no-op; Twilio delivers inbound messages through the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the channels and stops the service.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(s.receipts)
		close(s.responses)
	}()
	return nil
}

// SendMessage sends a WhatsApp message via Twilio and emits a sent receipt.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMessage validation error", "error", err, "to", to)
		return err
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(twilioWhatsAppPrefix + canonical)
	params.SetFrom(twilioWhatsAppPrefix + s.from)
	params.SetBody(body)

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		slog.Error("TwilioService SendMessage error", "error", err, "to", phone.Mask(canonical))
		return fmt.Errorf("failed to send twilio message to %s: %w", phone.Mask(canonical), err)
	}

	s.safeEmitReceipt(models.Receipt{To: canonical, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	slog.Info("TwilioService message sent", "to", phone.Mask(canonical))
	return nil
}

// Receipts returns the channel of delivery receipts.
func (s *TwilioService) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Responses returns the channel of inbound messages.
func (s *TwilioService) Responses() <-chan models.Response {
	return s.responses
}

// WebhookHandler handles inbound Twilio webhook requests, emitting each
// message into the Responses channel.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	slog.Info("Twilio webhook received")

	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")
	if from == "" || body == "" {
		slog.Warn("Twilio webhook missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	canonical, err := s.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		slog.Warn("Twilio webhook sender not normalizable", "error", err)
		http.Error(w, "Invalid sender", http.StatusBadRequest)
		return
	}

	s.safeEmitResponse(models.Response{From: canonical, Body: body, Time: time.Now().Unix()})

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *TwilioService) safeEmitReceipt(receipt models.Receipt) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return
	}

	select {
	case s.receipts <- receipt:
	case <-time.After(DefaultChannelTimeout):
	}
}

func (s *TwilioService) safeEmitResponse(response models.Response) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		slog.Warn("TwilioService dropping inbound response (service stopped)", "from", phone.Mask(response.From))
		return
	}

	select {
	case s.responses <- response:
		slog.Debug("TwilioService emitted inbound response", "from", phone.Mask(response.From))
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService responses channel blocked, dropping message", "from", phone.Mask(response.From))
	}
}
