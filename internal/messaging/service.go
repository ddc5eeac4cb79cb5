// Package messaging provides pluggable message delivery for LeadFlow.
//
// A Service owns one transport (whatsmeow or Twilio), exposes inbound
// messages and delivery receipts as channels, and validates recipients before
// sending.
package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/andesbank/leadflow/internal/models"
)

const (
	// DefaultChannelBufferSize is the buffer size for receipt and response channels.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds non-blocking channel sends.
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service is stopped")

// Service is the delivery abstraction the rest of LeadFlow talks to.
type Service interface {
	// ValidateAndCanonicalizeRecipient normalizes a recipient phone number.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)
	// SendMessage delivers a text message and emits a sent receipt.
	SendMessage(ctx context.Context, to string, body string) error
	// Start begins background processing (event polling, webhooks).
	Start(ctx context.Context) error
	// Stop stops background processing and closes the channels.
	Stop() error
	// Receipts streams delivery receipts for outbound messages.
	Receipts() <-chan models.Receipt
	// Responses streams inbound messages from prospects.
	Responses() <-chan models.Response
}
