package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/andesbank/leadflow/internal/flow"
	"github.com/andesbank/leadflow/internal/models"
	"github.com/andesbank/leadflow/internal/phone"
	"github.com/andesbank/leadflow/internal/session"
)

// fakeService records outbound messages and lets the test inject inbound ones.
type fakeService struct {
	normalizer *phone.Normalizer
	receipts   chan models.Receipt
	responses  chan models.Response
	mu         sync.Mutex
	sent       []string
}

func newFakeService() *fakeService {
	return &fakeService{
		normalizer: phone.NewNormalizer(""),
		receipts:   make(chan models.Receipt, 10),
		responses:  make(chan models.Response, 10),
	}
}

func (f *fakeService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return f.normalizer.Normalize(recipient)
}

func (f *fakeService) SendMessage(ctx context.Context, to string, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, body)
	return nil
}

func (f *fakeService) Start(ctx context.Context) error { return nil }
func (f *fakeService) Stop() error                     { return nil }

func (f *fakeService) Receipts() <-chan models.Receipt   { return f.receipts }
func (f *fakeService) Responses() <-chan models.Response { return f.responses }

func (f *fakeService) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func TestResponseHandlerRunsEngineTurn(t *testing.T) {
	svc := newFakeService()
	engine := flow.NewEngine(session.NewInMemoryStore())
	handler := NewResponseHandler(svc, engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler.Start(ctx)

	svc.responses <- models.Response{From: "+593987654321", Body: "hola", Time: time.Now().Unix()}

	deadline := time.After(2 * time.Second)
	for {
		if sent := svc.sentMessages(); len(sent) > 0 {
			if sent[0] == "" {
				t.Error("empty reply sent")
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("no reply sent within deadline")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestResponseHandlerDrainsReceipts(t *testing.T) {
	svc := newFakeService()
	engine := flow.NewEngine(session.NewInMemoryStore())
	handler := NewResponseHandler(svc, engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler.Start(ctx)

	for i := 0; i < 5; i++ {
		svc.receipts <- models.Receipt{To: "+593987654321", Status: models.MessageStatusDelivered, Time: time.Now().Unix()}
	}

	deadline := time.After(2 * time.Second)
	for len(svc.receipts) > 0 {
		select {
		case <-deadline:
			t.Fatal("receipts not drained")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
