// Package whatsapp wraps the Whatsmeow client for the LeadFlow WhatsApp
// transport. It handles the QR login flow and message delivery.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/andesbank/leadflow/internal/session"
)

const (
	// DefaultSQLitePath is the default whatsmeow session database path.
	DefaultSQLitePath = "/var/lib/leadflow/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users.
	JIDSuffix = "s.whatsapp.net"
)

// Sender is the minimal delivery interface used by the messaging layer.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	DBDSN       string
	QRPath      string
	NumericCode bool
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) {
		o.DBDSN = dsn
	}
}

// WithQRCodeOutput writes the login QR code to the given path instead of stdout.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) {
		o.QRPath = path
	}
}

// WithNumericCode prints the numeric login code instead of a QR code.
func WithNumericCode() Option {
	return func(o *Opts) {
		o.NumericCode = true
	}
}

// Client wraps the whatsmeow client.
type Client struct {
	waClient *whatsmeow.Client
}

// NewClient creates and connects a WhatsApp client, running the QR login flow
// when the device has no stored session.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("WhatsApp NewClient options set", "DBDSN_set", cfg.DBDSN != "", "QRPath_set", cfg.QRPath != "", "NumericCode", cfg.NumericCode)

	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultSQLitePath
		slog.Debug("No WhatsApp database DSN provided, using default SQLite path", "default_path", dbDSN)
	}

	var dbDriver string
	if session.DetectDSNType(dbDSN) == "postgres" {
		dbDriver = "postgres"
	} else {
		dbDriver = "sqlite3"
		if !strings.Contains(dbDSN, "_foreign_keys") && !strings.Contains(dbDSN, "foreign_keys") {
			slog.Warn("SQLite database for WhatsApp does not appear to have foreign keys enabled. "+
				"The whatsmeow library strongly recommends enabling foreign keys for data integrity.",
				"dsn_example", "file:"+dbDSN+"?_foreign_keys=on")
		}
	}

	slog.Debug("WhatsApp NewClient initializing DB store", "driver", dbDriver, "dsn_set", dbDSN != "")
	ctx := context.Background()
	container, err := sqlstore.New(ctx, dbDriver, dbDSN, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	waClient := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true))

	if waClient.Store.ID == nil {
		slog.Info("WhatsApp login required; starting QR code flow")
		qrChan, _ := waClient.GetQRChannel(context.Background())
		if err := waClient.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
		}
		writer := io.Writer(os.Stdout)
		if cfg.QRPath != "" {
			f, ferr := os.Create(cfg.QRPath)
			if ferr != nil {
				return nil, fmt.Errorf("failed to create QR file: %w", ferr)
			}
			defer f.Close()
			writer = f
		}
		for evt := range qrChan {
			if evt.Event == "code" {
				if cfg.NumericCode {
					fmt.Fprintln(writer, evt.Code)
				} else {
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
				}
			} else {
				slog.Debug("WhatsApp login event", "event", evt.Event)
			}
		}
	} else {
		slog.Debug("WhatsApp already logged in, connecting to server")
		if err := waClient.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
		}
	}
	slog.Info("WhatsApp client connected successfully")
	return &Client{waClient: waClient}, nil
}

// SendMessage sends a WhatsApp text message to the given recipient.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if c.waClient == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	if to == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}

	slog.Debug("Sending WhatsApp message", "to", to, "body_length", len(body))
	jid := types.NewJID(strings.TrimPrefix(to, "+"), JIDSuffix)
	msg := &waE2E.Message{Conversation: &body}

	if _, err := c.waClient.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	return nil
}

// GetClient returns the underlying whatsmeow client for event handling.
func (c *Client) GetClient() *whatsmeow.Client {
	return c.waClient
}

// MockClient implements Sender without a real WhatsApp connection (for tests).
type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	return nil
}
