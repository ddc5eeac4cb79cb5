// Package models defines the core data structures for LeadFlow.
//
// It includes the per-user conversation record, classifier and validator
// results, backend payloads, and API response helpers shared across modules.
package models

import (
	"encoding/json"
	"errors"
	"time"
)

// Step identifies the current position of a conversation in the dialogue.
type Step string

const (
	// StepGreeting is the implicit position before the first reply is sent.
	StepGreeting Step = "greeting"
	// StepWaitingInterest waits for the prospect to confirm or decline interest.
	StepWaitingInterest Step = "waiting_interest"
	// StepWaitingSalary waits for the monthly income answer.
	StepWaitingSalary Step = "waiting_salary"
	// StepWaitingCompany waits for the employer/occupation answer.
	StepWaitingCompany Step = "waiting_company"
	// StepWaitingAmount waits for the requested amount answer.
	StepWaitingAmount Step = "waiting_amount"
	// StepWaitingHumanContact waits for confirmation of a human handoff.
	StepWaitingHumanContact Step = "waiting_human_contact"
	// StepWaitingQuestions handles follow-up questions after a decline.
	StepWaitingQuestions Step = "waiting_questions"
)

// IsValidStep checks whether the given step belongs to the closed step set.
func IsValidStep(s Step) bool {
	switch s {
	case StepGreeting, StepWaitingInterest, StepWaitingSalary, StepWaitingCompany,
		StepWaitingAmount, StepWaitingHumanContact, StepWaitingQuestions:
		return true
	default:
		return false
	}
}

// MaxFieldRetries is the number of consecutive validation failures tolerated
// within a single step before the conversation escalates to a human handoff.
const MaxFieldRetries = 3

// DefaultUserName is used when the backend has no display name for a prospect.
const DefaultUserName = "Cliente"

// DefaultProduct is the product assumed when no campaign names one.
const DefaultProduct = "credito_personal"

// Turn is one prior exchange in a conversation, kept for prompting context only.
type Turn struct {
	Role    string    `json:"role"` // "user" or "assistant"
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

// Conversation is the per-phone dialogue record. One exists from the first
// inbound message until the session concludes; terminal transitions delete it.
type Conversation struct {
	ID              string          `json:"id"`
	Phone           string          `json:"phone"`
	Name            string          `json:"name"`
	Step            Step            `json:"step"`
	Salary          string          `json:"salary,omitempty"`
	Company         string          `json:"company,omitempty"`
	Amount          string          `json:"amount,omitempty"`
	SelectedProduct string          `json:"selected_product"`
	History         []Turn          `json:"history,omitempty"`
	RetryCount      int             `json:"retry_count"`
	ClientData      json.RawMessage `json:"client_data,omitempty"`
	CampaignData    json.RawMessage `json:"campaign_data,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// AddTurn appends an exchange to the conversation history.
func (c *Conversation) AddTurn(role, content string) {
	c.History = append(c.History, Turn{Role: role, Content: content, Time: time.Now()})
}

// ToJSON serializes the conversation for storage.
func (c *Conversation) ToJSON() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FromJSON deserializes a stored conversation.
func (c *Conversation) FromJSON(data string) error {
	return json.Unmarshal([]byte(data), c)
}

// Intention is the classified purpose of a user message.
type Intention string

const (
	IntentionGreeting        Intention = "greeting"
	IntentionInterestConfirm Intention = "interest_confirm"
	IntentionInterestDecline Intention = "interest_decline"
	IntentionAskingInfo      Intention = "asking_info"
	IntentionProvidingData   Intention = "providing_data"
	IntentionChangingProduct Intention = "changing_product"
	IntentionComplaint       Intention = "complaint"
	IntentionClosure         Intention = "closure"
	IntentionUnknown         Intention = "unknown"
)

// Emotion is the classified emotional tone of a user message.
type Emotion string

const (
	EmotionPositive   Emotion = "positive"
	EmotionNeutral    Emotion = "neutral"
	EmotionNegative   Emotion = "negative"
	EmotionFrustrated Emotion = "frustrated"
)

// IsDistressed reports whether the emotion should trigger the empathetic
// interrupt that short-circuits normal step processing.
func (e Emotion) IsDistressed() bool {
	return e == EmotionNegative || e == EmotionFrustrated
}

// IntentResult is the structured output of the intent classifier.
type IntentResult struct {
	Intention       Intention `json:"intention"`
	Confidence      float64   `json:"confidence"`
	ProductInterest string    `json:"product_interest"`
	Emotion         Emotion   `json:"emotion"`
	NextAction      string    `json:"next_action"`
}

// DefaultIntentResult is the safe classification returned on any classifier
// failure. The engine treats it as a no-op signal and falls through to its
// default branch.
func DefaultIntentResult() IntentResult {
	return IntentResult{
		Intention:       IntentionUnknown,
		Confidence:      0,
		ProductInterest: "none",
		Emotion:         EmotionNeutral,
	}
}

// FieldType tags which qualifying field a raw answer belongs to.
type FieldType string

const (
	FieldSalary  FieldType = "salary"
	FieldCompany FieldType = "company"
	FieldAmount  FieldType = "amount"
)

// MinLeadAmount is the minimum requested amount, in currency units, accepted
// by the amount validator.
const MinLeadAmount = 1000.0

// ValidationResult is the outcome of validating one free-text field.
type ValidationResult struct {
	IsValid        bool   `json:"isValid"`
	ExtractedValue string `json:"extractedValue"`
	Message        string `json:"message"`
}

// ClientProfile is the backend's view of a prospect, fetched once at session
// start. Raw carries the untouched payload through to the lead submission.
type ClientProfile struct {
	Name          string          `json:"name"`
	Segment       string          `json:"segment"`
	CreditScore   int             `json:"credit_score"`
	MonthlyIncome float64         `json:"monthly_income"`
	Raw           json.RawMessage `json:"-"`
}

// Campaign is one active outreach campaign for a prospect.
type Campaign struct {
	CampaignID  string  `json:"campaign_id"`
	ProductType string  `json:"product_type"`
	MaxAmount   float64 `json:"max_amount,omitempty"`
	Priority    int     `json:"priority,omitempty"`
}

// CampaignInfo is the backend's campaign response for a phone number. An
// empty ActiveCampaigns list is a valid, expected state.
type CampaignInfo struct {
	ActiveCampaigns []Campaign      `json:"active_campaigns"`
	Raw             json.RawMessage `json:"-"`
}

// Top returns the highest-priority active campaign, or nil when none exist.
func (ci *CampaignInfo) Top() *Campaign {
	if ci == nil || len(ci.ActiveCampaigns) == 0 {
		return nil
	}
	top := &ci.ActiveCampaigns[0]
	for i := range ci.ActiveCampaigns {
		if ci.ActiveCampaigns[i].Priority > top.Priority {
			top = &ci.ActiveCampaigns[i]
		}
	}
	return top
}

// LeadSource tags leads submitted by this service.
const LeadSource = "whatsapp_bot"

// LeadPayload is the qualifying data forwarded to the backend when a
// conversation completes successfully.
type LeadPayload struct {
	LeadID       string          `json:"lead_id"`
	Name         string          `json:"name"`
	Salary       string          `json:"salary"`
	Company      string          `json:"company"`
	Amount       string          `json:"amount"`
	Product      string          `json:"product"`
	Timestamp    time.Time       `json:"timestamp"`
	Source       string          `json:"source"`
	ClientData   json.RawMessage `json:"client_data,omitempty"`
	CampaignData json.RawMessage `json:"campaign_data,omitempty"`
}

// MessageStatus represents the delivery status of an outbound message.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

// Receipt records the delivery status of an outbound message.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Response represents an inbound message from a prospect.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// Error variables shared by the API layer.
var (
	ErrEmptyNumber  = errors.New("number is required")
	ErrEmptyMessage = errors.New("message is required")
)

// APIResponse is the standard JSON envelope for API endpoints.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: "ok", Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: "error", Error: message}
}
