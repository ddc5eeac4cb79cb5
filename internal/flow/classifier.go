package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/andesbank/leadflow/internal/genai"
	"github.com/andesbank/leadflow/internal/models"
)

const classifierSystemPrompt = `Eres un clasificador de intenciones para un asistente bancario por WhatsApp.
Analiza el último mensaje del usuario dentro del contexto de la conversación y responde ÚNICAMENTE con un objeto JSON, sin texto adicional, con esta forma exacta:
{"intention": "...", "confidence": 0.0, "product_interest": "...", "emotion": "...", "next_action": "..."}

intention debe ser una de: greeting, interest_confirm, interest_decline, asking_info, providing_data, changing_product, complaint, closure, unknown.
emotion debe ser una de: positive, neutral, negative, frustrated.
product_interest debe ser un producto mencionado (credito_personal, tarjeta_credito, hipoteca) o "none".
confidence es un número entre 0 y 1.
next_action es una sugerencia breve en español.`

// Classifier turns free-text messages into structured intent records.
type Classifier struct {
	genai genai.ClientInterface
}

// NewClassifier creates a classifier backed by the given GenAI client. A nil
// client is allowed; classification then always returns the default record.
func NewClassifier(client genai.ClientInterface) *Classifier {
	return &Classifier{genai: client}
}

// Classify runs one classification round-trip. Any failure returns the
// default record; the engine treats it as a fall-through signal.
func (c *Classifier) Classify(ctx context.Context, message string, conv *models.Conversation) models.IntentResult {
	if c.genai == nil {
		return models.DefaultIntentResult()
	}

	userPrompt := fmt.Sprintf("Contexto de la conversación:\n%s\n\nÚltimo mensaje del usuario: %q", renderSummary(conv), message)

	raw, err := c.genai.GeneratePrompt(ctx, classifierSystemPrompt, userPrompt)
	if err != nil {
		slog.Warn("Classifier LLM call failed, using default intent", "error", err)
		return models.DefaultIntentResult()
	}

	var result models.IntentResult
	if err := json.Unmarshal([]byte(StripCodeFences(raw)), &result); err != nil {
		slog.Warn("Classifier returned malformed JSON, using default intent", "error", err, "raw_length", len(raw))
		return models.DefaultIntentResult()
	}

	if !validIntention(result.Intention) {
		result.Intention = models.IntentionUnknown
	}
	if !validEmotion(result.Emotion) {
		result.Emotion = models.EmotionNeutral
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		result.Confidence = 0
	}
	if result.ProductInterest == "" {
		result.ProductInterest = "none"
	}

	slog.Debug("Classifier result", "intention", result.Intention, "emotion", result.Emotion, "confidence", result.Confidence)
	return result
}

// renderSummary flattens the conversation record into the textual context the
// classifier prompt expects.
func renderSummary(conv *models.Conversation) string {
	if conv == nil {
		return "Conversación nueva, sin datos previos."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Nombre: %s\n", conv.Name)
	fmt.Fprintf(&b, "Paso actual: %s\n", conv.Step)
	fmt.Fprintf(&b, "Producto: %s\n", conv.SelectedProduct)
	if conv.Salary != "" {
		fmt.Fprintf(&b, "Ingresos: %s\n", conv.Salary)
	}
	if conv.Company != "" {
		fmt.Fprintf(&b, "Empresa: %s\n", conv.Company)
	}
	if conv.Amount != "" {
		fmt.Fprintf(&b, "Monto: %s\n", conv.Amount)
	}

	// Keep only the last few turns to bound prompt size.
	history := conv.History
	if len(history) > 6 {
		history = history[len(history)-6:]
	}
	for _, turn := range history {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
	}
	return b.String()
}

func validIntention(i models.Intention) bool {
	switch i {
	case models.IntentionGreeting, models.IntentionInterestConfirm, models.IntentionInterestDecline,
		models.IntentionAskingInfo, models.IntentionProvidingData, models.IntentionChangingProduct,
		models.IntentionComplaint, models.IntentionClosure, models.IntentionUnknown:
		return true
	default:
		return false
	}
}

func validEmotion(e models.Emotion) bool {
	switch e {
	case models.EmotionPositive, models.EmotionNeutral, models.EmotionNegative, models.EmotionFrustrated:
		return true
	default:
		return false
	}
}
