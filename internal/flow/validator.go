package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/andesbank/leadflow/internal/genai"
	"github.com/andesbank/leadflow/internal/models"
)

// numberPattern matches a numeric token with optional thousand separators,
// decimals and a "k"/"mil" abbreviation.
var numberPattern = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)*)\s*(k\b|mil\b)?`)

// nonEmploymentKeywords mark explicit statements of no employment; the
// employer field rejects these outright.
var nonEmploymentKeywords = []string{
	"desempleado", "desempleada", "sin trabajo", "no trabajo",
	"sin empleo", "nada", "ninguno", "ninguna",
}

const validatorSystemPrompt = `Eres un validador de datos para un asistente bancario.
Valida el dato del usuario y responde ÚNICAMENTE con un objeto JSON, sin texto adicional:
{"isValid": true/false, "extractedValue": "valor normalizado", "message": "mensaje breve en español para el usuario"}

Reglas:
- salary: válido si hay un valor numérico positivo de ingresos mensuales.
- company: válido si hay un empleador u ocupación; "desempleado" o "nada" es inválido.
- amount: válido si hay un monto numérico de al menos 1000.`

// Validator checks free-text answers to the qualifying questions.
type Validator struct {
	genai genai.ClientInterface
}

// NewValidator creates a validator. A nil GenAI client is allowed; only the
// deterministic extraction then runs.
func NewValidator(client genai.ClientInterface) *Validator {
	return &Validator{genai: client}
}

// Validate checks one field value. Deterministic extraction runs first; only
// when it is inconclusive and a GenAI client is configured does the LLM get
// asked. Any LLM failure degrades to invalid with a generic retry message.
func (v *Validator) Validate(ctx context.Context, field models.FieldType, raw, userName string) models.ValidationResult {
	if userName == "" {
		userName = models.DefaultUserName
	}

	if result, conclusive := v.validateLocally(field, raw, userName); conclusive {
		slog.Debug("Validator resolved locally", "field", field, "valid", result.IsValid)
		return result
	}

	if v.genai == nil {
		return retryResult(field, userName)
	}

	userPrompt := fmt.Sprintf("Campo: %s\nUsuario: %s\nRespuesta: %q", field, userName, raw)
	reply, err := v.genai.GeneratePrompt(ctx, validatorSystemPrompt, userPrompt)
	if err != nil {
		slog.Warn("Validator LLM call failed", "error", err, "field", field)
		return retryResult(field, userName)
	}

	var result models.ValidationResult
	if err := json.Unmarshal([]byte(StripCodeFences(reply)), &result); err != nil {
		slog.Warn("Validator returned malformed JSON", "error", err, "field", field)
		return retryResult(field, userName)
	}

	// The LLM cannot waive the amount floor.
	if field == models.FieldAmount && result.IsValid {
		if value, ok := parseAmount(result.ExtractedValue); !ok || value < models.MinLeadAmount {
			return belowMinimumResult(userName)
		}
	}

	slog.Debug("Validator resolved via LLM", "field", field, "valid", result.IsValid)
	return result
}

// validateLocally runs the deterministic extraction. The second return value
// reports whether the outcome is conclusive.
func (v *Validator) validateLocally(field models.FieldType, raw, userName string) (models.ValidationResult, bool) {
	trimmed := strings.TrimSpace(raw)

	switch field {
	case models.FieldSalary:
		value, found := extractNumber(trimmed)
		if !found {
			return models.ValidationResult{}, false
		}
		if value <= 0 {
			return models.ValidationResult{
				IsValid: false,
				Message: fmt.Sprintf("%s, necesito un valor de ingresos mayor a cero. ¿Cuánto ganas al mes aproximadamente?", userName),
			}, true
		}
		return models.ValidationResult{IsValid: true, ExtractedValue: formatNumber(value)}, true

	case models.FieldCompany:
		lower := strings.ToLower(trimmed)
		for _, kw := range nonEmploymentKeywords {
			if strings.Contains(lower, kw) {
				return models.ValidationResult{
					IsValid: false,
					Message: fmt.Sprintf("%s, para continuar necesito saber dónde trabajas o a qué te dedicas.", userName),
				}, true
			}
		}
		if len(trimmed) < 2 {
			return models.ValidationResult{
				IsValid: false,
				Message: fmt.Sprintf("%s, ¿me puedes contar en qué empresa trabajas o cuál es tu ocupación?", userName),
			}, true
		}
		return models.ValidationResult{IsValid: true, ExtractedValue: trimmed}, true

	case models.FieldAmount:
		value, found := extractNumber(trimmed)
		if !found {
			return models.ValidationResult{}, false
		}
		if value < models.MinLeadAmount {
			return belowMinimumResult(userName), true
		}
		return models.ValidationResult{IsValid: true, ExtractedValue: formatNumber(value)}, true
	}

	return models.ValidationResult{}, false
}

// extractNumber finds the first numeric token in the text. It handles
// thousand separators ("2,500"), decimals and "k"/"mil" abbreviations
// ("2.5k" reads as 2500).
func extractNumber(s string) (float64, bool) {
	match := numberPattern.FindStringSubmatch(s)
	if match == nil || match[1] == "" {
		return 0, false
	}

	token := match[1]
	hasSuffix := match[2] != ""

	normalized := normalizeNumericToken(token)
	value, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, false
	}
	if hasSuffix {
		value *= 1000
	}
	return value, true
}

// normalizeNumericToken rewrites a localized numeric token into strconv form.
// A separator followed by exactly three digits is a thousands separator; a
// trailing separator with one or two digits is a decimal point.
func normalizeNumericToken(token string) string {
	lastSep := strings.LastIndexAny(token, ".,")
	if lastSep == -1 {
		return token
	}
	decimals := ""
	if len(token)-lastSep-1 != 3 {
		decimals = "." + token[lastSep+1:]
		token = token[:lastSep]
	}
	token = strings.NewReplacer(",", "", ".", "").Replace(token)
	return token + decimals
}

func parseAmount(s string) (float64, bool) {
	return extractNumber(strings.TrimSpace(s))
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func belowMinimumResult(userName string) models.ValidationResult {
	return models.ValidationResult{
		IsValid: false,
		Message: fmt.Sprintf("%s, el monto mínimo que manejamos es de $1000. ¿Qué monto a partir de ese valor te interesa?", userName),
	}
}

func retryResult(field models.FieldType, userName string) models.ValidationResult {
	questions := map[models.FieldType]string{
		models.FieldSalary:  "¿Cuáles son tus ingresos mensuales aproximados?",
		models.FieldCompany: "¿En qué empresa trabajas o a qué te dedicas?",
		models.FieldAmount:  "¿Qué monto te gustaría solicitar?",
	}
	return models.ValidationResult{
		IsValid: false,
		Message: fmt.Sprintf("%s, no logré entender tu respuesta. %s", userName, questions[field]),
	}
}
