package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andesbank/leadflow/internal/genai"
	"github.com/andesbank/leadflow/internal/models"
	"github.com/andesbank/leadflow/internal/phone"
	"github.com/andesbank/leadflow/internal/session"
)

// Gateway is the backend surface the engine depends on. All lookups are
// absent-on-failure; lead submission reports success as a boolean.
type Gateway interface {
	FetchClient(ctx context.Context, phone string) (*models.ClientProfile, bool)
	FetchCampaigns(ctx context.Context, phone string) (*models.CampaignInfo, bool)
	SubmitLead(ctx context.Context, phone string, lead models.LeadPayload) bool
}

// Opts holds configuration options for the conversation engine.
type Opts struct {
	Gateway Gateway
	GenAI   genai.ClientInterface
}

// Option defines a configuration option for the conversation engine.
type Option func(*Opts)

// WithGateway sets the backend gateway.
func WithGateway(g Gateway) Option {
	return func(o *Opts) {
		o.Gateway = g
	}
}

// WithGenAI sets the GenAI client used by the classifier, validator and
// question answering.
func WithGenAI(c genai.ClientInterface) Option {
	return func(o *Opts) {
		o.GenAI = c
	}
}

// Engine is the dialogue state machine. It holds one conversation record per
// phone and serializes the read-modify-write cycle per phone with a keyed
// mutex so concurrent messages from the same user cannot race.
type Engine struct {
	store      session.Store
	gateway    Gateway
	classifier *Classifier
	validator  *Validator
	genai      genai.ClientInterface

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates an engine over the given session store, applying any
// provided options. Gateway and GenAI client are both optional; missing
// collaborators degrade to generic behavior.
func NewEngine(store session.Store, opts ...Option) *Engine {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Engine created", "gateway_set", cfg.Gateway != nil, "genai_set", cfg.GenAI != nil)
	return &Engine{
		store:      store,
		gateway:    cfg.Gateway,
		classifier: NewClassifier(cfg.GenAI),
		validator:  NewValidator(cfg.GenAI),
		genai:      cfg.GenAI,
		locks:      make(map[string]*sync.Mutex),
	}
}

// HandleMessage processes one inbound message and returns the outbound
// replies for that turn, in send order.
func (e *Engine) HandleMessage(ctx context.Context, phoneNumber, message string) ([]string, error) {
	lock := e.phoneLock(phoneNumber)
	lock.Lock()
	defer lock.Unlock()

	conv, err := e.store.Get(phoneNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation for %s: %w", phone.Mask(phoneNumber), err)
	}
	if conv == nil {
		return e.startConversation(ctx, phoneNumber, message)
	}

	intent := e.classifier.Classify(ctx, message, conv)

	// The emotional interrupt wins over every step branch. The record is
	// left untouched so the next message resumes where the user was.
	if intent.Emotion.IsDistressed() {
		slog.Info("Engine emotional interrupt", "phone", phone.Mask(phoneNumber), "emotion", intent.Emotion, "step", conv.Step)
		return []string{fmt.Sprintf("Lamento que te sientas así, %s. Estoy aquí para ayudarte, sin ningún compromiso. Cuando quieras, seguimos. 🤝", conv.Name)}, nil
	}

	conv.AddTurn("user", message)

	var replies []string
	terminal := false

	switch conv.Step {
	case models.StepWaitingInterest:
		replies = e.handleInterest(conv, message, intent)
	case models.StepWaitingSalary:
		replies = e.handleField(ctx, conv, message, models.FieldSalary)
	case models.StepWaitingCompany:
		replies = e.handleField(ctx, conv, message, models.FieldCompany)
	case models.StepWaitingAmount:
		replies, terminal = e.handleAmount(ctx, conv, message)
	case models.StepWaitingHumanContact:
		replies, terminal = e.handleHumanContact(conv, message, intent)
	case models.StepWaitingQuestions:
		replies, terminal = e.handleQuestions(ctx, conv, message, intent)
	default:
		slog.Warn("Engine found record in unexpected step, resetting", "phone", phone.Mask(phoneNumber), "step", conv.Step)
		conv.Step = models.StepWaitingInterest
		conv.RetryCount = 0
		replies = []string{fmt.Sprintf("Disculpa %s, retomemos. ¿Te interesa conocer más sobre nuestra oferta?", conv.Name)}
	}

	if terminal {
		if err := e.store.Delete(phoneNumber); err != nil {
			slog.Error("Engine failed to delete concluded conversation", "error", err, "phone", phone.Mask(phoneNumber))
		}
		return replies, nil
	}

	for _, reply := range replies {
		conv.AddTurn("assistant", reply)
	}
	conv.UpdatedAt = time.Now()
	if err := e.store.Put(conv); err != nil {
		return nil, fmt.Errorf("failed to save conversation for %s: %w", phone.Mask(phoneNumber), err)
	}
	return replies, nil
}

// ActiveConversations reports the current session count for health checks.
func (e *Engine) ActiveConversations() int {
	count, err := e.store.Count()
	if err != nil {
		slog.Warn("Engine failed to count conversations", "error", err)
		return 0
	}
	return count
}

// startConversation creates the record and emits the personalized greeting.
func (e *Engine) startConversation(ctx context.Context, phoneNumber, message string) ([]string, error) {
	var profile *models.ClientProfile
	var campaigns *models.CampaignInfo
	if e.gateway != nil {
		profile, _ = e.gateway.FetchClient(ctx, phoneNumber)
		campaigns, _ = e.gateway.FetchCampaigns(ctx, phoneNumber)
	}

	name := models.DefaultUserName
	if profile != nil && profile.Name != "" {
		name = profile.Name
	}
	product := models.DefaultProduct
	if campaigns != nil {
		if top := campaigns.Top(); top != nil && top.ProductType != "" {
			product = top.ProductType
		}
	}

	now := time.Now()
	conv := &models.Conversation{
		ID:              uuid.New().String(),
		Phone:           phoneNumber,
		Name:            name,
		Step:            models.StepWaitingInterest,
		SelectedProduct: product,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if profile != nil {
		conv.ClientData = profile.Raw
	}
	if campaigns != nil {
		conv.CampaignData = campaigns.Raw
	}

	greeting := Greeting(profile, campaigns, name)
	conv.AddTurn("user", message)
	conv.AddTurn("assistant", greeting)

	if err := e.store.Put(conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation for %s: %w", phone.Mask(phoneNumber), err)
	}
	slog.Info("Engine started conversation", "phone", phone.Mask(phoneNumber), "name", name, "product", product)
	return []string{greeting}, nil
}

// handleInterest resolves the yes/no decision after the greeting. Literal
// answers win over classifier intents.
func (e *Engine) handleInterest(conv *models.Conversation, message string, intent models.IntentResult) []string {
	lower := strings.ToLower(strings.TrimSpace(message))

	switch {
	case lower == "si" || lower == "sí" || intent.Intention == models.IntentionInterestConfirm:
		conv.Step = models.StepWaitingSalary
		conv.RetryCount = 0
		return []string{fmt.Sprintf("¡Excelente %s! Para ofrecerte la mejor opción, ¿cuáles son tus ingresos mensuales aproximados?", conv.Name)}

	case lower == "no" || intent.Intention == models.IntentionInterestDecline:
		conv.Step = models.StepWaitingQuestions
		conv.RetryCount = 0
		return []string{fmt.Sprintf("Entiendo perfectamente, %s. Gracias por tu tiempo. Si tienes alguna pregunta sobre nuestros productos, con gusto te la respondo.", conv.Name)}

	case intent.Intention == models.IntentionChangingProduct && intent.ProductInterest != "none" && intent.ProductInterest != "":
		conv.SelectedProduct = intent.ProductInterest
		return []string{fmt.Sprintf("¡Claro %s! También tenemos opciones de %s. ¿Te interesa que te cuente más?", conv.Name, intent.ProductInterest)}

	default:
		return []string{fmt.Sprintf("%s, ¿te interesa conocer más sobre esta oferta? Puedes responderme sí o no.", conv.Name)}
	}
}

// handleField runs the shared validate-store-advance pattern for the salary
// and company steps.
func (e *Engine) handleField(ctx context.Context, conv *models.Conversation, message string, field models.FieldType) []string {
	result := e.validator.Validate(ctx, field, message, conv.Name)
	if !result.IsValid {
		return e.rejectField(conv, field, result)
	}

	conv.RetryCount = 0
	switch field {
	case models.FieldSalary:
		conv.Salary = result.ExtractedValue
		conv.Step = models.StepWaitingCompany
		return []string{fmt.Sprintf("Perfecto %s. ¿En qué empresa trabajas o a qué te dedicas?", conv.Name)}
	case models.FieldCompany:
		conv.Company = result.ExtractedValue
		conv.Step = models.StepWaitingAmount
		return []string{fmt.Sprintf("Gracias %s. ¿Qué monto te gustaría solicitar? Recuerda que el mínimo es $1000.", conv.Name)}
	}
	return nil
}

// handleAmount is the lead-closing step. Acceptance submits the lead and
// concludes the session regardless of the gateway outcome.
func (e *Engine) handleAmount(ctx context.Context, conv *models.Conversation, message string) ([]string, bool) {
	result := e.validator.Validate(ctx, models.FieldAmount, message, conv.Name)
	if !result.IsValid {
		return e.rejectField(conv, models.FieldAmount, result), false
	}

	conv.Amount = result.ExtractedValue
	lead := models.LeadPayload{
		LeadID:       uuid.New().String(),
		Name:         conv.Name,
		Salary:       conv.Salary,
		Company:      conv.Company,
		Amount:       conv.Amount,
		Product:      conv.SelectedProduct,
		Timestamp:    time.Now(),
		Source:       models.LeadSource,
		ClientData:   conv.ClientData,
		CampaignData: conv.CampaignData,
	}

	submitted := false
	if e.gateway != nil {
		submitted = e.gateway.SubmitLead(ctx, conv.Phone, lead)
	}

	summary := fmt.Sprintf("¡Perfecto %s! Este es el resumen de tu solicitud:\n• Ingresos: $%s\n• Empresa: %s\n• Monto: $%s\n• Producto: %s",
		conv.Name, conv.Salary, conv.Company, conv.Amount, conv.SelectedProduct)

	var outcome string
	if submitted {
		outcome = "✅ Tu solicitud fue registrada. Un asesor se contactará contigo en las próximas 24 a 48 horas. ¡Gracias por confiar en nosotros!"
	} else {
		outcome = "Registré tus datos y un asesor los procesará manualmente. Te contactaremos pronto. ¡Gracias por tu paciencia!"
	}

	slog.Info("Engine lead flow concluded", "phone", phone.Mask(conv.Phone), "lead_id", lead.LeadID, "submitted", submitted)
	return []string{summary, outcome}, true
}

// handleHumanContact resolves the handoff offer made after repeated
// validation failures.
func (e *Engine) handleHumanContact(conv *models.Conversation, message string, intent models.IntentResult) ([]string, bool) {
	if isAffirmative(message) || intent.Intention == models.IntentionInterestConfirm {
		slog.Info("Engine human handoff accepted", "phone", phone.Mask(conv.Phone))
		return []string{fmt.Sprintf("¡Listo %s! Un asesor se pondrá en contacto contigo muy pronto. ¡Gracias por tu tiempo!", conv.Name)}, true
	}

	conv.Step = models.StepWaitingInterest
	conv.RetryCount = 0
	return []string{fmt.Sprintf("No hay problema, %s. Sigamos entonces. ¿Te interesa conocer más sobre la oferta?", conv.Name)}, false
}

// handleQuestions answers follow-up questions after a decline. A closure or
// decline signal ends the session.
func (e *Engine) handleQuestions(ctx context.Context, conv *models.Conversation, message string, intent models.IntentResult) ([]string, bool) {
	lower := strings.ToLower(strings.TrimSpace(message))
	if lower == "no" || intent.Intention == models.IntentionClosure || intent.Intention == models.IntentionInterestDecline {
		return []string{fmt.Sprintf("Gracias por tu tiempo, %s. Si en el futuro cambias de opinión, aquí estaré. ¡Que tengas un excelente día! 👋", conv.Name)}, true
	}

	answer := e.answerQuestion(ctx, conv, message)
	return []string{answer}, false
}

// answerQuestion asks the LLM for a product answer, with a canned fallback.
func (e *Engine) answerQuestion(ctx context.Context, conv *models.Conversation, message string) string {
	if e.genai != nil {
		systemPrompt := fmt.Sprintf("Eres un asesor bancario amable. Responde en español, en máximo tres frases, la pregunta de %s sobre productos de crédito. No inventes tasas ni condiciones exactas.", conv.Name)
		if answer, err := e.genai.GeneratePrompt(ctx, systemPrompt, message); err == nil && strings.TrimSpace(answer) != "" {
			return answer
		} else if err != nil {
			slog.Warn("Engine question answering failed, using canned reply", "error", err)
		}
	}
	return fmt.Sprintf("Con gusto, %s: ofrecemos créditos con tasas preferenciales y aprobación rápida. ¿Hay algo más que quieras saber?", conv.Name)
}

// rejectField applies the shared retry bookkeeping: echo the validator
// message, add a hint on the first retry, escalate to the human-contact offer
// at the third consecutive failure.
func (e *Engine) rejectField(conv *models.Conversation, field models.FieldType, result models.ValidationResult) []string {
	conv.RetryCount++
	if conv.RetryCount >= models.MaxFieldRetries {
		conv.Step = models.StepWaitingHumanContact
		conv.RetryCount = 0
		slog.Info("Engine escalating to human contact", "phone", phone.Mask(conv.Phone), "field", field)
		return []string{fmt.Sprintf("%s, parece que estoy teniendo dificultades para entenderte y no quiero hacerte perder tiempo. ¿Prefieres que un asesor humano te contacte?", conv.Name)}
	}

	reply := result.Message
	if reply == "" {
		reply = fmt.Sprintf("%s, no logré entender tu respuesta. ¿Me la puedes repetir?", conv.Name)
	}
	if conv.RetryCount == 1 {
		reply += " " + fieldHint(field)
	}
	return []string{reply}
}

func fieldHint(field models.FieldType) string {
	switch field {
	case models.FieldSalary:
		return "Por ejemplo: 2500 o 2.5k."
	case models.FieldCompany:
		return "Por ejemplo: trabajo en Banco Andes, o tengo mi propio negocio."
	case models.FieldAmount:
		return "Por ejemplo: 20000."
	}
	return ""
}

func isAffirmative(message string) bool {
	switch strings.ToLower(strings.TrimSpace(message)) {
	case "si", "sí", "claro", "ok", "dale", "por supuesto", "bueno":
		return true
	}
	return false
}

// phoneLock returns the mutex guarding one phone's record.
func (e *Engine) phoneLock(phoneNumber string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[phoneNumber]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[phoneNumber] = lock
	}
	return lock
}
