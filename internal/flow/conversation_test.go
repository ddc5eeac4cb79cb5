package flow

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/andesbank/leadflow/internal/models"
	"github.com/andesbank/leadflow/internal/session"
)

// stubGateway is a canned backend for engine tests.
type stubGateway struct {
	profile     *models.ClientProfile
	campaigns   *models.CampaignInfo
	submitOK    bool
	submitted   []models.LeadPayload
	clientCalls int
}

func (g *stubGateway) FetchClient(ctx context.Context, phone string) (*models.ClientProfile, bool) {
	g.clientCalls++
	return g.profile, g.profile != nil
}

func (g *stubGateway) FetchCampaigns(ctx context.Context, phone string) (*models.CampaignInfo, bool) {
	return g.campaigns, g.campaigns != nil
}

func (g *stubGateway) SubmitLead(ctx context.Context, phone string, lead models.LeadPayload) bool {
	g.submitted = append(g.submitted, lead)
	return g.submitOK
}

func anaGateway(submitOK bool) *stubGateway {
	raw, _ := json.Marshal(map[string]interface{}{"name": "Ana", "segment": "standard"})
	return &stubGateway{
		profile: &models.ClientProfile{Name: "Ana", Segment: "standard", CreditScore: 680, MonthlyIncome: 1800, Raw: raw},
		campaigns: &models.CampaignInfo{ActiveCampaigns: []models.Campaign{
			{CampaignID: "c1", ProductType: "credito_personal", Priority: 1},
		}},
		submitOK: submitOK,
	}
}

const testPhone = "+593987654321"

func mustGet(t *testing.T, store session.Store, phone string) *models.Conversation {
	t.Helper()
	conv, err := store.Get(phone)
	if err != nil {
		t.Fatalf("store.Get error: %v", err)
	}
	return conv
}

func handle(t *testing.T, e *Engine, msg string) []string {
	t.Helper()
	replies, err := e.HandleMessage(context.Background(), testPhone, msg)
	if err != nil {
		t.Fatalf("HandleMessage(%q) error: %v", msg, err)
	}
	return replies
}

func TestFirstMessageGreetsAndWaitsForInterest(t *testing.T) {
	store := session.NewInMemoryStore()
	gw := anaGateway(true)
	e := NewEngine(store, WithGateway(gw))

	replies := handle(t, e, "hola")
	if len(replies) != 1 {
		t.Fatalf("replies = %d, want 1", len(replies))
	}
	if !strings.Contains(replies[0], "Ana") || !strings.Contains(replies[0], "préstamos personales") {
		t.Errorf("greeting should be personalized from the campaign bucket, got %q", replies[0])
	}

	conv := mustGet(t, store, testPhone)
	if conv == nil {
		t.Fatal("conversation record not created")
	}
	if conv.Step != models.StepWaitingInterest {
		t.Errorf("step = %q, want waiting_interest", conv.Step)
	}
	if conv.SelectedProduct != "credito_personal" {
		t.Errorf("product = %q, want credito_personal", conv.SelectedProduct)
	}
	if gw.clientCalls != 1 {
		t.Errorf("client fetches = %d, want 1", gw.clientCalls)
	}
}

func TestFirstMessageWithoutBackendUsesDefaults(t *testing.T) {
	store := session.NewInMemoryStore()
	e := NewEngine(store)

	replies := handle(t, e, "hola")
	if !strings.Contains(replies[0], models.DefaultUserName) {
		t.Errorf("greeting should use the default name, got %q", replies[0])
	}
	conv := mustGet(t, store, testPhone)
	if conv.SelectedProduct != models.DefaultProduct {
		t.Errorf("product = %q, want default", conv.SelectedProduct)
	}
}

func TestLiteralYesAdvancesToSalary(t *testing.T) {
	store := session.NewInMemoryStore()
	e := NewEngine(store, WithGateway(anaGateway(true)))

	handle(t, e, "hola")
	for _, yes := range []string{"si", "sí", "Sí", "  SI  "} {
		store.Delete(testPhone)
		handle(t, e, "hola")
		replies := handle(t, e, yes)
		conv := mustGet(t, store, testPhone)
		if conv.Step != models.StepWaitingSalary {
			t.Errorf("after %q step = %q, want waiting_salary", yes, conv.Step)
		}
		if !strings.Contains(replies[0], "ingresos") {
			t.Errorf("after %q reply should request income, got %q", yes, replies[0])
		}
	}
}

func TestLiteralNoMovesToQuestions(t *testing.T) {
	store := session.NewInMemoryStore()
	e := NewEngine(store, WithGateway(anaGateway(true)))

	handle(t, e, "hola")
	replies := handle(t, e, "no")

	conv := mustGet(t, store, testPhone)
	if conv.Step != models.StepWaitingQuestions {
		t.Errorf("step = %q, want waiting_questions", conv.Step)
	}
	if strings.Contains(replies[0], "ingresos") {
		t.Errorf("decline must not get a data prompt, got %q", replies[0])
	}
	if !strings.Contains(replies[0], "Entiendo") {
		t.Errorf("decline should get an empathetic reply, got %q", replies[0])
	}
}

func TestUnclearInterestStays(t *testing.T) {
	store := session.NewInMemoryStore()
	e := NewEngine(store, WithGateway(anaGateway(true)))

	handle(t, e, "hola")
	handle(t, e, "mmm quizás")

	conv := mustGet(t, store, testPhone)
	if conv.Step != models.StepWaitingInterest {
		t.Errorf("step = %q, want waiting_interest unchanged", conv.Step)
	}
}

func TestFullLeadFlowSubmitsAndDeletes(t *testing.T) {
	store := session.NewInMemoryStore()
	gw := anaGateway(true)
	e := NewEngine(store, WithGateway(gw))

	handle(t, e, "hola")
	handle(t, e, "si")
	handle(t, e, "2500")
	conv := mustGet(t, store, testPhone)
	if conv.Step != models.StepWaitingCompany || conv.Salary != "2500" {
		t.Fatalf("after salary: step %q salary %q", conv.Step, conv.Salary)
	}

	handle(t, e, "trabajo en Acme")
	conv = mustGet(t, store, testPhone)
	if conv.Step != models.StepWaitingAmount || conv.Company == "" {
		t.Fatalf("after company: step %q company %q", conv.Step, conv.Company)
	}

	replies := handle(t, e, "20000")
	if len(replies) != 2 {
		t.Fatalf("closing replies = %d, want summary + outcome", len(replies))
	}
	if !strings.Contains(replies[0], "20000") || !strings.Contains(replies[1], "24 a 48") {
		t.Errorf("closing messages = %q / %q", replies[0], replies[1])
	}

	if len(gw.submitted) != 1 {
		t.Fatalf("submitted leads = %d, want 1", len(gw.submitted))
	}
	lead := gw.submitted[0]
	if lead.Amount != "20000" || lead.Salary != "2500" || lead.Source != models.LeadSource {
		t.Errorf("lead payload = %+v", lead)
	}
	if lead.LeadID == "" {
		t.Error("lead ID not set")
	}

	if mustGet(t, store, testPhone) != nil {
		t.Error("record should be deleted after lead submission")
	}
}

func TestLeadSubmitFailureStillConcludes(t *testing.T) {
	store := session.NewInMemoryStore()
	e := NewEngine(store, WithGateway(anaGateway(false)))

	handle(t, e, "hola")
	handle(t, e, "si")
	handle(t, e, "2500")
	handle(t, e, "Acme")
	replies := handle(t, e, "20000")

	if len(replies) != 2 || !strings.Contains(replies[1], "manualmente") {
		t.Errorf("gateway failure should yield a manual follow-up outcome, got %v", replies)
	}
	if mustGet(t, store, testPhone) != nil {
		t.Error("record should be deleted even when submission fails")
	}
}

func TestRetryEscalationAtThree(t *testing.T) {
	store := session.NewInMemoryStore()
	e := NewEngine(store, WithGateway(anaGateway(true)))

	handle(t, e, "hola")
	handle(t, e, "si")

	first := handle(t, e, "no te importa")
	if !strings.Contains(first[0], "Por ejemplo") {
		t.Errorf("first retry should carry a hint, got %q", first[0])
	}
	conv := mustGet(t, store, testPhone)
	if conv.RetryCount != 1 || conv.Step != models.StepWaitingSalary {
		t.Fatalf("after 1st failure: retries %d step %q", conv.RetryCount, conv.Step)
	}

	second := handle(t, e, "tampoco")
	if strings.Contains(second[0], "Por ejemplo") {
		t.Errorf("second retry should not repeat the hint, got %q", second[0])
	}
	conv = mustGet(t, store, testPhone)
	if conv.RetryCount != 2 {
		t.Fatalf("after 2nd failure: retries %d", conv.RetryCount)
	}

	third := handle(t, e, "que pesado")
	conv = mustGet(t, store, testPhone)
	if conv.Step != models.StepWaitingHumanContact {
		t.Errorf("after 3rd failure step = %q, want waiting_human_contact", conv.Step)
	}
	if conv.RetryCount != 0 {
		t.Errorf("retry counter should reset on transition, got %d", conv.RetryCount)
	}
	if !strings.Contains(third[0], "asesor humano") {
		t.Errorf("escalation should offer a human, got %q", third[0])
	}
}

func TestRetryResetsOnSuccessfulTransition(t *testing.T) {
	store := session.NewInMemoryStore()
	e := NewEngine(store, WithGateway(anaGateway(true)))

	handle(t, e, "hola")
	handle(t, e, "si")
	handle(t, e, "no entiendo")
	handle(t, e, "2500")

	conv := mustGet(t, store, testPhone)
	if conv.Step != models.StepWaitingCompany || conv.RetryCount != 0 {
		t.Errorf("step %q retries %d, want waiting_company/0", conv.Step, conv.RetryCount)
	}
}

func TestEmotionalInterruptShortCircuits(t *testing.T) {
	store := session.NewInMemoryStore()
	fake := &fakeGenAI{replies: []string{
		`{"intention": "complaint", "confidence": 0.9, "product_interest": "none", "emotion": "frustrated", "next_action": ""}`,
	}}
	e := NewEngine(store, WithGateway(anaGateway(true)), WithGenAI(fake))

	// Seed a record at waiting_salary directly; the first turn would
	// otherwise consume the canned classifier reply.
	conv := &models.Conversation{
		ID: "test", Phone: testPhone, Name: "Ana",
		Step: models.StepWaitingSalary, SelectedProduct: models.DefaultProduct,
	}
	if err := store.Put(conv); err != nil {
		t.Fatal(err)
	}

	replies := handle(t, e, "2500 y dejame en paz")
	if !strings.Contains(replies[0], "Lamento") {
		t.Errorf("expected empathetic interrupt, got %q", replies[0])
	}

	after := mustGet(t, store, testPhone)
	if after.Step != models.StepWaitingSalary {
		t.Errorf("interrupt must not transition, step = %q", after.Step)
	}
	if after.Salary != "" {
		t.Errorf("interrupt must not record the salary, got %q", after.Salary)
	}
	if len(after.History) != 0 {
		t.Errorf("interrupt must leave the record untouched, history = %d turns", len(after.History))
	}
}

func TestHumanContactAffirmativeConcludes(t *testing.T) {
	store := session.NewInMemoryStore()
	e := NewEngine(store, WithGateway(anaGateway(true)))

	conv := &models.Conversation{
		ID: "test", Phone: testPhone, Name: "Ana",
		Step: models.StepWaitingHumanContact, SelectedProduct: models.DefaultProduct,
	}
	store.Put(conv)

	replies := handle(t, e, "si")
	if !strings.Contains(replies[0], "asesor") {
		t.Errorf("handoff confirmation expected, got %q", replies[0])
	}
	if mustGet(t, store, testPhone) != nil {
		t.Error("record should be deleted after accepted handoff")
	}
}

func TestHumanContactOtherwiseReturnsToInterest(t *testing.T) {
	store := session.NewInMemoryStore()
	e := NewEngine(store, WithGateway(anaGateway(true)))

	conv := &models.Conversation{
		ID: "test", Phone: testPhone, Name: "Ana",
		Step: models.StepWaitingHumanContact, SelectedProduct: models.DefaultProduct,
	}
	store.Put(conv)

	handle(t, e, "mejor sigamos")
	after := mustGet(t, store, testPhone)
	if after == nil || after.Step != models.StepWaitingInterest {
		t.Errorf("declined handoff should return to waiting_interest, got %+v", after)
	}
}

func TestQuestionsClosureConcludes(t *testing.T) {
	store := session.NewInMemoryStore()
	e := NewEngine(store, WithGateway(anaGateway(true)))

	handle(t, e, "hola")
	handle(t, e, "no")
	replies := handle(t, e, "no")

	if !strings.Contains(replies[0], "Gracias por tu tiempo") {
		t.Errorf("closure should get a goodbye, got %q", replies[0])
	}
	if mustGet(t, store, testPhone) != nil {
		t.Error("record should be deleted after closure")
	}
}

func TestQuestionsAnsweredWithCannedFallback(t *testing.T) {
	store := session.NewInMemoryStore()
	e := NewEngine(store, WithGateway(anaGateway(true)))

	handle(t, e, "hola")
	handle(t, e, "no")
	replies := handle(t, e, "¿qué tasas manejan?")

	if !strings.Contains(replies[0], "tasas preferenciales") {
		t.Errorf("question without LLM should get the canned answer, got %q", replies[0])
	}
	conv := mustGet(t, store, testPhone)
	if conv == nil || conv.Step != models.StepWaitingQuestions {
		t.Errorf("answering a question should stay in waiting_questions, got %+v", conv)
	}
}

func TestUnknownStepResetsToInterest(t *testing.T) {
	store := session.NewInMemoryStore()
	e := NewEngine(store, WithGateway(anaGateway(true)))

	conv := &models.Conversation{
		ID: "test", Phone: testPhone, Name: "Ana",
		Step: models.Step("legacy_step"), SelectedProduct: models.DefaultProduct,
	}
	store.Put(conv)

	replies := handle(t, e, "hola?")
	if !strings.Contains(replies[0], "retomemos") {
		t.Errorf("unknown step should get the generic fallback, got %q", replies[0])
	}
	after := mustGet(t, store, testPhone)
	if after.Step != models.StepWaitingInterest {
		t.Errorf("unknown step should reset to waiting_interest, got %q", after.Step)
	}
}

func TestHistoryAccumulates(t *testing.T) {
	store := session.NewInMemoryStore()
	e := NewEngine(store, WithGateway(anaGateway(true)))

	handle(t, e, "hola")
	handle(t, e, "si")

	conv := mustGet(t, store, testPhone)
	if len(conv.History) != 4 {
		t.Errorf("history = %d turns, want 4 (two exchanges)", len(conv.History))
	}
	if conv.History[0].Role != "user" || conv.History[1].Role != "assistant" {
		t.Errorf("history roles off: %+v", conv.History[:2])
	}
}
