package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/andesbank/leadflow/internal/models"
)

func TestClassifyParsesStructuredReply(t *testing.T) {
	fake := &fakeGenAI{replies: []string{
		`{"intention": "interest_confirm", "confidence": 0.92, "product_interest": "credito_personal", "emotion": "positive", "next_action": "pedir ingresos"}`,
	}}
	c := NewClassifier(fake)

	conv := &models.Conversation{Name: "Ana", Step: models.StepWaitingInterest, SelectedProduct: models.DefaultProduct}
	got := c.Classify(context.Background(), "si, me interesa", conv)

	if got.Intention != models.IntentionInterestConfirm {
		t.Errorf("intention = %q, want interest_confirm", got.Intention)
	}
	if got.Emotion != models.EmotionPositive || got.Confidence != 0.92 {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestClassifyStripsFences(t *testing.T) {
	fake := &fakeGenAI{replies: []string{
		"```json\n{\"intention\": \"interest_decline\", \"confidence\": 0.8, \"product_interest\": \"none\", \"emotion\": \"neutral\", \"next_action\": \"despedirse\"}\n```",
	}}
	got := NewClassifier(fake).Classify(context.Background(), "no gracias", nil)
	if got.Intention != models.IntentionInterestDecline {
		t.Errorf("intention = %q, want interest_decline", got.Intention)
	}
}

func TestClassifyDefaultsOnFailure(t *testing.T) {
	cases := []struct {
		name string
		fake *fakeGenAI
	}{
		{"transport error", &fakeGenAI{err: errors.New("timeout")}},
		{"malformed json", &fakeGenAI{replies: []string{"no soy json"}}},
		{"nil client", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var c *Classifier
			if tc.fake == nil {
				c = NewClassifier(nil)
			} else {
				c = NewClassifier(tc.fake)
			}
			got := c.Classify(context.Background(), "hola", nil)
			want := models.DefaultIntentResult()
			if got != want {
				t.Errorf("Classify = %+v, want default %+v", got, want)
			}
		})
	}
}

func TestClassifySanitizesOutOfRangeValues(t *testing.T) {
	fake := &fakeGenAI{replies: []string{
		`{"intention": "buy_now", "confidence": 7.5, "product_interest": "", "emotion": "angry", "next_action": ""}`,
	}}
	got := NewClassifier(fake).Classify(context.Background(), "quiero todo", nil)

	if got.Intention != models.IntentionUnknown {
		t.Errorf("unknown intention should be sanitized, got %q", got.Intention)
	}
	if got.Emotion != models.EmotionNeutral {
		t.Errorf("unknown emotion should be sanitized, got %q", got.Emotion)
	}
	if got.Confidence != 0 {
		t.Errorf("out-of-range confidence should reset to 0, got %v", got.Confidence)
	}
	if got.ProductInterest != "none" {
		t.Errorf("empty product interest should become none, got %q", got.ProductInterest)
	}
}

func TestClassifySummaryIncludesCollectedFields(t *testing.T) {
	fake := &fakeGenAI{replies: []string{
		`{"intention": "providing_data", "confidence": 0.9, "product_interest": "none", "emotion": "neutral", "next_action": ""}`,
	}}
	conv := &models.Conversation{
		Name: "Ana", Step: models.StepWaitingCompany,
		SelectedProduct: models.DefaultProduct, Salary: "2500",
	}
	NewClassifier(fake).Classify(context.Background(), "trabajo en Acme", conv)

	if len(fake.prompts) != 1 {
		t.Fatalf("expected one prompt, got %d", len(fake.prompts))
	}
	prompt := fake.prompts[0]
	for _, want := range []string{"Ana", "waiting_company", "2500", "trabajo en Acme"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
