// Package flow implements the LeadFlow dialogue: greeting generation, intent
// classification, answer validation and the conversation engine that ties
// them together.
package flow

import (
	"fmt"

	"github.com/andesbank/leadflow/internal/models"
)

// greetingVariants holds the four template variants of one product bucket, in
// ladder order: premium segment, high credit score, high income, default.
// Each template takes the user name.
type greetingVariants struct {
	premium    string
	highScore  string
	highIncome string
	standard   string
}

// Ladder thresholds for greeting variant selection.
const (
	highScoreThreshold  = 750
	highIncomeThreshold = 2000.0
)

var greetingBuckets = map[string]greetingVariants{
	"credito_personal": {
		premium:    "¡Hola %s! 👋 Como cliente preferencial, tenemos préstamos personales con condiciones exclusivas para ti. ¿Te interesa conocer tu oferta?",
		highScore:  "¡Hola %s! 👋 Tu excelente historial crediticio te califica para nuestros mejores préstamos personales. ¿Quieres conocer las opciones?",
		highIncome: "¡Hola %s! 👋 Tenemos préstamos personales con tasas preferenciales que se ajustan a tu perfil. ¿Te gustaría conocer más?",
		standard:   "¡Hola %s! 👋 Te contacto porque tenemos préstamos personales con tasas preferenciales. ¿Te interesa conocer las opciones?",
	},
	"tarjeta_credito": {
		premium:    "¡Hola %s! 👋 Como cliente preferencial, tengo una tarjeta de crédito con beneficios exclusivos para ti. ¿Te gustaría conocerla?",
		highScore:  "¡Hola %s! 👋 Tu historial crediticio te califica para nuestra mejor tarjeta de crédito. ¿Te interesa conocer los beneficios?",
		highIncome: "¡Hola %s! 👋 Tengo una excelente oportunidad de tarjeta de crédito acorde a tu perfil. ¿Quieres conocer más?",
		standard:   "¡Hola %s! 👋 Soy tu asesor financiero virtual. Tengo una excelente oportunidad de tarjeta de crédito para ti. ¿Te interesa?",
	},
	"hipoteca": {
		premium:    "¡Hola %s! 👋 Como cliente preferencial, tenemos créditos hipotecarios con condiciones exclusivas. ¿Te gustaría conocer tu oferta?",
		highScore:  "¡Hola %s! 👋 Tu excelente historial te abre las puertas a nuestros mejores créditos hipotecarios. ¿Quieres conocer las opciones?",
		highIncome: "¡Hola %s! 👋 Tenemos opciones de crédito hipotecario que se ajustan muy bien a tu perfil. ¿Te interesa conocer más?",
		standard:   "¡Hola %s! 👋 Tenemos opciones de crédito hipotecario que te pueden interesar. ¿Quieres conocer más?",
	},
}

var genericGreetings = greetingVariants{
	premium:    "¡Hola %s! 👋 Como cliente preferencial, tengo información financiera exclusiva para ti. ¿Te gustaría conocerla?",
	highScore:  "¡Hola %s! 👋 Tu excelente perfil crediticio te califica para nuestras mejores ofertas. ¿Te interesa conocerlas?",
	highIncome: "¡Hola %s! 👋 Tengo opciones financieras que se ajustan muy bien a tu perfil. ¿Quieres conocer más?",
	standard:   "¡Hola %s! 👋 Tengo información financiera importante para ti. ¿Te gustaría conocerla?",
}

// Greeting builds the personalized first message. It is pure and
// deterministic: the bucket comes from the top active campaign's product type
// (generic fallback), the variant from a fixed priority ladder over segment,
// credit score and monthly income, first match wins. A campaign max-amount
// clause is appended when present.
func Greeting(profile *models.ClientProfile, campaigns *models.CampaignInfo, userName string) string {
	if userName == "" {
		userName = models.DefaultUserName
	}

	variants := genericGreetings
	var top *models.Campaign
	if campaigns != nil {
		top = campaigns.Top()
	}
	if top != nil {
		if bucket, ok := greetingBuckets[top.ProductType]; ok {
			variants = bucket
		}
	}

	template := variants.standard
	if profile != nil {
		switch {
		case profile.Segment == "premium":
			template = variants.premium
		case profile.CreditScore >= highScoreThreshold:
			template = variants.highScore
		case profile.MonthlyIncome > highIncomeThreshold:
			template = variants.highIncome
		}
	}

	greeting := fmt.Sprintf(template, userName)
	if top != nil && top.MaxAmount > 0 {
		greeting += fmt.Sprintf(" Tienes un cupo preaprobado de hasta $%.0f.", top.MaxAmount)
	}
	return greeting
}
