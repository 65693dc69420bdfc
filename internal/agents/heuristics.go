package agents

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/roshanis/shopagent/internal/evaluation"
)

type assessment struct {
	score      float64
	confidence int
	reasoning  string
	details    map[string]any
}

// heuristic is an offline agent that scores from the product fields alone.
type heuristic struct {
	info   evaluation.Agent
	step   time.Duration
	assess func(evaluation.Product) assessment
}

// Heuristics returns the four standard agents backed by deterministic rules.
// step is the pause between progress reports.
func Heuristics(step time.Duration) []Agent {
	return []Agent{
		&heuristic{info: infoFor(CostAnalysis), step: step, assess: assessCost},
		&heuristic{info: infoFor(SupplierTrust), step: step, assess: assessTrust},
		&heuristic{info: infoFor(Sustainability), step: step, assess: assessSustainability},
		&heuristic{info: infoFor(IngredientSafety), step: step, assess: assessSafety},
	}
}

func (h *heuristic) Info() evaluation.Agent {
	return h.info
}

func (h *heuristic) Analyze(ctx context.Context, product evaluation.Product, report func(float64)) (evaluation.AgentResult, error) {
	report(0.1)
	if err := pace(ctx, h.step); err != nil {
		return evaluation.AgentResult{}, err
	}
	report(0.3)
	a := h.assess(product)
	if err := pace(ctx, h.step); err != nil {
		return evaluation.AgentResult{}, err
	}
	report(0.7)
	if err := pace(ctx, h.step); err != nil {
		return evaluation.AgentResult{}, err
	}
	report(1.0)

	score := clampScore(a.score)
	return evaluation.AgentResult{
		Score:          score,
		Recommendation: RecommendationFor(score),
		Reasoning:      a.reasoning,
		Confidence:     a.confidence,
		Details:        a.details,
	}, nil
}

var typicalPrices = []struct {
	keyword string
	price   float64
}{
	{"electronic", 150},
	{"appliance", 120},
	{"cloth", 40},
	{"apparel", 40},
	{"skin", 25},
	{"beauty", 25},
	{"cosmetic", 25},
	{"supplement", 30},
	{"household", 15},
	{"clean", 12},
	{"snack", 6},
	{"food", 8},
	{"grocery", 8},
	{"beverage", 5},
}

const defaultTypicalPrice = 30

func typicalPrice(category string) float64 {
	c := strings.ToLower(category)
	for _, tp := range typicalPrices {
		if strings.Contains(c, tp.keyword) {
			return tp.price
		}
	}
	return defaultTypicalPrice
}

func assessCost(p evaluation.Product) assessment {
	typical := typicalPrice(p.Category)
	ratio := p.Price / typical

	var score float64
	var verdict string
	switch {
	case ratio <= 0.6:
		score, verdict = 85, "well below the usual price for its category"
	case ratio <= 1.0:
		score, verdict = 75, "at or below the usual price for its category"
	case ratio <= 1.5:
		score, verdict = 60, "moderately above the usual price for its category"
	case ratio <= 2.5:
		score, verdict = 45, "expensive for its category"
	default:
		score, verdict = 30, "priced far above comparable products"
	}

	confidence := 55
	reasoning := fmt.Sprintf("At $%.2f against a typical $%.2f the product is %s.", p.Price, typical, verdict)
	if p.Rating != nil {
		score += (*p.Rating - 3) * 5
		confidence = 70
		reasoning += fmt.Sprintf(" An average rating of %.1f adjusts the value estimate.", *p.Rating)
	}
	return assessment{
		score:      score,
		confidence: confidence,
		reasoning:  reasoning,
		details: map[string]any{
			"typical_price": typical,
			"price_ratio":   ratio,
		},
	}
}

var (
	positiveReviewWords = []string{"great", "love", "excellent", "good", "amazing", "recommend", "best", "perfect", "reliable"}
	negativeReviewWords = []string{"bad", "poor", "terrible", "broke", "broken", "worst", "awful", "disappointed", "refund", "fake"}
)

func assessTrust(p evaluation.Product) assessment {
	score := 50.0
	confidence := 40
	var notes []string

	if p.Rating != nil {
		score += (*p.Rating - 3) * 12
		confidence += 10
		notes = append(notes, fmt.Sprintf("average rating %.1f", *p.Rating))
	}

	pos, neg := 0, 0
	if evaluation.Specified(p.Reviews) {
		pos = countTerms(p.Reviews, positiveReviewWords)
		neg = countTerms(p.Reviews, negativeReviewWords)
		score += float64(5 * (pos - neg))
		confidence = min(85, confidence+10*(pos+neg))
		notes = append(notes, fmt.Sprintf("%d positive and %d negative review signals", pos, neg))
	}

	reasoning := fmt.Sprintf("Brand %s has no recorded reputation data.", p.Brand)
	if len(notes) > 0 {
		reasoning = fmt.Sprintf("Trust in %s is based on %s.", p.Brand, strings.Join(notes, " and "))
	}
	return assessment{
		score:      score,
		confidence: confidence,
		reasoning:  reasoning,
		details: map[string]any{
			"positive_signals": pos,
			"negative_signals": neg,
		},
	}
}

var (
	greenTerms = []string{"organic", "recycled", "recyclable", "biodegradable", "compostable", "sustainable", "sustainably", "fair trade", "plant-based", "refillable", "eco-friendly"}
	harmTerms  = []string{"plastic", "palm oil", "single-use", "microbeads", "disposable", "petroleum"}
)

func assessSustainability(p evaluation.Product) assessment {
	text := strings.Join([]string{p.Name, p.Description, p.Ingredients}, " ")
	green := matchedTerms(text, greenTerms)
	harm := matchedTerms(text, harmTerms)

	score := 50 + 10*float64(len(green)) - 12*float64(len(harm))
	var reasoning string
	switch {
	case len(green) == 0 && len(harm) == 0:
		reasoning = "No sustainability claims or concerns found in the product information."
	case len(harm) == 0:
		reasoning = "Positive sustainability indicators: " + strings.Join(green, ", ") + "."
	case len(green) == 0:
		reasoning = "Environmental concerns: " + strings.Join(harm, ", ") + "."
	default:
		reasoning = fmt.Sprintf("Mixed profile. Positive: %s. Concerns: %s.", strings.Join(green, ", "), strings.Join(harm, ", "))
	}
	return assessment{
		score:      score,
		confidence: min(80, 45+8*(len(green)+len(harm))),
		reasoning:  reasoning,
		details: map[string]any{
			"positive_indicators": green,
			"concerns":            harm,
		},
	}
}

var (
	flaggedIngredients = []string{"paraben", "parabens", "phthalate", "phthalates", "formaldehyde", "triclosan", "oxybenzone", "bha", "bht", "sodium lauryl sulfate", "red 40", "yellow 5", "high fructose corn syrup", "partially hydrogenated"}
	allergenTerms      = []string{"peanut", "peanuts", "almond", "almonds", "milk", "egg", "eggs", "soy", "wheat", "gluten", "fish", "shellfish", "sesame"}
)

func assessSafety(p evaluation.Product) assessment {
	if !evaluation.Specified(p.Ingredients) {
		return assessment{
			score:      55,
			confidence: 35,
			reasoning:  "Ingredient list not provided, so safety could not be verified.",
			details:    map[string]any{"ingredients_known": false},
		}
	}

	flagged := matchedTerms(p.Ingredients, flaggedIngredients)
	allergens := matchedTerms(p.Ingredients, allergenTerms)
	score := 90 - 20*float64(len(flagged)) - 3*float64(len(allergens))

	reasoning := "No ingredients of concern were identified."
	if len(flagged) > 0 {
		reasoning = "Contains ingredients of concern: " + strings.Join(flagged, ", ") + "."
	}
	if len(allergens) > 0 {
		reasoning += " Common allergens: " + strings.Join(allergens, ", ") + "."
	}
	return assessment{
		score:      score,
		confidence: 80,
		reasoning:  reasoning,
		details: map[string]any{
			"ingredients_known": true,
			"flagged":           flagged,
			"allergens":         allergens,
		},
	}
}

// matchedTerms returns the terms found in text as whole words, in term order.
func matchedTerms(text string, terms []string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, term := range terms {
		if hasTerm(lower, term) {
			out = append(out, term)
		}
	}
	return out
}

func countTerms(text string, terms []string) int {
	return len(matchedTerms(text, terms))
}

func hasTerm(lower, term string) bool {
	for i := 0; ; {
		j := strings.Index(lower[i:], term)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(term)
		if boundary(lower, start-1) && boundary(lower, end) {
			return true
		}
		i = start + 1
	}
}

func boundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	r := rune(s[i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
