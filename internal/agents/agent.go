package agents

import (
	"context"
	"math"
	"time"

	"github.com/roshanis/shopagent/internal/evaluation"
)

// Agent names as reported in progress maps and results.
const (
	CostAnalysis     = "Cost Analysis"
	SupplierTrust    = "Supplier Trust"
	Sustainability   = "Sustainability"
	IngredientSafety = "Ingredient Safety"
)

// Agent scores one aspect of a product.
type Agent interface {
	Info() evaluation.Agent
	// Analyze reports progress fractions in [0,1] through report and returns
	// the scored assessment. A non-nil error marks the agent as failed.
	Analyze(ctx context.Context, product evaluation.Product, report func(float64)) (evaluation.AgentResult, error)
}

// Catalog lists the descriptions of the four standard agents in panel order.
func Catalog() []evaluation.Agent {
	return []evaluation.Agent{
		{Name: CostAnalysis, Emoji: "💰", Description: "Evaluates pricing, value proposition, and cost-effectiveness"},
		{Name: SupplierTrust, Emoji: "🤝", Description: "Assesses supplier reliability, reputation, and trustworthiness"},
		{Name: Sustainability, Emoji: "🌱", Description: "Analyzes environmental impact and sustainability practices"},
		{Name: IngredientSafety, Emoji: "🔬", Description: "Assesses ingredient safety and health implications"},
	}
}

func infoFor(name string) evaluation.Agent {
	for _, a := range Catalog() {
		if a.Name == name {
			return a
		}
	}
	return evaluation.Agent{Name: name}
}

// RecommendationFor maps a single agent score to a verdict.
func RecommendationFor(score int) evaluation.Recommendation {
	switch {
	case score >= 70:
		return evaluation.RecommendationBuy
	case score >= 40:
		return evaluation.RecommendationNeutral
	default:
		return evaluation.RecommendationAvoid
	}
}

func clampScore(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, v))))
}

// pace waits d or until ctx ends.
func pace(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
