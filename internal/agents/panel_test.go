package agents

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roshanis/shopagent/internal/evaluation"
)

type stubAgent struct {
	name string
	res  evaluation.AgentResult
	err  error
}

func (s stubAgent) Info() evaluation.Agent { return evaluation.Agent{Name: s.name} }

func (s stubAgent) Analyze(_ context.Context, _ evaluation.Product, report func(float64)) (evaluation.AgentResult, error) {
	report(0.5)
	if s.err != nil {
		return evaluation.AgentResult{}, s.err
	}
	report(1)
	return s.res, nil
}

func result(score, confidence int, reasoning string) evaluation.AgentResult {
	return evaluation.AgentResult{
		Score:          score,
		Recommendation: RecommendationFor(score),
		Reasoning:      reasoning,
		Confidence:     confidence,
	}
}

var panelOrder = []string{CostAnalysis, SupplierTrust, Sustainability, IngredientSafety}

func TestCombine(t *testing.T) {
	t.Parallel()

	t.Run("majority buy", func(t *testing.T) {
		t.Parallel()
		out := Combine(panelOrder, map[string]evaluation.AgentResult{
			CostAnalysis:     result(80, 70, "good value"),
			SupplierTrust:    result(75, 60, "trusted"),
			Sustainability:   result(50, 50, "unclear"),
			IngredientSafety: result(90, 80, "clean"),
		})
		assert.Equal(t, 73, out.OverallScore)
		assert.Equal(t, evaluation.RecommendationBuy, out.OverallRecommendation)
		assert.Equal(t, 65, out.Confidence)
		assert.Equal(t, []string{
			"Cost Analysis: good value...",
			"Supplier Trust: trusted...",
			"Ingredient Safety: clean...",
		}, out.KeyStrengths)
		assert.Empty(t, out.KeyConcerns)
	})

	t.Run("unsafe ingredients veto", func(t *testing.T) {
		t.Parallel()
		out := Combine(panelOrder, map[string]evaluation.AgentResult{
			CostAnalysis:     result(90, 70, "a"),
			SupplierTrust:    result(90, 70, "b"),
			Sustainability:   result(90, 70, "c"),
			IngredientSafety: result(30, 70, "risky"),
		})
		assert.Equal(t, 75, out.OverallScore)
		assert.Equal(t, evaluation.RecommendationAvoid, out.OverallRecommendation)
		assert.Equal(t, []string{"Ingredient Safety: risky..."}, out.KeyConcerns)
	})

	t.Run("errors excluded", func(t *testing.T) {
		t.Parallel()
		out := Combine(panelOrder, map[string]evaluation.AgentResult{
			CostAnalysis:     {Recommendation: evaluation.RecommendationError, Reasoning: "Error: boom"},
			SupplierTrust:    result(60, 50, "a"),
			Sustainability:   result(60, 60, "b"),
			IngredientSafety: result(60, 70, "c"),
		})
		assert.Equal(t, 60, out.OverallScore)
		assert.Equal(t, evaluation.RecommendationNeutral, out.OverallRecommendation)
		assert.Equal(t, 60, out.Confidence)
	})

	t.Run("two avoids", func(t *testing.T) {
		t.Parallel()
		out := Combine(panelOrder, map[string]evaluation.AgentResult{
			CostAnalysis:     result(30, 50, "a"),
			SupplierTrust:    result(30, 50, "b"),
			Sustainability:   result(65, 50, "c"),
			IngredientSafety: result(65, 50, "d"),
		})
		assert.Equal(t, 47, out.OverallScore)
		assert.Equal(t, evaluation.RecommendationAvoid, out.OverallRecommendation)
	})

	t.Run("all failed", func(t *testing.T) {
		t.Parallel()
		out := Combine(panelOrder, map[string]evaluation.AgentResult{
			CostAnalysis: {Recommendation: evaluation.RecommendationError},
		})
		assert.Zero(t, out.OverallScore)
		assert.Zero(t, out.Confidence)
		assert.Equal(t, evaluation.RecommendationAvoid, out.OverallRecommendation)
		assert.NotNil(t, out.KeyStrengths)
		assert.NotNil(t, out.KeyConcerns)
	})

	t.Run("highlight caps", func(t *testing.T) {
		t.Parallel()
		long := strings.Repeat("é", 150)
		out := Combine(panelOrder, map[string]evaluation.AgentResult{
			CostAnalysis:     result(10, 50, long),
			SupplierTrust:    result(10, 50, "b"),
			Sustainability:   result(10, 50, "c"),
			IngredientSafety: result(10, 50, "d"),
		})
		require.Len(t, out.KeyConcerns, 3)
		assert.Equal(t, "Cost Analysis: "+strings.Repeat("é", 100)+"...", out.KeyConcerns[0])
	})
}

func TestPanelEvaluate(t *testing.T) {
	t.Parallel()

	panel := NewPanel([]Agent{
		stubAgent{name: CostAnalysis, res: result(80, 70, "cheap")},
		stubAgent{name: SupplierTrust, err: errors.New("upstream down")},
		stubAgent{name: Sustainability, res: result(80, 70, "green")},
		stubAgent{name: IngredientSafety, res: result(80, 70, "safe")},
	}, nil)

	var mu sync.Mutex
	var last map[string]float64
	calls := 0
	out, err := panel.Evaluate(context.Background(), evaluation.Product{Name: "X"}, func(p map[string]float64) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		last = p
	})
	require.NoError(t, err)

	failed := out.AgentResults[SupplierTrust]
	assert.Equal(t, evaluation.RecommendationError, failed.Recommendation)
	assert.Equal(t, "Error: upstream down", failed.Reasoning)
	assert.Equal(t, 80, out.OverallScore)
	assert.Equal(t, evaluation.RecommendationBuy, out.OverallRecommendation)

	assert.Equal(t, 7, calls)
	assert.Len(t, last, 4)
	assert.Equal(t, 0.5, last[SupplierTrust])
	assert.Equal(t, 1.0, last[CostAnalysis])
}

func TestPanelEvaluateCancelled(t *testing.T) {
	t.Parallel()

	panel := NewPanel(Heuristics(time.Hour), nil)
	require.Len(t, panel.Agents(), 4)
	require.Equal(t, map[string]float64{
		CostAnalysis: 0, SupplierTrust: 0, Sustainability: 0, IngredientSafety: 0,
	}, panel.InitialProgress())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := panel.Evaluate(ctx, evaluation.Product{Name: "X", Brand: "B", Price: 1}, nil)
	require.ErrorIs(t, err, context.Canceled)
}
