package agents

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roshanis/shopagent/internal/evaluation"
	"github.com/roshanis/shopagent/internal/metrics"
)

const (
	defaultWeight  = 0.25
	maxHighlights  = 3
	highlightRunes = 100
	strengthScore  = 70
	concernScore   = 40
)

var weights = map[string]float64{
	CostAnalysis:     0.25,
	SupplierTrust:    0.25,
	Sustainability:   0.25,
	IngredientSafety: 0.25,
}

// Panel runs a fixed set of agents against one product and combines their scores.
type Panel struct {
	agents []Agent
	logger *zap.Logger
}

// NewPanel returns a panel over agents, evaluated in the given order.
func NewPanel(agents []Agent, logger *zap.Logger) *Panel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Panel{agents: agents, logger: logger.Named("panel")}
}

// Agents describes the panel members.
func (p *Panel) Agents() []evaluation.Agent {
	out := make([]evaluation.Agent, 0, len(p.agents))
	for _, a := range p.agents {
		out = append(out, a.Info())
	}
	return out
}

// InitialProgress returns a progress map with every agent at zero.
func (p *Panel) InitialProgress() map[string]float64 {
	progress := make(map[string]float64, len(p.agents))
	for _, a := range p.agents {
		progress[a.Info().Name] = 0
	}
	return progress
}

// Evaluate runs all agents concurrently. onProgress receives a fresh copy of
// the whole progress map after every agent report; calls are serialized so
// the last call always carries the newest map. Agent failures are folded
// into the result; only cancellation of ctx is returned as an error.
func (p *Panel) Evaluate(ctx context.Context, product evaluation.Product, onProgress func(map[string]float64)) (evaluation.ResultSnapshot, error) {
	var mu sync.Mutex
	progress := p.InitialProgress()
	results := make(map[string]evaluation.AgentResult, len(p.agents))

	var g errgroup.Group
	for _, a := range p.agents {
		name := a.Info().Name
		g.Go(func() error {
			report := func(f float64) {
				mu.Lock()
				defer mu.Unlock()
				progress[name] = f
				if onProgress != nil {
					onProgress(maps.Clone(progress))
				}
			}
			start := time.Now()
			res, err := a.Analyze(ctx, product, report)
			metrics.ObserveAgent(name, time.Since(start))
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.logger.Warn("agent failed", zap.String("agent", name), zap.Error(err))
				res = evaluation.AgentResult{
					Score:          0,
					Recommendation: evaluation.RecommendationError,
					Reasoning:      "Error: " + err.Error(),
					Confidence:     0,
					Details:        map[string]any{},
				}
			}
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return evaluation.ResultSnapshot{}, err
	}

	order := make([]string, 0, len(p.agents))
	for _, a := range p.agents {
		order = append(order, a.Info().Name)
	}
	return Combine(order, results), nil
}

// Combine folds per-agent results into the overall verdict. order fixes the
// iteration order for strengths and concerns.
func Combine(order []string, results map[string]evaluation.AgentResult) evaluation.ResultSnapshot {
	var weighted, total float64
	var confidenceSum, counted, buys, avoids int
	var strengths, concerns []string

	for _, name := range order {
		res, ok := results[name]
		if !ok || res.Recommendation == evaluation.RecommendationError {
			continue
		}
		w, ok := weights[name]
		if !ok {
			w = defaultWeight
		}
		weighted += float64(res.Score) * w
		total += w
		confidenceSum += res.Confidence
		counted++

		switch res.Recommendation {
		case evaluation.RecommendationBuy:
			buys++
		case evaluation.RecommendationAvoid:
			avoids++
		}
		if res.Score >= strengthScore && len(strengths) < maxHighlights {
			strengths = append(strengths, highlight(name, res.Reasoning))
		}
		if res.Score < concernScore && len(concerns) < maxHighlights {
			concerns = append(concerns, highlight(name, res.Reasoning))
		}
	}

	overall := 0
	if total > 0 {
		overall = int(weighted / total)
	}
	confidence := 0
	if counted > 0 {
		confidence = confidenceSum / counted
	}

	rec := evaluation.RecommendationNeutral
	switch {
	case results[IngredientSafety].Recommendation == evaluation.RecommendationAvoid:
		rec = evaluation.RecommendationAvoid
	case overall >= 70 && buys >= 2:
		rec = evaluation.RecommendationBuy
	case overall < 40 || avoids >= 2:
		rec = evaluation.RecommendationAvoid
	}

	if strengths == nil {
		strengths = []string{}
	}
	if concerns == nil {
		concerns = []string{}
	}
	return evaluation.ResultSnapshot{
		OverallScore:          overall,
		OverallRecommendation: rec,
		AgentResults:          results,
		KeyStrengths:          strengths,
		KeyConcerns:           concerns,
		Confidence:            confidence,
	}
}

func highlight(name, reasoning string) string {
	r := []rune(reasoning)
	if len(r) > highlightRunes {
		r = r[:highlightRunes]
	}
	return fmt.Sprintf("%s: %s...", name, string(r))
}
