package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/roshanis/shopagent/internal/evaluation"
	"github.com/roshanis/shopagent/internal/policy/ratelimit"
)

// DefaultModel is used when LLMConfig.Model is empty.
const DefaultModel = "gpt-4o-mini"

const responseContract = "Respond in valid JSON with keys: score (0-100), recommendation (buy/neutral/avoid), reasoning (string), confidence (0-100)."

// LLMConfig configures the chat-completion backed agents.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// RequestsPerSecond is shared by all four agents; zero means no cap.
	RequestsPerSecond float64
}

// LLM scores a product by asking a chat-completion model.
type LLM struct {
	info    evaluation.Agent
	client  openai.Client
	limiter *ratelimit.Limiter
	model   string
	system  string
	prompt  func(evaluation.Product) string
}

// NewLLMAgents returns the four standard agents backed by a chat-completion API.
func NewLLMAgents(cfg LLMConfig) ([]Agent, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("llm agents: api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: cfg.RequestsPerSecond, DefaultBurst: 1})

	build := func(name, system string, prompt func(evaluation.Product) string) Agent {
		return &LLM{info: infoFor(name), client: client, limiter: limiter, model: model, system: system, prompt: prompt}
	}
	return []Agent{
		build(CostAnalysis,
			"You are a cost analysis expert. Judge price competitiveness, value for money and price-to-quality ratio.",
			costPrompt),
		build(SupplierTrust,
			"You are a supplier trust and reputation expert. Judge brand reputation, customer service and overall trustworthiness.",
			trustPrompt),
		build(Sustainability,
			"You are a sustainability expert. Judge environmental footprint, sourcing, packaging and ethical production.",
			sustainabilityPrompt),
		build(IngredientSafety,
			"You are an ingredient safety expert. Judge ingredient safety, health risks and allergen presence.",
			safetyPrompt),
	}, nil
}

func (a *LLM) Info() evaluation.Agent {
	return a.info
}

func (a *LLM) Analyze(ctx context.Context, product evaluation.Product, report func(float64)) (evaluation.AgentResult, error) {
	report(0.1)
	prompt := a.prompt(product)
	report(0.3)

	if err := a.limiter.Wait(ctx, a.model); err != nil {
		return evaluation.AgentResult{}, fmt.Errorf("%s: %w", a.info.Name, err)
	}
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(a.system + "\n\n" + responseContract),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.3),
		MaxTokens:   openai.Int(1000),
	})
	if err != nil {
		return evaluation.AgentResult{}, fmt.Errorf("%s: chat completion: %w", a.info.Name, err)
	}
	if len(resp.Choices) == 0 {
		return evaluation.AgentResult{}, fmt.Errorf("%s: chat completion returned no choices", a.info.Name)
	}
	report(0.7)

	res := parseReply(resp.Choices[0].Message.Content)
	report(1.0)
	return res, nil
}

type llmReply struct {
	Score          *float64 `json:"score"`
	Recommendation string   `json:"recommendation"`
	Reasoning      string   `json:"reasoning"`
	Confidence     *float64 `json:"confidence"`
}

var firstNumber = regexp.MustCompile(`\d+`)

// parseReply accepts the JSON contract and falls back to scanning free text
// for a line mentioning a score.
func parseReply(content string) evaluation.AgentResult {
	body := strings.TrimSpace(content)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")

	var reply llmReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &reply); err == nil && reply.Score != nil {
		score := clampScore(*reply.Score)
		rec := evaluation.Recommendation(strings.ToLower(strings.TrimSpace(reply.Recommendation)))
		switch rec {
		case evaluation.RecommendationBuy, evaluation.RecommendationNeutral, evaluation.RecommendationAvoid:
		default:
			rec = RecommendationFor(score)
		}
		confidence := 75
		if reply.Confidence != nil {
			confidence = clampScore(*reply.Confidence)
		}
		return evaluation.AgentResult{
			Score:          score,
			Recommendation: rec,
			Reasoning:      reply.Reasoning,
			Confidence:     confidence,
			Details:        map[string]any{},
		}
	}

	score := 50
	for _, line := range strings.Split(content, "\n") {
		l := strings.ToLower(line)
		if !strings.Contains(l, "score") && !strings.Contains(l, "rating") {
			continue
		}
		if m := firstNumber.FindString(line); m != "" {
			if n, err := strconv.Atoi(m); err == nil {
				score = n
				if score > 100 {
					score %= 100
				}
				break
			}
		}
	}
	return evaluation.AgentResult{
		Score:          score,
		Recommendation: RecommendationFor(score),
		Reasoning:      content,
		Confidence:     75,
		Details:        map[string]any{},
	}
}

func ratingText(p evaluation.Product) string {
	if p.Rating == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*p.Rating, 'f', 1, 64)
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func costPrompt(p evaluation.Product) string {
	return fmt.Sprintf(`Analyze the cost-effectiveness of this product:

Product Name: %s
Price: $%.2f
Brand: %s
Category: %s
Description: %s
User Reviews: %s
Average Rating: %s`,
		p.Name, p.Price, p.Brand, orDefault(p.Category, "Unknown"), orDefault(p.Description, "No description"),
		orDefault(p.Reviews, "No reviews available"), ratingText(p))
}

func trustPrompt(p evaluation.Product) string {
	return fmt.Sprintf(`Evaluate the supplier trustworthiness for this product:

Brand: %s
Product: %s
Category: %s
User Reviews: %s
Average Rating: %s`,
		p.Brand, p.Name, orDefault(p.Category, "Unknown"), orDefault(p.Reviews, "No reviews available"), ratingText(p))
}

func sustainabilityPrompt(p evaluation.Product) string {
	return fmt.Sprintf(`Analyze the sustainability of this product:

Product: %s
Brand: %s
Category: %s
Description: %s
Ingredients: %s`,
		p.Name, p.Brand, orDefault(p.Category, "Unknown"), orDefault(p.Description, "No description"),
		orDefault(p.Ingredients, "Not specified"))
}

func safetyPrompt(p evaluation.Product) string {
	prompt := fmt.Sprintf(`Evaluate the ingredient safety of this product:

Product: %s
Category: %s
Description: %s
Ingredients List: %s`,
		p.Name, orDefault(p.Category, "Unknown"), orDefault(p.Description, "No description"),
		orDefault(p.Ingredients, "Not specified"))
	if !evaluation.Specified(p.Ingredients) {
		prompt += "\n\nNo ingredients were provided. Do not score low only because the list is missing."
	}
	return prompt
}
