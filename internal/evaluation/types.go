package evaluation

import (
	"maps"
	"slices"
	"time"
)

// Status represents the lifecycle state of an evaluation job.
type Status string

// Status values reported by the evaluation service.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Recommendation is a worker's or the overall purchase verdict.
type Recommendation string

// Recommendation values. RecommendationError only appears on individual agents.
const (
	RecommendationBuy     Recommendation = "buy"
	RecommendationNeutral Recommendation = "neutral"
	RecommendationAvoid   Recommendation = "avoid"
	RecommendationError   Recommendation = "error"
)

// Product is the job description submitted for evaluation.
type Product struct {
	Name        string   `json:"name"`
	Price       float64  `json:"price"`
	Brand       string   `json:"brand"`
	Category    string   `json:"category,omitempty"`
	Description string   `json:"description,omitempty"`
	Ingredients string   `json:"ingredients,omitempty"`
	Reviews     string   `json:"reviews,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
}

// SubmitResponse is returned by submit and cancel calls.
type SubmitResponse struct {
	ID      string `json:"id"`
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// StatusSnapshot is the latest known lifecycle state and per-worker progress.
// Snapshots are replaced wholesale, never patched.
type StatusSnapshot struct {
	ID          string             `json:"id"`
	Status      Status             `json:"status"`
	Progress    map[string]float64 `json:"progress"`
	CreatedAt   time.Time          `json:"created_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the snapshot.
func (s StatusSnapshot) Clone() StatusSnapshot {
	cp := s
	cp.Progress = maps.Clone(s.Progress)
	if s.CompletedAt != nil {
		ts := *s.CompletedAt
		cp.CompletedAt = &ts
	}
	return cp
}

// AgentResult is one worker's scored output.
type AgentResult struct {
	Score          int            `json:"score"`
	Recommendation Recommendation `json:"recommendation"`
	Reasoning      string         `json:"reasoning"`
	Confidence     int            `json:"confidence"`
	Details        map[string]any `json:"details,omitempty"`
}

// ResultSnapshot is the final scored output of a completed job.
type ResultSnapshot struct {
	ID                    string                 `json:"id"`
	Status                Status                 `json:"status"`
	OverallScore          int                    `json:"overall_score"`
	OverallRecommendation Recommendation         `json:"overall_recommendation"`
	AgentResults          map[string]AgentResult `json:"agent_results"`
	KeyStrengths          []string               `json:"key_strengths"`
	KeyConcerns           []string               `json:"key_concerns"`
	Confidence            int                    `json:"confidence"`
	CompletedAt           *time.Time             `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the result.
func (r ResultSnapshot) Clone() ResultSnapshot {
	cp := r
	if r.AgentResults != nil {
		cp.AgentResults = make(map[string]AgentResult, len(r.AgentResults))
		for name, res := range r.AgentResults {
			res.Details = maps.Clone(res.Details)
			cp.AgentResults[name] = res
		}
	}
	cp.KeyStrengths = slices.Clone(r.KeyStrengths)
	cp.KeyConcerns = slices.Clone(r.KeyConcerns)
	if r.CompletedAt != nil {
		ts := *r.CompletedAt
		cp.CompletedAt = &ts
	}
	return cp
}

// Agent describes one analysis worker offered by the service.
type Agent struct {
	Name        string `json:"name"`
	Emoji       string `json:"emoji"`
	Description string `json:"description"`
}
