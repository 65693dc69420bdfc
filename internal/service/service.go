package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roshanis/shopagent/internal/evaluation"
	"github.com/roshanis/shopagent/internal/metrics"
)

// DefaultEnqueueWait bounds how long a submission waits for queue space.
const DefaultEnqueueWait = time.Second

// Config controls Service behavior.
type Config struct {
	EnqueueWait time.Duration
}

// Service implements the evaluation API operations over a registry and queue.
type Service struct {
	registry  Registry
	queue     Enqueuer
	evaluator Evaluator
	aborter   Aborter
	ids       evaluation.IDGenerator
	clock     evaluation.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Service. aborter may be nil when nothing runs in process.
func New(
	registry Registry,
	queue Enqueuer,
	evaluator Evaluator,
	aborter Aborter,
	ids evaluation.IDGenerator,
	clock evaluation.Clock,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.EnqueueWait <= 0 {
		cfg.EnqueueWait = DefaultEnqueueWait
	}
	return &Service{
		registry:  registry,
		queue:     queue,
		evaluator: evaluator,
		aborter:   aborter,
		ids:       ids,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.Named("service"),
	}
}

// Agents lists the analysis agents each evaluation runs.
func (s *Service) Agents() []evaluation.Agent {
	return s.evaluator.Agents()
}

// Submit validates the product, records a pending evaluation and queues it.
func (s *Service) Submit(ctx context.Context, product evaluation.Product) (evaluation.SubmitResponse, error) {
	product = product.Normalize()
	if err := product.Validate(); err != nil {
		return evaluation.SubmitResponse{}, &evaluation.SubmissionError{Detail: err.Error()}
	}
	id, err := s.ids.NewID()
	if err != nil {
		return evaluation.SubmitResponse{}, fmt.Errorf("generate evaluation id: %w", err)
	}
	now := s.clock.Now()
	rec := Record{
		ID:        id,
		Status:    evaluation.StatusPending,
		Product:   product,
		Progress:  s.evaluator.InitialProgress(),
		CreatedAt: now,
	}
	if err := s.registry.Create(ctx, rec); err != nil {
		return evaluation.SubmitResponse{}, fmt.Errorf("create evaluation: %w", err)
	}

	enqueueCtx, cancel := context.WithTimeout(ctx, s.cfg.EnqueueWait)
	defer cancel()
	if err := s.queue.Enqueue(enqueueCtx, QueueItem{EvaluationID: id, Product: product, Submitted: now}); err != nil {
		metrics.ObserveQueueRejection()
		s.logger.Warn("enqueue failed", zap.String("job_id", id), zap.Error(err))
		if ferr := s.registry.Fail(context.WithoutCancel(ctx), id, "evaluation could not be queued", s.clock.Now()); ferr != nil {
			s.logger.Error("mark unqueued evaluation failed", zap.String("job_id", id), zap.Error(ferr))
		}
		return evaluation.SubmitResponse{}, fmt.Errorf("%w: %v", ErrQueueFull, err)
	}

	s.logger.Info("evaluation queued", zap.String("job_id", id), zap.String("product", product.Name))
	return evaluation.SubmitResponse{
		ID:      id,
		Status:  evaluation.StatusPending,
		Message: "Evaluation started successfully",
	}, nil
}

// Status returns the current status snapshot.
func (s *Service) Status(ctx context.Context, id string) (evaluation.StatusSnapshot, error) {
	rec, err := s.registry.Get(ctx, id)
	if err != nil {
		return evaluation.StatusSnapshot{}, err
	}
	return rec.StatusSnapshot(), nil
}

// Result returns the scored result of a completed evaluation, or a
// *NotReadyError explaining why there is none.
func (s *Service) Result(ctx context.Context, id string) (evaluation.ResultSnapshot, error) {
	rec, err := s.registry.Get(ctx, id)
	if err != nil {
		return evaluation.ResultSnapshot{}, err
	}
	switch rec.Status {
	case evaluation.StatusCompleted:
	case evaluation.StatusFailed:
		reason := rec.ErrorText
		if reason == "" {
			reason = "Unknown error"
		}
		return evaluation.ResultSnapshot{}, &NotReadyError{Status: rec.Status, Reason: "Evaluation failed: " + reason}
	case evaluation.StatusCancelled:
		return evaluation.ResultSnapshot{}, &NotReadyError{Status: rec.Status, Reason: "Evaluation was cancelled"}
	default:
		return evaluation.ResultSnapshot{}, &NotReadyError{Status: rec.Status, Reason: "Evaluation not yet completed"}
	}
	if rec.Result == nil {
		return evaluation.ResultSnapshot{}, errors.New("completed evaluation has no result")
	}
	res := rec.Result.Clone()
	res.ID = rec.ID
	res.Status = rec.Status
	res.CompletedAt = rec.CompletedAt
	return res, nil
}

// Cancel marks the evaluation cancelled and aborts its run. Cancelling a
// finished evaluation reports its current status without error.
func (s *Service) Cancel(ctx context.Context, id string) (evaluation.SubmitResponse, error) {
	rec, err := s.registry.Cancel(ctx, id, s.clock.Now())
	if err != nil {
		return evaluation.SubmitResponse{}, err
	}
	if rec.Status != evaluation.StatusCancelled {
		return evaluation.SubmitResponse{
			ID:      id,
			Status:  rec.Status,
			Message: fmt.Sprintf("Evaluation already %s", rec.Status),
		}, nil
	}
	if s.aborter != nil && s.aborter.Abort(id) {
		s.logger.Info("running evaluation aborted", zap.String("job_id", id))
	}
	return evaluation.SubmitResponse{
		ID:      id,
		Status:  evaluation.StatusCancelled,
		Message: "Evaluation cancelled successfully",
	}, nil
}
