package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roshanis/shopagent/internal/evaluation"
	"github.com/roshanis/shopagent/internal/hash/sha256"
	"github.com/roshanis/shopagent/internal/service"
	"github.com/roshanis/shopagent/internal/storage"
)

// report is the archived form of a finished evaluation.
type report struct {
	ID          string                     `json:"id"`
	Status      evaluation.Status          `json:"status"`
	Product     evaluation.Product         `json:"product"`
	Result      *evaluation.ResultSnapshot `json:"result,omitempty"`
	Error       string                     `json:"error,omitempty"`
	CreatedAt   time.Time                  `json:"created_at"`
	CompletedAt *time.Time                 `json:"completed_at,omitempty"`
}

// archive writes the finished record to the configured blob store. Failures
// are logged and never change the evaluation's outcome.
func (w *Worker) archive(ctx context.Context, id string) {
	if w.cfg.Archive == nil {
		return
	}
	rec, err := w.registry.Get(ctx, id)
	if err != nil {
		w.logger.Warn("archive lookup failed", zap.String("job_id", id), zap.Error(err))
		return
	}
	uri, digest, err := writeReport(ctx, w.cfg.Archive, w.cfg.ArchivePrefix, rec)
	if err != nil {
		w.logger.Warn("archive write failed", zap.String("job_id", id), zap.Error(err))
		return
	}
	w.logger.Debug("evaluation archived",
		zap.String("job_id", id),
		zap.String("uri", uri),
		zap.String("sha256", digest),
	)
}

func writeReport(ctx context.Context, store storage.BlobStore, prefix string, rec service.Record) (uri, digest string, err error) {
	completed := rec.CreatedAt
	if rec.CompletedAt != nil {
		completed = *rec.CompletedAt
	}
	body, err := json.Marshal(report{
		ID:          rec.ID,
		Status:      rec.Status,
		Product:     rec.Product,
		Result:      rec.Result,
		Error:       rec.ErrorText,
		CreatedAt:   rec.CreatedAt,
		CompletedAt: rec.CompletedAt,
	})
	if err != nil {
		return "", "", fmt.Errorf("encode report: %w", err)
	}
	uri, err = store.PutObject(ctx, storage.ReportPath(prefix, rec.ID, completed), "application/json", bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("put report: %w", err)
	}
	return uri, sha256.New().Hash(body), nil
}
