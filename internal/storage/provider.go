// Package storage defines where finished evaluation reports are archived.
// Implementations live in the local and gcs subpackages; the evaluation
// registry itself lives in memory and postgres.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"
)

// BlobStore writes one object and returns a URI for it.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// ReportPath lays reports out by completion day so a bucket listing stays
// navigable: <prefix>/2025/03/01/<id>.json.
func ReportPath(prefix, id string, completedAt time.Time) string {
	day := completedAt.UTC().Format("2006/01/02")
	return path.Join(prefix, day, fmt.Sprintf("%s.json", id))
}
