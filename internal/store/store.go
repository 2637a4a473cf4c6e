// Package store archives finished jobs in Postgres so they stay queryable
// after they leave the in-memory registry.
package store

import (
	"context"
	"errors"

	"github.com/mitdave95/luma-interview/pkg/models"
)

var ErrNotFound = errors.New("resource not found")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// ArchiveJobs upserts finished jobs.
	ArchiveJobs(ctx context.Context, jobs []models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]models.Job, int, error)
}

// JobFilter selects archived jobs of one user, newest first.
type JobFilter struct {
	UserID   string
	Statuses []models.JobStatus
	Limit    int
	Offset   int
}
