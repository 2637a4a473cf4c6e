package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mitdave95/luma-interview/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const jobColumns = `id, user_id, tier, priority, status, params, progress,
	COALESCE(result_ref, ''), COALESCE(error_message, ''),
	created_at, queued_at, started_at, completed_at`

func (s *PostgresStore) ArchiveJobs(ctx context.Context, jobs []models.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, j := range jobs {
		params, err := json.Marshal(j.Params)
		if err != nil {
			return fmt.Errorf("encode params of %s: %w", j.ID, err)
		}
		batch.Queue(
			`INSERT INTO jobs (id, user_id, tier, priority, status, params, progress, result_ref, error_message,
			                   created_at, queued_at, started_at, completed_at)
			 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11, $12, $13)
			 ON CONFLICT (id) DO UPDATE SET
			   status = EXCLUDED.status,
			   progress = EXCLUDED.progress,
			   result_ref = EXCLUDED.result_ref,
			   error_message = EXCLUDED.error_message,
			   started_at = EXCLUDED.started_at,
			   completed_at = EXCLUDED.completed_at,
			   archived_at = NOW()`,
			j.ID, j.UserID, string(j.Tier), string(j.Priority), string(j.Status), string(params), j.Progress,
			j.ResultRef, j.Error, j.CreatedAt, j.QueuedAt, j.StartedAt, j.CompletedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range jobs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("archive jobs: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]models.Job, int, error) {
	conditions := []string{"user_id = $1"}
	args := []any{filter.UserID}
	argIdx := 2

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", argIdx))
		args = append(args, statuses)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM jobs WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 1000 {
		limit = 1000
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT `+jobColumns+` FROM jobs WHERE %s
		ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, total, rows.Err()
}

func scanJob(row pgx.Row) (models.Job, error) {
	var (
		j      models.Job
		tier   string
		prio   string
		status string
		params []byte
	)
	if err := row.Scan(&j.ID, &j.UserID, &tier, &prio, &status, &params, &j.Progress,
		&j.ResultRef, &j.Error, &j.CreatedAt, &j.QueuedAt, &j.StartedAt, &j.CompletedAt); err != nil {
		return models.Job{}, err
	}
	j.Tier = models.Tier(tier)
	j.Priority = models.Priority(prio)
	j.Status = models.JobStatus(status)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &j.Params); err != nil {
			return models.Job{}, fmt.Errorf("decode params of %s: %w", j.ID, err)
		}
	}
	return j, nil
}

var _ Store = (*PostgresStore)(nil)
