package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frontier-design/projectory-web-to-print/pkg/models"
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

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, revoked_at, created_at
		 FROM api_keys WHERE key_prefix = $1 AND revoked_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.RevokedAt, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes,
	).Scan(&key.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.JobRecord) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = models.JobStatusRunning
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO jobs (id, job_id, status, total_items, total_batches, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (job_id) DO UPDATE SET
		   status = EXCLUDED.status,
		   total_items = EXCLUDED.total_items,
		   total_batches = EXCLUDED.total_batches,
		   success_count = 0,
		   failed_count = 0,
		   failed_batches = '[]'::jsonb,
		   error_message = NULL,
		   started_at = EXCLUDED.started_at,
		   completed_at = NULL,
		   updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		job.ID, job.JobID, job.Status, job.TotalItems, job.TotalBatches, job.StartedAt,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// UpdateJob sets a job's status. Any status other than running also stamps
// completed_at.
func (s *PostgresStore) UpdateJob(ctx context.Context, jobID string, status string, opts ...JobUpdateOption) error {
	var p jobUpdateParams
	for _, opt := range opts {
		opt(&p)
	}

	var failed []byte
	if p.FailedBatches != nil {
		var err error
		if failed, err = json.Marshal(p.FailedBatches); err != nil {
			return fmt.Errorf("encode failed batches: %w", err)
		}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET
		   status = $2,
		   error_message = COALESCE($3::text, error_message),
		   total_batches = COALESCE($4::int, total_batches),
		   success_count = COALESCE($5::int, success_count),
		   failed_count = COALESCE($6::int, failed_count),
		   failed_batches = COALESCE($7::jsonb, failed_batches),
		   completed_at = CASE WHEN $2::text = 'running' THEN NULL ELSE NOW() END,
		   updated_at = NOW()
		 WHERE job_id = $1`,
		jobID, status, p.ErrorMessage, p.TotalBatches, p.SuccessCount, p.FailedCount, nullableJSON(failed),
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetJobByJobID(ctx context.Context, jobID string) (*models.JobRecord, error) {
	var (
		j      models.JobRecord
		failed []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, job_id, status, total_items, total_batches, success_count, failed_count,
		        failed_batches, error_message, started_at, completed_at, created_at, updated_at
		 FROM jobs WHERE job_id = $1`, jobID,
	).Scan(&j.ID, &j.JobID, &j.Status, &j.TotalItems, &j.TotalBatches, &j.SuccessCount, &j.FailedCount,
		&failed, &j.ErrorMessage, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if err := json.Unmarshal(failed, &j.FailedBatches); err != nil {
		return nil, fmt.Errorf("decode failed batches: %w", err)
	}
	return &j, nil
}

func nullableJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
