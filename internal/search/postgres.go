package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/postgres"
)

// PostgresStore keeps jobs in search_history and stages in search_stages.
type PostgresStore struct {
	db *postgres.Client
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateJob(ctx context.Context, nj NewJob) (int64, error) {
	filters, err := json.Marshal(nj.Filters)
	if err != nil {
		return 0, fmt.Errorf("encoding filters: %w", err)
	}
	var id int64
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO search_history (user_id, search_query, filters, status, credits_used)
			VALUES ($1, $2, $3, 'processing', $4)
			RETURNING id`,
			nj.AccountID, nj.Query, filters, nj.CreditsCharged,
		).Scan(&id); err != nil {
			return apperrors.Storage("inserting search job", err)
		}
		for i, name := range nj.StageNames {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO search_stages (search_id, sequence_index, stage_name, status)
				VALUES ($1, $2, $3, 'pending')`, id, i, name); err != nil {
				return apperrors.Storage("inserting search stage", err)
			}
		}
		return nil
	})
	return id, err
}

// guarded runs a conditional UPDATE and turns "no rows" into NotFound or
// ErrTransition depending on whether the target exists.
func (s *PostgresStore) guarded(ctx context.Context, op string, exists func() (bool, error), query string, args ...any) error {
	res, err := s.db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.Storage(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Storage(op, err)
	}
	if n > 0 {
		return nil
	}
	ok, err := exists()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", op, apperrors.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, ErrTransition)
}

func (s *PostgresStore) stageExists(ctx context.Context, jobID int64, index int) func() (bool, error) {
	return func() (bool, error) {
		var ok bool
		err := s.db.DB.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM search_stages WHERE search_id = $1 AND sequence_index = $2)`,
			jobID, index).Scan(&ok)
		if err != nil {
			return false, apperrors.Storage("reading search stage", err)
		}
		return ok, nil
	}
}

func (s *PostgresStore) jobExists(ctx context.Context, jobID int64) func() (bool, error) {
	return func() (bool, error) {
		var ok bool
		err := s.db.DB.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM search_history WHERE id = $1)`, jobID).Scan(&ok)
		if err != nil {
			return false, apperrors.Storage("reading search job", err)
		}
		return ok, nil
	}
}

func (s *PostgresStore) StartStage(ctx context.Context, jobID int64, index int, at time.Time) error {
	return s.guarded(ctx, fmt.Sprintf("starting search %d stage %d", jobID, index),
		s.stageExists(ctx, jobID, index), `
		UPDATE search_stages
		SET status = 'loading', started_at = COALESCE(started_at, $3)
		WHERE search_id = $1 AND sequence_index = $2 AND status = 'pending'`,
		jobID, index, at)
}

func (s *PostgresStore) CompleteStage(ctx context.Context, jobID int64, index int, at time.Time) error {
	return s.guarded(ctx, fmt.Sprintf("completing search %d stage %d", jobID, index),
		s.stageExists(ctx, jobID, index), `
		UPDATE search_stages
		SET status = 'completed', completed_at = $3
		WHERE search_id = $1 AND sequence_index = $2 AND status = 'loading'`,
		jobID, index, at)
}

func (s *PostgresStore) CompleteJob(ctx context.Context, jobID int64, resultCount int, at time.Time) error {
	return s.guarded(ctx, fmt.Sprintf("completing search %d", jobID), s.jobExists(ctx, jobID), `
		UPDATE search_history
		SET status = 'completed', results_count = $2, finished_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`,
		jobID, resultCount, at)
}

func (s *PostgresStore) FailJob(ctx context.Context, jobID int64, reason string, at time.Time) error {
	return s.guarded(ctx, fmt.Sprintf("failing search %d", jobID), s.jobExists(ctx, jobID), `
		UPDATE search_history
		SET status = 'failed', failure_reason = $2, finished_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`,
		jobID, reason, at)
}

const jobColumns = `id, user_id, search_query, filters, status, credits_used,
	results_count, COALESCE(failure_reason, ''), created_at, updated_at, finished_at`

func scanJob(row interface{ Scan(...any) error }) (Job, error) {
	var (
		j        Job
		filters  []byte
		status   string
		results  sql.NullInt64
		finished sql.NullTime
	)
	if err := row.Scan(&j.ID, &j.AccountID, &j.Query, &filters, &status, &j.CreditsCharged,
		&results, &j.FailureReason, &j.CreatedAt, &j.UpdatedAt, &finished); err != nil {
		return Job{}, err
	}
	j.Status = JobStatus(status)
	if len(filters) > 0 {
		if err := json.Unmarshal(filters, &j.Filters); err != nil {
			return Job{}, fmt.Errorf("decoding filters of search %d: %w", j.ID, err)
		}
	}
	if results.Valid {
		n := int(results.Int64)
		j.ResultCount = &n
	}
	if finished.Valid {
		j.FinishedAt = &finished.Time
	}
	return j, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID int64) (Job, error) {
	j, err := scanJob(s.db.DB.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM search_history WHERE id = $1`, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, fmt.Errorf("search %d: %w", jobID, apperrors.ErrNotFound)
	}
	if err != nil {
		return Job{}, apperrors.Storage("reading search job", err)
	}

	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT sequence_index, stage_name, status, started_at, completed_at
		FROM search_stages WHERE search_id = $1
		ORDER BY sequence_index ASC`, jobID)
	if err != nil {
		return Job{}, apperrors.Storage("listing search stages", err)
	}
	defer rows.Close()

	j.Stages = []Stage{}
	for rows.Next() {
		var (
			st        Stage
			status    string
			started   sql.NullTime
			completed sql.NullTime
		)
		if err := rows.Scan(&st.Index, &st.Name, &status, &started, &completed); err != nil {
			return Job{}, apperrors.Storage("scanning search stage", err)
		}
		st.Status = StageStatus(status)
		if started.Valid {
			st.StartedAt = &started.Time
		}
		if completed.Valid {
			st.CompletedAt = &completed.Time
		}
		j.Stages = append(j.Stages, st)
	}
	if err := rows.Err(); err != nil {
		return Job{}, apperrors.Storage("iterating search stages", err)
	}
	return j, nil
}

func (s *PostgresStore) ListStuck(ctx context.Context, olderThan time.Time) ([]Job, error) {
	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM search_history
		WHERE status = 'processing' AND created_at < $1
		ORDER BY id ASC`, olderThan)
	if err != nil {
		return nil, apperrors.Storage("listing stuck searches", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, apperrors.Storage("scanning stuck search", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage("iterating stuck searches", err)
	}
	return out, nil
}
