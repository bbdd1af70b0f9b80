package assessment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-learn/internal/apperror"
	"github.com/p-n-ai/pai-learn/internal/platform/txn"
)

const (
	dbTimeout       = 5 * time.Second
	uniqueViolation = "23505"
)

// PostgresStore is a PostgreSQL-backed Store implementation. The
// (learner_id, quiz_id, attempt_number) unique key backs the per-quiz lock.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed attempt store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Count(ctx context.Context, learnerID, quizID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var n int
	if err := txn.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM quiz_attempts WHERE learner_id = $1 AND quiz_id = $2`,
		learnerID, quizID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Record(ctx context.Context, a Attempt) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := txn.Conn(ctx, s.pool).Exec(ctx,
		`INSERT INTO quiz_attempts
		   (id, learner_id, quiz_id, attempt_number, correct, total, score, reward_points, submitted_at)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.LearnerID, a.QuizID, a.Number, a.Correct, a.Total, a.Score, a.RewardPoints, a.SubmittedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperror.Conflict("assessment.Record", "attempt %d on quiz %s already graded", a.Number, a.QuizID)
		}
		return apperror.Internal("assessment.Record", fmt.Errorf("insert attempt: %w", err))
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, learnerID, quizID string) ([]Attempt, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := txn.Conn(ctx, s.pool).Query(ctx,
		`SELECT id::text, learner_id, quiz_id, attempt_number, correct, total, score, reward_points, submitted_at
		 FROM quiz_attempts
		 WHERE learner_id = $1 AND quiz_id = $2
		 ORDER BY attempt_number`,
		learnerID, quizID,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	out := []Attempt{}
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.LearnerID, &a.QuizID, &a.Number, &a.Correct, &a.Total, &a.Score, &a.RewardPoints, &a.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}
