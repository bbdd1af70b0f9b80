package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-learn/internal/apperror"
	"github.com/p-n-ai/pai-learn/internal/platform/txn"
)

const dbTimeout = 5 * time.Second

const progressColumns = `learner_id, lesson_id, course_id, completed, time_spent, last_viewed`

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed progress store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Touch(ctx context.Context, learnerID, lessonID, courseID string, at time.Time) (Progress, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	p, err := scanProgress(txn.Conn(ctx, s.pool).QueryRow(ctx,
		`INSERT INTO lesson_progress (learner_id, lesson_id, course_id, last_viewed)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (learner_id, lesson_id) DO UPDATE
		 SET last_viewed = EXCLUDED.last_viewed
		 RETURNING `+progressColumns,
		learnerID, lessonID, courseID, at,
	))
	if err != nil {
		return Progress{}, apperror.Internal("progress.Touch", fmt.Errorf("upsert view: %w", err))
	}
	return p, nil
}

func (s *PostgresStore) MarkComplete(ctx context.Context, learnerID, lessonID, courseID string, at time.Time) (Progress, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var (
		p   Progress
		was *bool
	)
	// Every sub-statement sees the same snapshot, so prev holds the flag
	// as it was before the upsert.
	err := txn.Conn(ctx, s.pool).QueryRow(ctx,
		`WITH prev AS (
		   SELECT completed FROM lesson_progress WHERE learner_id = $1 AND lesson_id = $2
		 )
		 INSERT INTO lesson_progress (learner_id, lesson_id, course_id, completed, last_viewed)
		 VALUES ($1, $2, $3, TRUE, $4)
		 ON CONFLICT (learner_id, lesson_id) DO UPDATE
		 SET completed = TRUE, last_viewed = EXCLUDED.last_viewed
		 RETURNING `+progressColumns+`, (SELECT completed FROM prev)`,
		learnerID, lessonID, courseID, at,
	).Scan(&p.LearnerID, &p.LessonID, &p.CourseID, &p.Completed, &p.TimeSpent, &p.LastViewed, &was)
	if err != nil {
		return Progress{}, false, apperror.Internal("progress.MarkComplete", fmt.Errorf("upsert completion: %w", err))
	}
	return p, was != nil && *was, nil
}

func (s *PostgresStore) AddTime(ctx context.Context, learnerID, lessonID, courseID string, minutes int, at time.Time) (Progress, error) {
	if minutes < 0 {
		return Progress{}, apperror.Invalid("progress.AddTime", "minutes must not be negative")
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	p, err := scanProgress(txn.Conn(ctx, s.pool).QueryRow(ctx,
		`INSERT INTO lesson_progress (learner_id, lesson_id, course_id, time_spent, last_viewed)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (learner_id, lesson_id) DO UPDATE
		 SET time_spent = lesson_progress.time_spent + EXCLUDED.time_spent
		 RETURNING `+progressColumns,
		learnerID, lessonID, courseID, minutes, at,
	))
	if err != nil {
		return Progress{}, apperror.Internal("progress.AddTime", fmt.Errorf("add time spent: %w", err))
	}
	return p, nil
}

func (s *PostgresStore) Get(ctx context.Context, learnerID, lessonID string) (Progress, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	p, err := scanProgress(txn.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+progressColumns+`
		 FROM lesson_progress
		 WHERE learner_id = $1 AND lesson_id = $2`,
		learnerID, lessonID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Progress{}, apperror.NotFound("progress.Get", "no progress for learner %s on lesson %s", learnerID, lessonID)
		}
		return Progress{}, apperror.Internal("progress.Get", fmt.Errorf("get progress: %w", err))
	}
	return p, nil
}

func (s *PostgresStore) CountCompleted(ctx context.Context, learnerID, courseID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var n int
	if err := txn.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM lesson_progress
		 WHERE learner_id = $1 AND course_id = $2 AND completed`,
		learnerID, courseID,
	).Scan(&n); err != nil {
		return 0, apperror.Internal("progress.CountCompleted", fmt.Errorf("count completed: %w", err))
	}
	return n, nil
}

func (s *PostgresStore) ClearCompleted(ctx context.Context, learnerID, courseID string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := txn.Conn(ctx, s.pool).Exec(ctx,
		`UPDATE lesson_progress SET completed = FALSE
		 WHERE learner_id = $1 AND course_id = $2 AND completed`,
		learnerID, courseID,
	); err != nil {
		return apperror.Internal("progress.ClearCompleted", fmt.Errorf("clear completions: %w", err))
	}
	return nil
}

func (s *PostgresStore) TimeSpentByLearner(ctx context.Context, courseID string) (map[string]int, error) {
	const op = "progress.TimeSpentByLearner"
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := txn.Conn(ctx, s.pool).Query(ctx,
		`SELECT learner_id, COALESCE(SUM(time_spent), 0)
		 FROM lesson_progress
		 WHERE course_id = $1
		 GROUP BY learner_id`,
		courseID,
	)
	if err != nil {
		return nil, apperror.Internal(op, fmt.Errorf("sum time spent: %w", err))
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			learnerID string
			total     int64
		)
		if err := rows.Scan(&learnerID, &total); err != nil {
			return nil, apperror.Internal(op, fmt.Errorf("scan time spent: %w", err))
		}
		out[learnerID] = int(total)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Internal(op, fmt.Errorf("iterate time spent: %w", err))
	}
	return out, nil
}

func (s *PostgresStore) RecentlyViewed(ctx context.Context, learnerID string, limit int) ([]Progress, error) {
	const op = "progress.RecentlyViewed"
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := txn.Conn(ctx, s.pool).Query(ctx,
		`SELECT `+progressColumns+`
		 FROM lesson_progress
		 WHERE learner_id = $1
		 ORDER BY last_viewed DESC, lesson_id
		 LIMIT $2`,
		learnerID, limit,
	)
	if err != nil {
		return nil, apperror.Internal(op, fmt.Errorf("query recently viewed: %w", err))
	}
	defer rows.Close()

	out := []Progress{}
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, apperror.Internal(op, fmt.Errorf("scan progress: %w", err))
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Internal(op, fmt.Errorf("iterate progress: %w", err))
	}
	return out, nil
}

func scanProgress(row pgx.Row) (Progress, error) {
	var p Progress
	err := row.Scan(&p.LearnerID, &p.LessonID, &p.CourseID, &p.Completed, &p.TimeSpent, &p.LastViewed)
	return p, err
}
