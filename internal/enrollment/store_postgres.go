package enrollment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-learn/internal/apperror"
	"github.com/p-n-ai/pai-learn/internal/platform/txn"
)

const (
	dbTimeout       = 5 * time.Second
	uniqueViolation = "23505"
)

const enrollmentColumns = `learner_id, course_id, status, progress_percentage, enrolled_at, completed_at`

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed enrollment store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Create(ctx context.Context, e Enrollment) error {
	const op = "enrollment.Create"
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := txn.Conn(ctx, s.pool).Exec(ctx,
		`INSERT INTO enrollments (`+enrollmentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.LearnerID,
		e.CourseID,
		string(e.Status),
		e.ProgressPercentage,
		e.EnrolledAt,
		e.CompletedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperror.Conflict(op, "learner %s is already enrolled in %s", e.LearnerID, e.CourseID)
		}
		return apperror.Internal(op, fmt.Errorf("insert enrollment: %w", err))
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, learnerID, courseID string) (Enrollment, error) {
	const op = "enrollment.Get"
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := txn.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+enrollmentColumns+`
		 FROM enrollments
		 WHERE learner_id = $1 AND course_id = $2`,
		learnerID,
		courseID,
	)
	e, err := scanEnrollment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Enrollment{}, notFound(op, learnerID, courseID)
		}
		return Enrollment{}, apperror.Internal(op, fmt.Errorf("get enrollment: %w", err))
	}
	return e, nil
}

func (s *PostgresStore) Update(ctx context.Context, e Enrollment) error {
	const op = "enrollment.Update"
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := txn.Conn(ctx, s.pool).Exec(ctx,
		`UPDATE enrollments
		 SET status = $3, progress_percentage = $4, enrolled_at = $5, completed_at = $6, updated_at = NOW()
		 WHERE learner_id = $1 AND course_id = $2`,
		e.LearnerID,
		e.CourseID,
		string(e.Status),
		e.ProgressPercentage,
		e.EnrolledAt,
		e.CompletedAt,
	)
	if err != nil {
		return apperror.Internal(op, fmt.Errorf("update enrollment: %w", err))
	}
	if cmd.RowsAffected() == 0 {
		return notFound(op, e.LearnerID, e.CourseID)
	}
	return nil
}

func (s *PostgresStore) Replace(ctx context.Context, e Enrollment) error {
	const op = "enrollment.Replace"
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := txn.Conn(ctx, s.pool).Exec(ctx,
		`INSERT INTO enrollments (`+enrollmentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (learner_id, course_id) DO UPDATE
		 SET status = EXCLUDED.status,
		     progress_percentage = EXCLUDED.progress_percentage,
		     enrolled_at = EXCLUDED.enrolled_at,
		     completed_at = EXCLUDED.completed_at,
		     updated_at = NOW()`,
		e.LearnerID,
		e.CourseID,
		string(e.Status),
		e.ProgressPercentage,
		e.EnrolledAt,
		e.CompletedAt,
	)
	if err != nil {
		return apperror.Internal(op, fmt.Errorf("replace enrollment: %w", err))
	}
	return nil
}

func (s *PostgresStore) ListByLearner(ctx context.Context, learnerID string) ([]Enrollment, error) {
	return s.list(ctx, "enrollment.ListByLearner",
		`SELECT `+enrollmentColumns+` FROM enrollments
		 WHERE learner_id = $1
		 ORDER BY learner_id, course_id`,
		learnerID,
	)
}

func (s *PostgresStore) ListByCourse(ctx context.Context, courseID string) ([]Enrollment, error) {
	return s.list(ctx, "enrollment.ListByCourse",
		`SELECT `+enrollmentColumns+` FROM enrollments
		 WHERE course_id = $1
		 ORDER BY learner_id, course_id`,
		courseID,
	)
}

func (s *PostgresStore) All(ctx context.Context) ([]Enrollment, error) {
	return s.list(ctx, "enrollment.All",
		`SELECT `+enrollmentColumns+` FROM enrollments
		 ORDER BY learner_id, course_id`,
	)
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Enrollment, error) {
	return s.list(ctx, "enrollment.Recent",
		`SELECT `+enrollmentColumns+` FROM enrollments
		 ORDER BY enrolled_at DESC
		 LIMIT $1`,
		limit,
	)
}

func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var st Stats
	err := txn.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'ACTIVE'),
		        COUNT(DISTINCT learner_id)
		 FROM enrollments`,
	).Scan(&st.Enrollments, &st.Active, &st.Learners)
	if err != nil {
		return Stats{}, apperror.Internal("enrollment.Stats", fmt.Errorf("count enrollments: %w", err))
	}
	return st, nil
}

func (s *PostgresStore) list(ctx context.Context, op, query string, args ...any) ([]Enrollment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := txn.Conn(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, apperror.Internal(op, fmt.Errorf("query enrollments: %w", err))
	}
	defer rows.Close()

	out := []Enrollment{}
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, apperror.Internal(op, fmt.Errorf("scan enrollment: %w", err))
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Internal(op, fmt.Errorf("iterate enrollments: %w", err))
	}
	return out, nil
}

func scanEnrollment(row pgx.Row) (Enrollment, error) {
	var (
		e      Enrollment
		status string
	)
	if err := row.Scan(
		&e.LearnerID,
		&e.CourseID,
		&status,
		&e.ProgressPercentage,
		&e.EnrolledAt,
		&e.CompletedAt,
	); err != nil {
		return Enrollment{}, err
	}
	e.Status = Status(status)
	return e, nil
}
