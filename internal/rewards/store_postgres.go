package rewards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-learn/internal/platform/txn"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed rewards store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, learnerID string) (Account, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	acct := Account{LearnerID: learnerID}
	err := txn.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT total_points, badge, updated_at
		 FROM rewards_accounts
		 WHERE learner_id = $1`,
		learnerID,
	).Scan(&acct.TotalPoints, &acct.Badge, &acct.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, false, nil
		}
		return Account{}, false, fmt.Errorf("get rewards account: %w", err)
	}
	return acct, true, nil
}

func (s *PostgresStore) Add(ctx context.Context, learnerID string, points int64, badgeFor func(int64) string) (Account, Account, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	before := Account{LearnerID: learnerID}
	after := Account{LearnerID: learnerID}

	err := txn.Begin(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO rewards_accounts (learner_id, total_points, badge)
			 VALUES ($1, 0, $2)
			 ON CONFLICT (learner_id) DO NOTHING`,
			learnerID, badgeFor(0),
		); err != nil {
			return fmt.Errorf("materialize account: %w", err)
		}

		if err := tx.QueryRow(ctx,
			`SELECT total_points, badge FROM rewards_accounts
			 WHERE learner_id = $1
			 FOR UPDATE`,
			learnerID,
		).Scan(&before.TotalPoints, &before.Badge); err != nil {
			return fmt.Errorf("lock account: %w", err)
		}

		total := before.TotalPoints + points
		return tx.QueryRow(ctx,
			`UPDATE rewards_accounts
			 SET total_points = $2, badge = $3, updated_at = NOW()
			 WHERE learner_id = $1
			 RETURNING total_points, badge, updated_at`,
			learnerID, total, badgeFor(total),
		).Scan(&after.TotalPoints, &after.Badge, &after.UpdatedAt)
	})
	if err != nil {
		return Account{}, Account{}, fmt.Errorf("credit rewards account: %w", err)
	}
	return before, after, nil
}
