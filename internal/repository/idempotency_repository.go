package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/dispatch-engine/internal/domain"
	"github.com/spec-kit/dispatch-engine/internal/ledger"
)

type idempotencyRepository struct {
	pool *pgxpool.Pool
}

// NewIdempotencyRepository returns the postgres idempotency table. The claim
// path is a single INSERT ... ON CONFLICT DO NOTHING, so concurrent claims
// across instances serialize on the primary key.
func NewIdempotencyRepository(pool *pgxpool.Pool) ledger.Store {
	return &idempotencyRepository{pool: pool}
}

const idempotencyColumns = `key, status, result, claimed_at, completed_at`

func (r *idempotencyRepository) Claim(ctx context.Context, key, token string, now time.Time, staleAfter time.Duration) (domain.ClaimResult, error) {
	const insert = `
        INSERT INTO idempotency_keys (key, status, token, claimed_at)
        VALUES ($1, 'in_progress', $2, $3)
        ON CONFLICT (key) DO NOTHING`
	const takeover = `
        UPDATE idempotency_keys SET token=$2, claimed_at=$3
        WHERE key=$1 AND status='in_progress' AND claimed_at <= $4
        RETURNING ` + idempotencyColumns

	// A concurrent release can delete the row between the insert and the
	// read, so retry a few times before reporting it.
	for attempt := 0; attempt < 3; attempt++ {
		tag, err := r.pool.Exec(ctx, insert, key, token, now)
		if err != nil {
			return domain.ClaimResult{}, err
		}
		if tag.RowsAffected() == 1 {
			return domain.ClaimResult{
				Outcome: domain.ClaimWon,
				Record:  domain.IdempotencyRecord{Key: key, Status: domain.IdempotencyInProgress, ClaimedAt: now},
			}, nil
		}

		if staleAfter > 0 {
			rec, err := scanIdempotency(r.pool.QueryRow(ctx, takeover, key, token, now, now.Add(-staleAfter)))
			if err == nil {
				return domain.ClaimResult{Outcome: domain.ClaimReclaimed, Record: rec}, nil
			}
			if !errors.Is(err, domain.ErrRecordNotFound) {
				return domain.ClaimResult{}, err
			}
		}

		rec, err := r.Get(ctx, key)
		if errors.Is(err, domain.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return domain.ClaimResult{}, err
		}
		return domain.ClaimResult{Outcome: domain.ClaimHeld, Record: rec}, nil
	}
	return domain.ClaimResult{}, fmt.Errorf("claim %s: key churned during claim", ledger.ShortKey(key))
}

func (r *idempotencyRepository) Commit(ctx context.Context, key, token string, result []byte, now time.Time) error {
	const query = `
        UPDATE idempotency_keys SET status='completed', result=$3, completed_at=$4
        WHERE key=$1 AND token=$2 AND status='in_progress'`
	tag, err := r.pool.Exec(ctx, query, key, token, result, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrClaimLost
	}
	return nil
}

func (r *idempotencyRepository) Release(ctx context.Context, key, token string) error {
	const query = `DELETE FROM idempotency_keys WHERE key=$1 AND token=$2 AND status='in_progress'`
	tag, err := r.pool.Exec(ctx, query, key, token)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrClaimLost
	}
	return nil
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	const query = `SELECT ` + idempotencyColumns + ` FROM idempotency_keys WHERE key=$1`
	return scanIdempotency(r.pool.QueryRow(ctx, query, key))
}

func (r *idempotencyRepository) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE claimed_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanIdempotency(row pgx.Row) (domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	var status string
	if err := row.Scan(&rec.Key, &status, &rec.Result, &rec.ClaimedAt, &rec.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.IdempotencyRecord{}, domain.ErrRecordNotFound
		}
		return domain.IdempotencyRecord{}, err
	}
	rec.Status = domain.IdempotencyStatus(status)
	return rec, nil
}
