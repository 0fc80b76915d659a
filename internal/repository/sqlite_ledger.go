package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spec-kit/dispatch-engine/internal/domain"
	"github.com/spec-kit/dispatch-engine/internal/ledger"
)

// SQLiteStore is the single-node idempotency table.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

var _ ledger.Store = (*SQLiteStore)(nil)

func (s *SQLiteStore) Claim(ctx context.Context, key, token string, now time.Time, staleAfter time.Duration) (domain.ClaimResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ClaimResult{}, err
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`INSERT INTO idempotency_keys(key,status,token,claimed_at) VALUES (?,?,?,?) ON CONFLICT(key) DO NOTHING`,
		key, domain.IdempotencyInProgress, token, now.UnixNano())
	if err != nil {
		return domain.ClaimResult{}, err
	}
	outcome := domain.ClaimHeld
	if n, _ := res.RowsAffected(); n == 1 {
		outcome = domain.ClaimWon
	} else if staleAfter > 0 {
		res, err = tx.ExecContext(ctx,
			`UPDATE idempotency_keys SET token=?, claimed_at=? WHERE key=? AND status=? AND claimed_at<=?`,
			token, now.UnixNano(), key, domain.IdempotencyInProgress, now.Add(-staleAfter).UnixNano())
		if err != nil {
			return domain.ClaimResult{}, err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			outcome = domain.ClaimReclaimed
		}
	}

	rec, err := scanSQLiteKey(tx.QueryRowContext(ctx, sqliteKeySelect, key))
	if err != nil {
		return domain.ClaimResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ClaimResult{}, err
	}
	return domain.ClaimResult{Outcome: outcome, Record: rec}, nil
}

func (s *SQLiteStore) Commit(ctx context.Context, key, token string, result []byte, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE idempotency_keys SET status=?, result=?, completed_at=? WHERE key=? AND token=? AND status=?`,
		domain.IdempotencyCompleted, result, now.UnixNano(), key, token, domain.IdempotencyInProgress)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (s *SQLiteStore) Release(ctx context.Context, key, token string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM idempotency_keys WHERE key=? AND token=? AND status=?`,
		key, token, domain.IdempotencyInProgress)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	return scanSQLiteKey(s.db.QueryRowContext(ctx, sqliteKeySelect, key))
}

func (s *SQLiteStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE claimed_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const sqliteKeySelect = `SELECT key, status, result, claimed_at, completed_at FROM idempotency_keys WHERE key=?`

func scanSQLiteKey(row *sql.Row) (domain.IdempotencyRecord, error) {
	var (
		rec       domain.IdempotencyRecord
		status    string
		claimed   int64
		completed sql.NullInt64
	)
	if err := row.Scan(&rec.Key, &status, &rec.Result, &claimed, &completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.IdempotencyRecord{}, domain.ErrRecordNotFound
		}
		return domain.IdempotencyRecord{}, err
	}
	rec.Status = domain.IdempotencyStatus(status)
	rec.ClaimedAt = time.Unix(0, claimed).UTC()
	if completed.Valid {
		ts := time.Unix(0, completed.Int64).UTC()
		rec.CompletedAt = &ts
	}
	return rec, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrClaimLost
	}
	return nil
}

// SQLiteAudit stores audit entries as JSON bodies.
type SQLiteAudit struct {
	db *sql.DB
}

func NewSQLiteAudit(db *sql.DB) *SQLiteAudit {
	return &SQLiteAudit{db: db}
}

var _ ledger.AuditLog = (*SQLiteAudit)(nil)

func (a *SQLiteAudit) Append(ctx context.Context, entry domain.AuditEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	_, err = a.db.ExecContext(ctx,
		`INSERT INTO audit_entries(id,kind,request_id,created_at,body) VALUES (?,?,?,?,?)`,
		entry.ID, entry.Kind, entry.RequestID, entry.CreatedAt.UnixNano(), string(body))
	return err
}

func (a *SQLiteAudit) Get(ctx context.Context, id string) (domain.AuditEntry, error) {
	var body string
	err := a.db.QueryRowContext(ctx, `SELECT body FROM audit_entries WHERE id=?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AuditEntry{}, domain.ErrRecordNotFound
	}
	if err != nil {
		return domain.AuditEntry{}, err
	}
	return decodeAudit(body)
}

func (a *SQLiteAudit) ByRequest(ctx context.Context, requestID string) ([]domain.AuditEntry, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT body FROM audit_entries WHERE request_id=? ORDER BY seq`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		entry, err := decodeAudit(body)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func decodeAudit(body string) (domain.AuditEntry, error) {
	var entry domain.AuditEntry
	if err := json.Unmarshal([]byte(body), &entry); err != nil {
		return domain.AuditEntry{}, fmt.Errorf("decode audit entry: %w", err)
	}
	return entry, nil
}
