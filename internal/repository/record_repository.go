package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/dispatch-engine/internal/domain"
)

// RecordUpsert is one record write. DedupeKey makes the write repeatable:
// a second upsert with the same key updates the first row.
type RecordUpsert struct {
	AccountID string
	Domain    domain.TargetDomain
	Kind      string
	DedupeKey string
	Fields    map[string]any
}

// RecordRepository stores accounts and domain records. Bookings are written
// by the confirmation flow outside this service and only read here.
type RecordRepository interface {
	FindOrCreateAccount(ctx context.Context, anchor domain.IdentityAnchor) (string, error)
	UpsertRecord(ctx context.Context, in RecordUpsert) (string, error)
	CapabilityAvailable(ctx context.Context, d domain.TargetDomain) (bool, error)
	ListBookings(ctx context.Context, from, to time.Time) ([]domain.TimeSlot, error)
}

type recordRepository struct {
	pool *pgxpool.Pool
}

// NewRecordRepository instantiates repository.
func NewRecordRepository(pool *pgxpool.Pool) RecordRepository {
	return &recordRepository{pool: pool}
}

func (r *recordRepository) FindOrCreateAccount(ctx context.Context, anchor domain.IdentityAnchor) (string, error) {
	if anchor.Empty() {
		return "", errors.New("identity anchor is empty")
	}
	if id, err := r.findAccount(ctx, anchor); err == nil || !errors.Is(err, pgx.ErrNoRows) {
		return id, err
	}

	const insert = `
        INSERT INTO accounts (id, phone, email, name) VALUES ($1,$2,$3,$4)
        ON CONFLICT DO NOTHING
        RETURNING id::text`
	var id string
	err := r.pool.QueryRow(ctx, insert, uuid.NewString(), nullable(anchor.Phone), nullable(anchor.Email), nullable(anchor.Name)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost an insert race on phone or email; the winner's row is there now.
		return r.findAccount(ctx, anchor)
	}
	return id, err
}

func (r *recordRepository) findAccount(ctx context.Context, anchor domain.IdentityAnchor) (string, error) {
	lookups := []struct {
		column string
		value  string
	}{
		{"phone", anchor.Phone},
		{"email", anchor.Email},
		{"name", anchor.Name},
	}
	for _, l := range lookups {
		if l.value == "" {
			continue
		}
		var id string
		query := fmt.Sprintf(`SELECT id::text FROM accounts WHERE %s=$1 ORDER BY created_at LIMIT 1`, l.column)
		err := r.pool.QueryRow(ctx, query, l.value).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", err
		}
	}
	return "", pgx.ErrNoRows
}

func (r *recordRepository) UpsertRecord(ctx context.Context, in RecordUpsert) (string, error) {
	fields, err := json.Marshal(in.Fields)
	if err != nil {
		return "", fmt.Errorf("encode record fields: %w", err)
	}

	const upsert = `
        INSERT INTO records (id, account_id, domain, kind, dedupe_key, fields)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (dedupe_key) DO UPDATE SET fields=EXCLUDED.fields, updated_at=NOW()
        RETURNING id::text`
	var id string
	err = r.pool.QueryRow(ctx, upsert, uuid.NewString(), in.AccountID, in.Domain, in.Kind, in.DedupeKey, fields).Scan(&id)
	return id, err
}

func (r *recordRepository) CapabilityAvailable(ctx context.Context, d domain.TargetDomain) (bool, error) {
	var available bool
	err := r.pool.QueryRow(ctx, `SELECT available FROM capabilities WHERE domain=$1`, d).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return available, err
}

func (r *recordRepository) ListBookings(ctx context.Context, from, to time.Time) ([]domain.TimeSlot, error) {
	const query = `
        SELECT technician_id, starts_at, ends_at FROM bookings
        WHERE starts_at < $2 AND ends_at > $1
        ORDER BY starts_at`
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []domain.TimeSlot
	for rows.Next() {
		var s domain.TimeSlot
		if err := rows.Scan(&s.TechnicianID, &s.Start, &s.End); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}
