package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/dispatch-engine/internal/domain"
	"github.com/spec-kit/dispatch-engine/internal/ledger"
)

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository returns the postgres audit log. The table rejects
// UPDATE and DELETE through a trigger.
func NewAuditRepository(pool *pgxpool.Pool) ledger.AuditLog {
	return &auditRepository{pool: pool}
}

const auditColumns = `
        id::text, kind, request_id, COALESCE(idempotency_key, ''), intent, target_domain, status,
        command_snapshot, decision_snapshot, record_ids, COALESCE(corrects_entry_id::text, ''),
        COALESCE(note, ''), created_at`

func (r *auditRepository) Append(ctx context.Context, entry domain.AuditEntry) error {
	const query = `
        INSERT INTO audit_entries (id, kind, request_id, idempotency_key, intent, target_domain, status,
            command_snapshot, decision_snapshot, record_ids, corrects_entry_id, note, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	command, err := nullableJSON(entry.CommandSnapshot, entry.CommandSnapshot == nil)
	if err != nil {
		return fmt.Errorf("encode command snapshot: %w", err)
	}
	decision, err := nullableJSON(entry.DecisionSnapshot, entry.DecisionSnapshot == nil)
	if err != nil {
		return fmt.Errorf("encode decision snapshot: %w", err)
	}
	recordIDs := entry.RecordIDs
	if recordIDs == nil {
		recordIDs = []string{}
	}

	_, err = r.pool.Exec(ctx, query,
		entry.ID,
		entry.Kind,
		entry.RequestID,
		nullable(entry.IdempotencyKey),
		entry.Intent,
		entry.TargetDomain,
		entry.Status,
		command,
		decision,
		recordIDs,
		nullable(entry.CorrectsEntryID),
		nullable(entry.Note),
		entry.CreatedAt,
	)
	return err
}

func (r *auditRepository) Get(ctx context.Context, id string) (domain.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE id::text=$1`
	entry, err := scanAudit(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AuditEntry{}, domain.ErrRecordNotFound
	}
	return entry, err
}

func (r *auditRepository) ByRequest(ctx context.Context, requestID string) ([]domain.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE request_id=$1 ORDER BY seq`
	rows, err := r.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		entry, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanAudit(row pgx.Row) (domain.AuditEntry, error) {
	var (
		entry    domain.AuditEntry
		kind     string
		intent   string
		target   string
		status   string
		command  []byte
		decision []byte
	)
	if err := row.Scan(
		&entry.ID,
		&kind,
		&entry.RequestID,
		&entry.IdempotencyKey,
		&intent,
		&target,
		&status,
		&command,
		&decision,
		&entry.RecordIDs,
		&entry.CorrectsEntryID,
		&entry.Note,
		&entry.CreatedAt,
	); err != nil {
		return domain.AuditEntry{}, err
	}
	entry.Kind = domain.AuditEntryKind(kind)
	entry.Intent = domain.Intent(intent)
	entry.TargetDomain = domain.TargetDomain(target)
	entry.Status = domain.DecisionStatus(status)

	if len(command) > 0 {
		if err := json.Unmarshal(command, &entry.CommandSnapshot); err != nil {
			return domain.AuditEntry{}, fmt.Errorf("decode command snapshot: %w", err)
		}
	}
	if len(decision) > 0 {
		entry.DecisionSnapshot = &domain.Decision{}
		if err := json.Unmarshal(decision, entry.DecisionSnapshot); err != nil {
			return domain.AuditEntry{}, fmt.Errorf("decode decision snapshot: %w", err)
		}
	}
	return entry, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableJSON(v any, isNil bool) ([]byte, error) {
	if isNil {
		return nil, nil
	}
	return json.Marshal(v)
}
