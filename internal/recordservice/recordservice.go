// Package recordservice adapts the external record service the dispatch
// pipeline writes decisions into.
package recordservice

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/dispatch-engine/internal/domain"
	"github.com/spec-kit/dispatch-engine/internal/repository"
)

// Service is the record-service contract. Callers treat every error as
// transient.
type Service interface {
	FindOrCreateAccount(ctx context.Context, anchor domain.IdentityAnchor) (string, error)
	UpsertRecord(ctx context.Context, accountID string, m domain.RecordMutation, dedupeKey string) (string, error)
	CapabilityAvailable(ctx context.Context, d domain.TargetDomain) (bool, error)
}

// BookingLookup is implemented by services that expose existing
// technician bookings.
type BookingLookup interface {
	ListBookings(ctx context.Context, from, to time.Time) ([]domain.TimeSlot, error)
}

// Postgres backs the record service with the shared records database.
type Postgres struct {
	repo repository.RecordRepository
}

func NewPostgres(repo repository.RecordRepository) *Postgres {
	return &Postgres{repo: repo}
}

func (p *Postgres) FindOrCreateAccount(ctx context.Context, anchor domain.IdentityAnchor) (string, error) {
	return p.repo.FindOrCreateAccount(ctx, anchor)
}

func (p *Postgres) UpsertRecord(ctx context.Context, accountID string, m domain.RecordMutation, dedupeKey string) (string, error) {
	return p.repo.UpsertRecord(ctx, repository.RecordUpsert{
		AccountID: accountID,
		Domain:    m.Domain,
		Kind:      m.Kind,
		DedupeKey: dedupeKey,
		Fields:    m.Fields,
	})
}

func (p *Postgres) CapabilityAvailable(ctx context.Context, d domain.TargetDomain) (bool, error) {
	return p.repo.CapabilityAvailable(ctx, d)
}

func (p *Postgres) ListBookings(ctx context.Context, from, to time.Time) ([]domain.TimeSlot, error) {
	return p.repo.ListBookings(ctx, from, to)
}

// Record is one stored row of the in-memory service.
type Record struct {
	ID        string
	AccountID string
	Mutation  domain.RecordMutation
}

// Memory is an in-process record service. Failures can be injected per
// domain to exercise the downgrade path.
type Memory struct {
	mu          sync.Mutex
	accounts    map[string]string
	records     map[string]Record
	order       []string
	bookings    []domain.TimeSlot
	unavailable map[domain.TargetDomain]bool
	failUpserts map[domain.TargetDomain]error
	upsertCalls int
}

func NewMemory() *Memory {
	return &Memory{
		accounts:    map[string]string{},
		records:     map[string]Record{},
		unavailable: map[domain.TargetDomain]bool{},
		failUpserts: map[domain.TargetDomain]error{},
	}
}

// ErrInjected is returned by FailUpserts when no error is given.
var ErrInjected = errors.New("record service unavailable")

// SetUnavailable marks a domain's capability as missing.
func (m *Memory) SetUnavailable(d domain.TargetDomain, unavailable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable[d] = unavailable
}

// FailUpserts makes every upsert for d fail with err.
func (m *Memory) FailUpserts(d domain.TargetDomain, err error) {
	if err == nil {
		err = ErrInjected
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failUpserts[d] = err
}

// Book adds an existing booking.
func (m *Memory) Book(slot domain.TimeSlot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings = append(m.bookings, slot)
}

func (m *Memory) FindOrCreateAccount(_ context.Context, anchor domain.IdentityAnchor) (string, error) {
	if anchor.Empty() {
		return "", errors.New("identity anchor is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := anchorKeys(anchor)
	for _, k := range keys {
		if id, ok := m.accounts[k]; ok {
			return id, nil
		}
	}
	id := uuid.NewString()
	for _, k := range keys {
		m.accounts[k] = id
	}
	return id, nil
}

func anchorKeys(a domain.IdentityAnchor) []string {
	var keys []string
	if a.Phone != "" {
		keys = append(keys, "phone:"+a.Phone)
	}
	if a.Email != "" {
		keys = append(keys, "email:"+strings.ToLower(a.Email))
	}
	if a.Name != "" {
		keys = append(keys, "name:"+strings.ToLower(a.Name))
	}
	return keys
}

func (m *Memory) UpsertRecord(_ context.Context, accountID string, mut domain.RecordMutation, dedupeKey string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertCalls++

	if err := m.failUpserts[mut.Domain]; err != nil {
		return "", fmt.Errorf("upsert %s record: %w", mut.Domain, err)
	}
	if rec, ok := m.records[dedupeKey]; ok {
		rec.Mutation = mut
		m.records[dedupeKey] = rec
		return rec.ID, nil
	}
	rec := Record{ID: uuid.NewString(), AccountID: accountID, Mutation: mut}
	m.records[dedupeKey] = rec
	m.order = append(m.order, dedupeKey)
	return rec.ID, nil
}

func (m *Memory) CapabilityAvailable(_ context.Context, d domain.TargetDomain) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.unavailable[d], nil
}

func (m *Memory) ListBookings(_ context.Context, from, to time.Time) ([]domain.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	window := domain.TimeSlot{Start: from, End: to}
	var out []domain.TimeSlot
	for _, b := range m.bookings {
		if b.Overlaps(window) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// Records returns stored records in insertion order.
func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.records[k])
	}
	return out
}

// UpsertCalls counts upsert attempts, failed ones included.
func (m *Memory) UpsertCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertCalls
}
