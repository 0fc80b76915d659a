package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-engine/internal/catalog"
	"github.com/spec-kit/dispatch-engine/internal/domain"
	"github.com/spec-kit/dispatch-engine/internal/events"
	"github.com/spec-kit/dispatch-engine/internal/extractor"
	"github.com/spec-kit/dispatch-engine/internal/jobs"
	"github.com/spec-kit/dispatch-engine/internal/ledger"
	"github.com/spec-kit/dispatch-engine/internal/observability"
	"github.com/spec-kit/dispatch-engine/internal/policy"
	"github.com/spec-kit/dispatch-engine/internal/pricing"
	"github.com/spec-kit/dispatch-engine/internal/qualification"
	"github.com/spec-kit/dispatch-engine/internal/recordservice"
	"github.com/spec-kit/dispatch-engine/internal/router"
	"github.com/spec-kit/dispatch-engine/internal/scheduling"
	"github.com/spec-kit/dispatch-engine/pkg/util/errorutil"
)

// Human reasons the pipeline itself produces.
const (
	ReasonDuplicateInProgress = "duplicate_in_progress"
	ReasonLedgerUnavailable   = "ledger_unavailable"
)

// CapabilityJobScheduler names the job-queue collaborator in missing_capabilities.
const CapabilityJobScheduler = "job_scheduler"

// DispatchService runs extract, route, dispatch and ledger for one request.
type DispatchService struct {
	source     catalog.Source
	extractor  *extractor.Extractor
	ledger     *ledger.Ledger
	records    recordservice.Service
	jobs       jobs.Queue
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	clock      func() time.Time

	scheduler *scheduling.Engine
	pricer    *pricing.Engine
	approvals *pricing.Approvals
	qualifier *qualification.Engine
	policies  *policy.Engine
}

// DispatchDependencies bundles collaborators for the dispatch service.
type DispatchDependencies struct {
	Source     catalog.Source
	Ledger     *ledger.Ledger
	Records    recordservice.Service
	Jobs       jobs.Queue
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      func() time.Time
}

// NewDispatchService wires the rule engines against one table source.
func NewDispatchService(deps DispatchDependencies) *DispatchService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &DispatchService{
		source:     deps.Source,
		extractor:  extractor.New(deps.Source),
		ledger:     deps.Ledger,
		records:    deps.Records,
		jobs:       deps.Jobs,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		clock:      clock,
		scheduler:  scheduling.New(deps.Source),
		pricer:     pricing.New(deps.Source),
		approvals:  pricing.NewApprovals(deps.Source),
		qualifier:  qualification.New(deps.Source),
		policies:   policy.New(deps.Source),
	}
}

// ProcessInput is one inbound request from a transport.
type ProcessInput struct {
	Text    string
	Channel domain.Channel
	Caller  domain.CallerContext
}

// ProcessResult is what the transport gets back.
type ProcessResult struct {
	SpeakText      string                `json:"speak_text"`
	Action         domain.DecisionStatus `json:"action"`
	StructuredData domain.Decision       `json:"structured_data"`
	MissingFields  []string              `json:"missing_fields,omitempty"`
	RequestID      string                `json:"request_id"`
	Intent         domain.Intent         `json:"intent"`
	Domain         domain.TargetDomain   `json:"domain"`
	IdempotencyKey string                `json:"idempotency_key"`
	Replayed       bool                  `json:"replayed"`
	// Command is the routed envelope; transports must not echo it to callers.
	Command domain.Command `json:"-"`
}

// Process handles one request end to end. Business conditions never come
// back as errors; the returned error is non-nil only for invalid input or a
// cancelled context.
func (s *DispatchService) Process(ctx context.Context, in ProcessInput) (ProcessResult, error) {
	if !in.Channel.Valid() {
		return ProcessResult{}, errorutil.NewValidationError("unknown channel", map[string]any{"channel": in.Channel})
	}
	if in.Caller.RequestID == "" {
		in.Caller.RequestID = uuid.NewString()
	}
	now := s.clock()
	tables := s.source.Current()

	cmd := s.extractor.ExtractWith(in.Text, in.Channel, in.Caller)
	cmd.CreatedAt = now
	cmd = router.Route(cmd, s.discover(ctx, cmd.Intent))
	cmd.IdempotencyKey = ledger.KeyFor(cmd, tables.Location())

	if cmd.RequiresHuman {
		decision := router.Decision(cmd, now)
		return s.finish(ctx, cmd, decision, false), nil
	}

	begin, err := s.ledger.Begin(ctx, cmd.IdempotencyKey)
	switch {
	case err != nil && ctx.Err() != nil:
		return ProcessResult{}, ctx.Err()
	case err != nil:
		s.logger.Warn("idempotency ledger unavailable", zap.String("request_id", cmd.RequestID), zap.Error(err))
		s.metrics.RecordDowngrade(string(domain.EngineLedger))
		decision := domain.Decision{
			Engine:              domain.EngineLedger,
			Status:              domain.StatusNeedsHuman,
			Reason:              ReasonLedgerUnavailable,
			MissingCapabilities: []string{"idempotency_ledger"},
			DecidedAt:           now,
		}
		return s.finish(ctx, cmd, decision, false), nil
	case begin.Completed != nil:
		s.metrics.RecordReplay()
		return s.finish(ctx, cmd, *begin.Completed, true), nil
	case begin.InProgress:
		decision := domain.Decision{
			Engine:    domain.EngineLedger,
			Status:    domain.StatusNeedsHuman,
			Reason:    ReasonDuplicateInProgress,
			DecidedAt: now,
		}
		return s.finish(ctx, cmd, decision, false), nil
	}

	outcome := s.dispatch(ctx, cmd, now)
	s.apply(ctx, cmd, &outcome)
	s.publish(ctx, cmd, outcome)

	if outcome.Decision.Status == domain.StatusCompleted {
		if err := s.ledger.Commit(ctx, begin.Claim, outcome.Decision); err != nil {
			s.logger.Error("commit idempotency result", zap.String("request_id", cmd.RequestID), zap.Error(err))
		}
	} else if err := s.ledger.Release(ctx, begin.Claim); err != nil {
		s.logger.Warn("release idempotency claim", zap.String("request_id", cmd.RequestID), zap.Error(err))
	}
	return s.finish(ctx, cmd, outcome.Decision, false), nil
}

// discover asks the record service whether the intent's domain is up.
// A discovery failure counts as unavailable.
func (s *DispatchService) discover(ctx context.Context, intent domain.Intent) router.Capabilities {
	caps := router.Capabilities{}
	d := router.DomainFor(intent)
	if d == domain.DomainUnresolved || s.records == nil {
		return caps
	}
	ok, err := s.records.CapabilityAvailable(ctx, d)
	if err != nil {
		s.logger.Warn("capability discovery failed", zap.String("domain", string(d)), zap.Error(err))
		ok = false
	}
	caps[d] = ok
	return caps
}

// dispatch runs the domain handler and folds its error into a decision.
func (s *DispatchService) dispatch(ctx context.Context, cmd domain.Command, now time.Time) domain.Outcome {
	outcome, err := s.handle(ctx, cmd, now)
	if err == nil {
		return outcome
	}
	decision := domain.Decision{Engine: engineFor(cmd), DecidedAt: now}
	de, ok := errorutil.AsDispatchError(err)
	if !ok {
		de = errorutil.NewConfigInvariant("unexpected handler failure", err).(*errorutil.DispatchError)
	}
	decision.Status = errorutil.StatusFor(de.Kind)
	decision.Reason = de.Reason
	decision.MissingFields = de.Fields
	if de.Capability != "" {
		decision.MissingCapabilities = []string{de.Capability}
	}

	switch de.Kind {
	case errorutil.KindConfigInvariant:
		s.logger.Error("rule table invariant violated",
			zap.String("request_id", cmd.RequestID),
			zap.String("version", s.source.Current().Version),
			zap.Error(err))
	case errorutil.KindTransientDependency:
		s.metrics.RecordDowngrade(de.Capability)
		s.logger.Warn("dependency failed; decision downgraded", zap.String("request_id", cmd.RequestID), zap.Error(err))
	}
	return domain.Outcome{Decision: decision}
}

// apply performs the outcome's record mutations and job requests. Any
// failure downgrades the decision to needs_human and drops notifications.
func (s *DispatchService) apply(ctx context.Context, cmd domain.Command, out *domain.Outcome) {
	if out.Decision.Status != domain.StatusCompleted {
		return
	}
	if err := s.mutate(ctx, cmd, out); err != nil {
		s.downgrade(cmd, out, router.CapabilityFor(cmd.TargetDomain), "record service write failed", err)
		return
	}
	for _, job := range out.Jobs {
		if s.jobs == nil {
			s.downgrade(cmd, out, CapabilityJobScheduler, "job scheduler not configured", errors.New("no job queue"))
			return
		}
		if _, err := s.jobs.Enqueue(ctx, job); err != nil {
			s.downgrade(cmd, out, CapabilityJobScheduler, "job scheduler unavailable", err)
			return
		}
	}
}

func (s *DispatchService) mutate(ctx context.Context, cmd domain.Command, out *domain.Outcome) error {
	if len(out.Mutations) == 0 {
		return nil
	}
	if s.records == nil {
		return errors.New("no record service")
	}
	accountID, err := s.records.FindOrCreateAccount(ctx, cmd.Identity())
	if err != nil {
		return fmt.Errorf("find or create account: %w", err)
	}
	for i, m := range out.Mutations {
		id, err := s.records.UpsertRecord(ctx, accountID, m, fmt.Sprintf("%s:%d", cmd.IdempotencyKey, i))
		if err != nil {
			return err
		}
		out.Decision.RecordIDs = append(out.Decision.RecordIDs, id)
	}
	return nil
}

func (s *DispatchService) downgrade(cmd domain.Command, out *domain.Outcome, capability, reason string, err error) {
	s.metrics.RecordDowngrade(capability)
	s.logger.Warn("dependency failed; decision downgraded",
		zap.String("request_id", cmd.RequestID),
		zap.String("capability", capability),
		zap.Error(errorutil.NewTransientDependency(capability, err)))
	out.Decision.Status = domain.StatusNeedsHuman
	out.Decision.Reason = reason
	out.Decision.MissingCapabilities = append(out.Decision.MissingCapabilities, capability)
	out.Notifications = nil
}

// publish emits the decision event. Delivery is fire-and-forget.
func (s *DispatchService) publish(ctx context.Context, cmd domain.Command, out domain.Outcome) {
	if s.dispatcher == nil {
		return
	}
	var eventType events.EventType
	switch out.Decision.Status {
	case domain.StatusCompleted:
		eventType = events.EventDecisionCompleted
	case domain.StatusNeedsHuman:
		eventType = events.EventDecisionNeedsHuman
	default:
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		RequestID: cmd.RequestID,
		Timestamp: s.clock(),
		Payload: events.DecisionPayload{
			Intent:        cmd.Intent,
			Domain:        cmd.TargetDomain,
			Engine:        out.Decision.Engine,
			Status:        out.Decision.Status,
			Reason:        out.Decision.Reason,
			RecordIDs:     out.Decision.RecordIDs,
			Notifications: out.Notifications,
		},
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("decision event handlers failed", zap.String("request_id", cmd.RequestID), zap.Error(err))
	}
}

// finish audits non-replayed outcomes, records metrics and builds the result.
func (s *DispatchService) finish(ctx context.Context, cmd domain.Command, decision domain.Decision, replayed bool) ProcessResult {
	if !replayed {
		s.publishGated(ctx, cmd, decision)
		entry := domain.AuditEntry{
			RequestID:        cmd.RequestID,
			IdempotencyKey:   cmd.IdempotencyKey,
			Intent:           cmd.Intent,
			TargetDomain:     cmd.TargetDomain,
			CommandSnapshot:  ledger.Snapshot(cmd),
			DecisionSnapshot: &decision,
		}
		if _, err := s.ledger.Record(ctx, entry); err != nil {
			s.logger.Error("append audit entry", zap.String("request_id", cmd.RequestID), zap.Error(err))
		}
		s.metrics.RecordDecision(decision.Engine, decision.Status)
	}

	s.logger.Info("processed request",
		zap.String("request_id", cmd.RequestID),
		zap.String("intent", string(cmd.Intent)),
		zap.String("domain", string(cmd.TargetDomain)),
		zap.String("engine", string(decision.Engine)),
		zap.String("status", string(decision.Status)),
		zap.Bool("replayed", replayed),
		zap.String("key", ledger.ShortKey(cmd.IdempotencyKey)),
	)

	loc := s.source.Current().Location()
	return ProcessResult{
		SpeakText:      SpeakText(decision, loc),
		Action:         decision.Status,
		StructuredData: decision,
		MissingFields:  decision.MissingFields,
		RequestID:      cmd.RequestID,
		Intent:         cmd.Intent,
		Domain:         cmd.TargetDomain,
		IdempotencyKey: cmd.IdempotencyKey,
		Replayed:       replayed,
		Command:        cmd,
	}
}

// publishGated announces decisions that never reached a domain handler so the
// desk sees them too. Handler decisions are published by Process itself.
func (s *DispatchService) publishGated(ctx context.Context, cmd domain.Command, decision domain.Decision) {
	if decision.Engine != domain.EngineRouter && decision.Engine != domain.EngineLedger {
		return
	}
	s.publish(ctx, cmd, domain.Outcome{Decision: decision})
}

// AuditTrail lists the audit entries of one request.
func (s *DispatchService) AuditTrail(ctx context.Context, requestID string) ([]domain.AuditEntry, error) {
	return s.ledger.Trail(ctx, requestID)
}

// CorrectAudit appends a correction to an entry of requestID.
func (s *DispatchService) CorrectAudit(ctx context.Context, requestID string, c ledger.Correction) (domain.AuditEntry, error) {
	trail, err := s.ledger.Trail(ctx, requestID)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	if c.EntryID == "" {
		c.EntryID = trail[0].ID
	}
	found := false
	for _, e := range trail {
		if e.ID == c.EntryID {
			found = true
			break
		}
	}
	if !found {
		return domain.AuditEntry{}, errorutil.NewNotFound("audit entry", map[string]any{"entry_id": c.EntryID})
	}
	if c.Note == "" {
		return domain.AuditEntry{}, errorutil.NewValidationError("correction note is required", nil)
	}
	return s.ledger.Correct(ctx, c)
}

// InspectKey returns the stored idempotency state of key.
func (s *DispatchService) InspectKey(ctx context.Context, key string) (ledger.Inspection, error) {
	return s.ledger.Inspect(ctx, key)
}

// Tables exposes the current rule tables.
func (s *DispatchService) Tables() *catalog.Tables {
	return s.source.Current()
}
