package pricing

import (
	"fmt"
	"time"

	"github.com/spec-kit/dispatch-engine/internal/catalog"
	"github.com/spec-kit/dispatch-engine/internal/domain"
	"github.com/spec-kit/dispatch-engine/pkg/util/errorutil"
)

// Approvals looks up who must approve an amount.
type Approvals struct {
	source catalog.Source
}

// NewApprovals creates the approval-threshold engine.
func NewApprovals(source catalog.Source) *Approvals {
	return &Approvals{source: source}
}

// Evaluate finds the range containing amount. The ranges are re-validated on
// every call; a broken table is a config_invariant error, not a decision.
func (a *Approvals) Evaluate(category string, amountCents int64, now time.Time) (domain.Decision, error) {
	t := a.source.Current()
	decision := domain.Decision{Engine: domain.EngineApproval, DecidedAt: now}

	if amountCents < 0 {
		decision.Status = domain.StatusNeedsHuman
		decision.Reason = "approval amount must not be negative"
		decision.MissingFields = []string{domain.FieldAmount}
		return decision, nil
	}
	ranges := t.ApprovalRanges(category)
	if len(ranges) == 0 {
		decision.Status = domain.StatusNeedsHuman
		decision.Reason = fmt.Sprintf("no approval table for category %q", category)
		decision.MissingFields = []string{domain.FieldApprovalCategory}
		return decision, nil
	}

	r, err := Lookup(category, ranges, amountCents)
	if err != nil {
		return domain.Decision{}, err
	}
	decision.Status = domain.StatusCompleted
	decision.Payload = &domain.ApprovalDecision{
		Category:         category,
		AmountCents:      amountCents,
		ApprovalRequired: r.ApprovalRequired,
		Approver:         r.Approver,
		ThresholdRuleID:  r.ID,
	}
	return decision, nil
}

// Lookup validates ranges and returns the first one containing amount.
func Lookup(category string, ranges []catalog.ApprovalRange, amountCents int64) (catalog.ApprovalRange, error) {
	if err := catalog.ValidateApprovalRanges(category, ranges); err != nil {
		return catalog.ApprovalRange{}, errorutil.NewConfigInvariant("approval ranges", err)
	}
	for _, r := range ranges {
		if r.Contains(amountCents) {
			return r, nil
		}
	}
	return catalog.ApprovalRange{}, errorutil.NewConfigInvariant(
		fmt.Sprintf("approval ranges for %s do not cover %d", category, amountCents), nil)
}
