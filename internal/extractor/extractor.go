// Package extractor turns raw request text into a Command. It is purely
// rule based and deterministic: the same text, channel and caller context
// always produce the same Command. CreatedAt and RequestID generation are left
// to the caller.
package extractor

import (
	"regexp"
	"strings"

	"github.com/spec-kit/dispatch-engine/internal/catalog"
	"github.com/spec-kit/dispatch-engine/internal/domain"
	"github.com/spec-kit/dispatch-engine/internal/emergency"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Extractor builds Commands using the emergency thresholds of the current tables.
type Extractor struct {
	source catalog.Source
}

// New creates an Extractor reading thresholds from source.
func New(source catalog.Source) *Extractor {
	return &Extractor{source: source}
}

// Extract builds a Command from text alone.
func (x *Extractor) Extract(text string, channel domain.Channel) domain.Command {
	return x.ExtractWith(text, channel, domain.CallerContext{})
}

// ExtractWith builds a Command from text plus structured caller context.
// Caller identity, zip and temperature only fill fields the text left empty;
// a caller service type replaces whatever the text implied.
func (x *Extractor) ExtractWith(text string, channel domain.Channel, caller domain.CallerContext) domain.Command {
	if !channel.Valid() {
		channel = domain.ChannelSystem
	}
	normalized := strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	lower := strings.ToLower(normalized)

	var entities domain.Entities
	recognize(normalized, &entities)
	mergeCaller(&entities, caller)

	thresholds := x.thresholds()
	assessment := emergency.Assess(emergency.Input{
		Text:        lower,
		IndoorTempF: entities.IndoorTempF,
		Thresholds:  thresholds,
	})

	intent, confidence, ruleID := classify(intentInput{text: lower, assessment: assessment})

	entities.UrgencyLevel = urgency(lower, assessment)
	if assessment.Emergency {
		entities.EmergencyCategory = string(assessment.Category)
	}
	entities.PropertyType = propertyType(lower)
	if entities.ServiceType == "" {
		entities.ServiceType = serviceType(lower, assessment)
	}
	entities.ProblemDescription = problemDescription(normalized, thresholds)
	if intent == domain.IntentApprovalRequest {
		entities.ApprovalCategory = approvalCategory(lower)
	}

	return domain.Command{
		RequestID:    caller.RequestID,
		Channel:      channel,
		RawText:      normalized,
		Intent:       intent,
		Confidence:   confidence,
		IntentRuleID: ruleID,
		Entities:     entities,
		Caller:       caller,
		TargetDomain: domain.DomainUnresolved,
	}
}

func (x *Extractor) thresholds() emergency.Thresholds {
	if x.source == nil {
		return emergency.Thresholds{}
	}
	t := x.source.Current()
	if t == nil {
		return emergency.Thresholds{}
	}
	return emergency.Thresholds{
		NoHeatBelowF:    t.Emergency.NoHeatBelowF,
		NoCoolingAboveF: t.Emergency.NoCoolingAboveF,
	}
}

func mergeCaller(e *domain.Entities, c domain.CallerContext) {
	if e.Phone == "" && c.Phone != "" {
		e.Phone = normalizePhone(c.Phone)
	}
	if e.Email == "" {
		e.Email = strings.ToLower(strings.TrimSpace(c.Email))
	}
	if e.Name == "" {
		e.Name = strings.TrimSpace(c.Name)
	}
	if e.Zip == "" {
		e.Zip = strings.TrimSpace(c.Zip)
	}
	if e.IndoorTempF == nil && c.IndoorTempF != nil {
		v := *c.IndoorTempF
		e.IndoorTempF = &v
	}
	if c.ServiceType != "" {
		e.ServiceType = c.ServiceType
	}
}

// normalizePhone reduces a caller-ID number to +1 and ten digits when it has
// at least ten digits; anything shorter is kept as given.
func normalizePhone(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) < 10 {
		return strings.TrimSpace(raw)
	}
	return "+1" + d[len(d)-10:]
}
