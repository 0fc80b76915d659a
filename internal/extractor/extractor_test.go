package extractor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/dispatch-engine/internal/catalog"
	"github.com/spec-kit/dispatch-engine/internal/domain"
)

func newExtractor() *Extractor {
	return New(catalog.Static{Tables: catalog.Default()})
}

func TestNoHeatWithTemperatureIsEmergencyServiceRequest(t *testing.T) {
	cmd := newExtractor().Extract("no heat, it's 50 degrees inside, I need someone today", domain.ChannelVoice)

	assert.Equal(t, domain.IntentServiceRequest, cmd.Intent)
	assert.Equal(t, "ops.problem", cmd.IntentRuleID)
	assert.Equal(t, 0.85, cmd.Confidence)
	assert.Equal(t, domain.UrgencyEmergency, cmd.Entities.UrgencyLevel)
	assert.Equal(t, "no_heat_low_temperature", cmd.Entities.EmergencyCategory)
	assert.Equal(t, "emergency_repair", cmd.Entities.ServiceType)
	assert.Equal(t, "no heat", cmd.Entities.ProblemDescription)
	require.NotNil(t, cmd.Entities.IndoorTempF)
	assert.Equal(t, 50, *cmd.Entities.IndoorTempF)
	assert.Equal(t, []string{"today"}, cmd.Entities.PreferredTimeWindows)
	assert.Equal(t, domain.DomainUnresolved, cmd.TargetDomain)
	assert.True(t, cmd.CreatedAt.IsZero())
}

func TestCuriousPriceShopperIsLowUrgencyQuote(t *testing.T) {
	cmd := newExtractor().Extract("just curious what a new unit costs, no rush", domain.ChannelChat)

	assert.Equal(t, domain.IntentQuoteRequest, cmd.Intent)
	assert.Equal(t, domain.UrgencyLow, cmd.Entities.UrgencyLevel)
	assert.Equal(t, "installation", cmd.Entities.ServiceType)
	assert.Empty(t, cmd.Entities.EmergencyCategory)
}

func TestLifeSafetyOutranksEverything(t *testing.T) {
	cmd := newExtractor().Extract("I smell gas in my basement, this is Maria Lopez, 312-555-0142", domain.ChannelVoice)

	assert.Equal(t, domain.IntentServiceRequest, cmd.Intent)
	assert.Equal(t, "ops.life_safety", cmd.IntentRuleID)
	assert.Equal(t, domain.UrgencyEmergency, cmd.Entities.UrgencyLevel)
	assert.Equal(t, "gas_leak", cmd.Entities.EmergencyCategory)
	assert.Equal(t, "Maria Lopez", cmd.Entities.Name)
	assert.Equal(t, "+13125550142", cmd.Entities.Phone)
	assert.Equal(t, "residential", cmd.Entities.PropertyType)
}

func TestQuoteEntities(t *testing.T) {
	cmd := newExtractor().Extract(
		"Looking to replace our office furnace, budget is $8,000 to $12,000, within 2 weeks. Email pat@acme.com",
		domain.ChannelChat,
	)

	assert.Equal(t, domain.IntentQuoteRequest, cmd.Intent)
	assert.Equal(t, "pat@acme.com", cmd.Entities.Email)
	assert.Equal(t, "$8,000-$12,000", cmd.Entities.BudgetRange)
	require.NotNil(t, cmd.Entities.BudgetMaxCents)
	assert.Equal(t, int64(1_200_000), *cmd.Entities.BudgetMaxCents)
	assert.Nil(t, cmd.Entities.AmountCents)
	assert.Equal(t, "within 2 weeks", cmd.Entities.Timeline)
	require.NotNil(t, cmd.Entities.TimelineDays)
	assert.Equal(t, 14, *cmd.Entities.TimelineDays)
	assert.Equal(t, "office", cmd.Entities.PropertyType)
	assert.Equal(t, "installation", cmd.Entities.ServiceType)
}

func TestApprovalRequest(t *testing.T) {
	cmd := newExtractor().Extract("I need approval for a $450 refund for customer 4412", domain.ChannelSystem)

	assert.Equal(t, domain.IntentApprovalRequest, cmd.Intent)
	assert.Equal(t, "refund", cmd.Entities.ApprovalCategory)
	require.NotNil(t, cmd.Entities.AmountCents)
	assert.Equal(t, int64(45_000), *cmd.Entities.AmountCents)
	assert.Empty(t, cmd.Entities.Zip)
}

func TestUnknownIntentHasLowConfidence(t *testing.T) {
	cmd := newExtractor().Extract("hello there", domain.ChannelChat)

	assert.Equal(t, domain.IntentUnknown, cmd.Intent)
	assert.LessOrEqual(t, cmd.Confidence, 0.4)
	assert.Empty(t, cmd.IntentRuleID)
	assert.Equal(t, domain.UrgencyUnknown, cmd.Entities.UrgencyLevel)
}

func TestRecognizersDoNotOverlap(t *testing.T) {
	cmd := newExtractor().Extract("call me at 312 555 0142, zip 60614", domain.ChannelChat)

	assert.Equal(t, "+13125550142", cmd.Entities.Phone)
	assert.Equal(t, "60614", cmd.Entities.Zip)
}

func TestAddressAndZip(t *testing.T) {
	cmd := newExtractor().Extract("furnace is making a banging noise at 1420 N Clark St, 60610", domain.ChannelChat)

	assert.Equal(t, "1420 N Clark St", cmd.Entities.Address)
	assert.Equal(t, "60610", cmd.Entities.Zip)
	assert.Equal(t, "repair", cmd.Entities.ServiceType)
}

func TestTimeWindowsKeepSpokenOrder(t *testing.T) {
	cmd := newExtractor().Extract("can you come tomorrow morning or monday afternoon, after 3pm works", domain.ChannelChat)

	assert.Equal(t, []string{"tomorrow morning", "monday afternoon", "after 15:00"}, cmd.Entities.PreferredTimeWindows)
}

func TestLenientNameIsTitleCased(t *testing.T) {
	cmd := newExtractor().Extract("my name is jordan smith and my ac is broken", domain.ChannelChat)

	assert.Equal(t, "Jordan Smith", cmd.Entities.Name)
}

func TestCallerContextFillsGaps(t *testing.T) {
	temp := 92
	caller := domain.CallerContext{
		RequestID:   "req-1",
		Phone:       "(312) 555-0199",
		Email:       "Ops@Example.com",
		IndoorTempF: &temp,
	}
	cmd := newExtractor().ExtractWith("ac is not working, reach me at 773-555-0100", domain.ChannelVoice, caller)

	assert.Equal(t, "req-1", cmd.RequestID)
	assert.Equal(t, "+17735550100", cmd.Entities.Phone, "text wins over caller id")
	assert.Equal(t, "ops@example.com", cmd.Entities.Email)
	assert.Equal(t, domain.UrgencyEmergency, cmd.Entities.UrgencyLevel)
	assert.Equal(t, "no_cooling_high_temperature", cmd.Entities.EmergencyCategory)
}

func TestInvalidChannelBecomesSystem(t *testing.T) {
	cmd := newExtractor().Extract("schedule a tune-up", domain.Channel("fax"))
	assert.Equal(t, domain.ChannelSystem, cmd.Channel)
	assert.Equal(t, domain.IntentScheduleAppointment, cmd.Intent)
	assert.Equal(t, "maintenance", cmd.Entities.ServiceType)
}

func TestUrgencyTable(t *testing.T) {
	cases := map[string]domain.UrgencyLevel{
		"the ac is rattling, not urgent":               domain.UrgencyLow,
		"the ac is rattling, come asap":                domain.UrgencyHigh,
		"the ac is rattling, sometime soon":            domain.UrgencyLow,
		"the ac is rattling, this week":                domain.UrgencyMedium,
		"the ac is rattling":                           domain.UrgencyUnknown,
		"water everywhere, no rush i guess":            domain.UrgencyEmergency,
		"the ac is rattling, this is not an emergency": domain.UrgencyLow,
		"not today, whenever works":                    domain.UrgencyLow,
		"the ac is rattling, not today":                domain.UrgencyLow,
	}
	x := newExtractor()
	for text, want := range cases {
		t.Run(text, func(t *testing.T) {
			assert.Equal(t, want, x.Extract(text, domain.ChannelChat).Entities.UrgencyLevel)
		})
	}
}

func TestIntentClassification(t *testing.T) {
	cases := map[string]domain.Intent{
		"are you hiring technicians?":                     domain.IntentHiringInquiry,
		"i want to request time off next month":           domain.IntentTimeOffRequest,
		"please cancel my appointment on friday":          domain.IntentCancelAppointment,
		"i need to reschedule":                            domain.IntentRescheduleAppointment,
		"i was overcharged on my last invoice":            domain.IntentBillingInquiry,
		"how much is a diagnostic visit?":                 domain.IntentPriceInquiry,
		"i'd like to book an appointment":                 domain.IntentScheduleAppointment,
		"can someone give me an estimate for a heat pump": domain.IntentQuoteRequest,
	}
	x := newExtractor()
	for text, want := range cases {
		t.Run(text, func(t *testing.T) {
			assert.Equal(t, want, x.Extract(text, domain.ChannelChat).Intent)
		})
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	texts := []string{
		"no heat, it's 50 degrees inside, I need someone today",
		"Looking to replace our office furnace, budget is $8,000 to $12,000, within 2 weeks",
		"can you come tomorrow morning or monday afternoon, after 3pm works",
		"I need approval for a $450 refund",
		"",
	}
	x := newExtractor()
	for _, text := range texts {
		first := x.Extract(text, domain.ChannelChat)
		second := x.Extract(text, domain.ChannelChat)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("Extract(%q) not deterministic (-first +second):\n%s", text, diff)
		}
	}
}

func TestStateWordsAreNotNames(t *testing.T) {
	for _, text := range []string{
		"My furnace is broken at 12 Oak Street, I'm Freezing",
		"No heat at 12 Oak Street. This is Urgent!",
		"I am Curious what a new unit costs",
		"hi, I'm Not sure who to call about my ac",
	} {
		t.Run(text, func(t *testing.T) {
			cmd := newExtractor().Extract(text, domain.ChannelVoice)
			assert.Empty(t, cmd.Entities.Name)
		})
	}

	cmd := newExtractor().Extract("this is Maria Lopez, I'm Freezing here", domain.ChannelVoice)
	assert.Equal(t, "Maria Lopez", cmd.Entities.Name)

	cmd = newExtractor().Extract("I'm Dana Looking for a quote", domain.ChannelVoice)
	assert.Equal(t, "Dana", cmd.Entities.Name)
}
