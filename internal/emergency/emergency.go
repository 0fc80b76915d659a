// Package emergency decides whether a request is an emergency. Life-safety
// categories always qualify. Temperature rules qualify only when the caller
// stated an indoor temperature; the ambient temperature is never looked up.
package emergency

import (
	"regexp"

	"github.com/spec-kit/dispatch-engine/internal/rules"
)

// Category names an emergency class.
type Category string

const (
	GasLeak           Category = "gas_leak"
	CarbonMonoxide    Category = "carbon_monoxide"
	VisibleFire       Category = "visible_fire"
	Flooding          Category = "uncontrolled_flooding"
	ElectricalBurning Category = "electrical_burning_smell"
	MedicalEquipment  Category = "medical_equipment_dependency"
	NoHeatCold        Category = "no_heat_low_temperature"
	NoCoolingHot      Category = "no_cooling_high_temperature"
)

// Thresholds are the explicit-temperature limits in Fahrenheit.
type Thresholds struct {
	NoHeatBelowF    int
	NoCoolingAboveF int
}

// Input is what the assessment looks at. Text should be lowercased.
type Input struct {
	Text        string
	IndoorTempF *int
	Thresholds  Thresholds
}

// Assessment is the result of evaluating the rule table.
type Assessment struct {
	Emergency bool
	Category  Category
	RuleID    string
	// LifeSafety is true for categories that qualify regardless of context.
	LifeSafety bool
}

var (
	gasLeakRe = regexp.MustCompile(`\b(gas leak|leaking gas|smell(s|ing)? (of )?gas|gas smell|rotten egg)`)
	coRe      = regexp.MustCompile(`\b(carbon monoxide|co detector|co alarm|co2? detector going off)\b`)
	fireRe    = regexp.MustCompile(`\b(on fire|visible flames?|flames? (coming|shooting)|caught fire|fire in (the|my)|smoke (is )?(coming|pouring)|sparks? (coming|flying))\b`)
	floodRe   = regexp.MustCompile(`\b(flood(ing|ed)?|water everywhere|water pouring|burst pipe|pipe burst|gushing)\b`)
	burningRe = regexp.MustCompile(`\b(burning smell|smell(s|ing)? (like )?(something )?burning|electrical smell|smoke smell|melting plastic)\b`)
	medicalRe = regexp.MustCompile(`\b(oxygen (machine|concentrator)|medical equipment|dialysis|ventilator|on oxygen|cpap|medically dependent)\b`)
	noHeatRe  = regexp.MustCompile(`\b(no heat|not heating|heat (is )?(out|off|not working)|furnace (is )?(out|dead|not working|broken|stopped)|heater (is )?(broken|not working|out)|blowing cold air)\b`)
	noCoolRe  = regexp.MustCompile(`\b(no (ac|a/c|air conditioning|cooling|cold air)|not cooling|ac (is )?(out|not working|broken|died)|air conditioner (is )?(broken|not working|out)|blowing (hot|warm) air)\b`)
)

// NoHeat reports whether text describes a loss of heating.
func NoHeat(text string) bool { return noHeatRe.MatchString(text) }

// NoCooling reports whether text describes a loss of cooling.
func NoCooling(text string) bool { return noCoolRe.MatchString(text) }

type result struct {
	category   Category
	lifeSafety bool
}

func phrase(re *regexp.Regexp) func(Input) bool {
	return func(in Input) bool { return re.MatchString(in.Text) }
}

// table is evaluated top-down. Life-safety rules come first so they outrank
// every temperature rule.
var table = rules.Table[Input, result]{
	{ID: "life_safety.gas_leak", Match: phrase(gasLeakRe), Result: result{GasLeak, true}},
	{ID: "life_safety.carbon_monoxide", Match: phrase(coRe), Result: result{CarbonMonoxide, true}},
	{ID: "life_safety.visible_fire", Match: phrase(fireRe), Result: result{VisibleFire, true}},
	{ID: "life_safety.flooding", Match: phrase(floodRe), Result: result{Flooding, true}},
	{ID: "life_safety.electrical_burning", Match: phrase(burningRe), Result: result{ElectricalBurning, true}},
	{ID: "life_safety.medical_equipment", Match: phrase(medicalRe), Result: result{MedicalEquipment, true}},
	{
		ID: "temperature.no_heat",
		Match: func(in Input) bool {
			return in.IndoorTempF != nil && NoHeat(in.Text) && *in.IndoorTempF < in.Thresholds.NoHeatBelowF
		},
		Result: result{NoHeatCold, false},
	},
	{
		ID: "temperature.no_cooling",
		Match: func(in Input) bool {
			return in.IndoorTempF != nil && NoCooling(in.Text) && *in.IndoorTempF > in.Thresholds.NoCoolingAboveF
		},
		Result: result{NoCoolingHot, false},
	},
}

// Assess evaluates the emergency rule table.
func Assess(in Input) Assessment {
	r, ok := table.First(in)
	if !ok {
		return Assessment{}
	}
	return Assessment{Emergency: true, Category: r.Result.category, RuleID: r.ID, LifeSafety: r.Result.lifeSafety}
}

// RuleIDs returns the evaluation order, for inspection and tests.
func RuleIDs() []string {
	return table.IDs()
}
