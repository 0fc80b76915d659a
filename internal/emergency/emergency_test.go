package emergency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var thresholds = Thresholds{NoHeatBelowF: 55, NoCoolingAboveF: 85}

func temp(v int) *int { return &v }

func TestLifeSafetyAlwaysQualifies(t *testing.T) {
	cases := map[string]Category{
		"i think i smell gas in the kitchen":          GasLeak,
		"the co detector keeps beeping":                CarbonMonoxide,
		"there are visible flames near the furnace":    VisibleFire,
		"basement is flooding from the water heater":   Flooding,
		"there's a burning smell from the air handler": ElectricalBurning,
		"my mother is on oxygen and the power is out":  MedicalEquipment,
	}
	for text, want := range cases {
		t.Run(string(want), func(t *testing.T) {
			a := Assess(Input{Text: text, Thresholds: thresholds})
			assert.True(t, a.Emergency)
			assert.True(t, a.LifeSafety)
			assert.Equal(t, want, a.Category)
		})
	}
}

func TestLifeSafetyOutranksTemperature(t *testing.T) {
	a := Assess(Input{Text: "no heat and i smell gas", IndoorTempF: temp(40), Thresholds: thresholds})
	assert.Equal(t, GasLeak, a.Category)
	assert.Equal(t, "life_safety.gas_leak", a.RuleID)
}

func TestTemperatureRulesNeedStatedTemperature(t *testing.T) {
	t.Run("no heat without temperature", func(t *testing.T) {
		a := Assess(Input{Text: "we have no heat", Thresholds: thresholds})
		assert.False(t, a.Emergency)
	})
	t.Run("no heat below threshold", func(t *testing.T) {
		a := Assess(Input{Text: "we have no heat", IndoorTempF: temp(50), Thresholds: thresholds})
		assert.True(t, a.Emergency)
		assert.False(t, a.LifeSafety)
		assert.Equal(t, NoHeatCold, a.Category)
	})
	t.Run("no heat at threshold", func(t *testing.T) {
		a := Assess(Input{Text: "furnace is dead", IndoorTempF: temp(55), Thresholds: thresholds})
		assert.False(t, a.Emergency)
	})
	t.Run("no cooling above threshold", func(t *testing.T) {
		a := Assess(Input{Text: "ac is not working", IndoorTempF: temp(90), Thresholds: thresholds})
		assert.Equal(t, NoCoolingHot, a.Category)
	})
	t.Run("cold house but cooling complaint", func(t *testing.T) {
		a := Assess(Input{Text: "ac is not working", IndoorTempF: temp(40), Thresholds: thresholds})
		assert.False(t, a.Emergency)
	})
}

func TestRoutineProblemIsNotEmergency(t *testing.T) {
	a := Assess(Input{Text: "the flame sensor needs cleaning and the filter is dirty", Thresholds: thresholds})
	assert.False(t, a.Emergency)
	assert.Empty(t, a.RuleID)
}

func TestRuleOrder(t *testing.T) {
	ids := RuleIDs()
	assert.Equal(t, "life_safety.gas_leak", ids[0])
	assert.Equal(t, "temperature.no_cooling", ids[len(ids)-1])
}
