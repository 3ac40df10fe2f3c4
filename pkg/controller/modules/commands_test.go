package modules

import (
	"encoding/json"
	"testing"

	"github.com/Smart-Home-Shop/ha-inspire-integration/pkg/inspire"
	"github.com/stretchr/testify/assert"
)

func TestParseFunction(t *testing.T) {
	cases := []struct {
		input    string
		expected inspire.Function
	}{
		{"1", inspire.FunctionOff},
		{"6", inspire.FunctionBoost},
		{"off", inspire.FunctionOff},
		{"Program_1", inspire.FunctionProgram1},
		{"program2", inspire.FunctionProgram2},
		{"both", inspire.FunctionBothPrograms},
		{"On", inspire.FunctionOn},
		{" heat ", inspire.FunctionOn},
		{"auto", inspire.FunctionProgram1},
		{"boost", inspire.FunctionBoost},
	}
	for _, c := range cases {
		function, err := parseFunction(c.input)
		assert.NoError(t, err, c.input)
		assert.Equal(t, c.expected, function, c.input)
	}
}

func TestParseFunctionRejectsUnknownValues(t *testing.T) {
	for _, input := range []string{"", "7", "0", "warm", "-1"} {
		_, err := parseFunction(input)
		assert.Error(t, err, input)
	}
}

func TestHaModeMapping(t *testing.T) {
	assert.Equal(t, "off", haMode("1"))
	assert.Equal(t, "auto", haMode("2"))
	assert.Equal(t, "auto", haMode("3"))
	assert.Equal(t, "auto", haMode("4"))
	assert.Equal(t, "heat", haMode("5"))
	assert.Equal(t, "heat", haMode("6"))
	assert.Equal(t, "", haMode("unknown"))
}

func TestHaPresetMapping(t *testing.T) {
	assert.Equal(t, "boost", haPreset("6"))
	assert.Equal(t, "none", haPreset("5"))
	assert.Equal(t, "none", haPreset("2"))
	assert.Equal(t, "", haPreset(""))
}

func TestScheduleSlotPayload(t *testing.T) {
	payload := `{"program":1,"day":3,"period":2,"time":"07:30","temperature":19.5}`
	var slot scheduleSlot
	assert.NoError(t, json.Unmarshal([]byte(payload), &slot))
	assert.Equal(t, 1, slot.Program)
	assert.Equal(t, 3, slot.Day)
	assert.Equal(t, 2, slot.Period)
	assert.Equal(t, "07:30", slot.Time)
	assert.Equal(t, 19.5, slot.Temperature)
}

func TestTargetTemperaturePrefersOnTemperatureWhenHeating(t *testing.T) {
	state := &inspire.DeviceState{
		CurrentFunction:    "5",
		OnTemperature:      21.5,
		ProfileTemperature: 18.0,
	}
	assert.Equal(t, 21.5, targetTemperature(state))
}

func TestTargetTemperaturePrefersProfileInProgramMode(t *testing.T) {
	state := &inspire.DeviceState{
		CurrentFunction:    "2",
		OnTemperature:      21.5,
		ProfileTemperature: 18.0,
	}
	assert.Equal(t, 18.0, targetTemperature(state))
}

func TestSummaryTopicKeyNormalization(t *testing.T) {
	assert.Equal(t, "energy_used", summaryTopicKey(" Energy Used "))
	assert.Equal(t, "devices", summaryTopicKey("devices"))
}
