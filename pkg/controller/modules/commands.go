package modules

import (
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/Smart-Home-Shop/ha-inspire-integration/pkg/inspire"
	"github.com/Smart-Home-Shop/ha-inspire-integration/pkg/mqtt"
	mqtt_base "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// Command leaves subscribed for every device under
// thermostats/<deviceId>/<leaf>/command.
var commandLeaves = []string{
	"target_temperature",
	"mode",
	"preset",
	"advance",
	"schedule_start",
	"cancel_start",
	"sync_time",
	"program_type",
	"program_schedule",
}

// scheduleSlot is the JSON payload accepted on the program_schedule
// command topic.
type scheduleSlot struct {
	Program     int     `json:"program"`
	Day         int     `json:"day"`
	Period      int     `json:"period"`
	Time        string  `json:"time"`
	Temperature float64 `json:"temperature"`
}

func (c *ThermostatsModule) subscribeCommands() error {
	for _, device := range c.devices {
		deviceId := device.DeviceId()
		if deviceId == "" {
			continue
		}
		for _, leaf := range commandLeaves {
			leafCopy := leaf
			topic := path.Join(thermostats, deviceId, leaf, mqtt.Command)
			log.Trace().
				Str("topic", topic).
				Str("deviceId", deviceId).
				Msg("Subscribing for topic.")
			err := c.mqttClient.Subscribe(topic, func(client mqtt_base.Client, message mqtt_base.Message) {
				payload := string(message.Payload())
				log.Trace().
					Str("topic", topic).
					Str("deviceId", deviceId).
					Str("payload", payload).
					Msg("Message received.")
				if err := c.onCommand(deviceId, leafCopy, payload); err != nil {
					log.Error().
						Str("topic", topic).
						Err(err).
						Msg("Error handling MQTT message.")
					return
				}
				c.RequestRefresh()
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *ThermostatsModule) onCommand(deviceId string, command string, payload string) error {
	switch command {
	case "target_temperature":
		temperature, err := strconv.ParseFloat(strings.TrimSpace(payload), 64)
		if err != nil {
			return fmt.Errorf("invalid temperature payload '%s': %w", payload, err)
		}
		return c.client.SetTemperature(deviceId, temperature)
	case "mode":
		function, err := parseFunction(payload)
		if err != nil {
			return err
		}
		return c.client.SetFunction(deviceId, function)
	case "preset":
		return c.onPresetCommand(deviceId, payload)
	case "advance":
		return c.client.SetAdvance(deviceId)
	case "schedule_start":
		return c.client.SetScheduledStart(deviceId, strings.TrimSpace(payload))
	case "cancel_start":
		return c.client.CancelScheduledStart(deviceId)
	case "sync_time":
		return c.client.SetTime(deviceId, strings.TrimSpace(payload))
	case "program_type":
		return c.client.SetProgramType(deviceId, strings.TrimSpace(payload))
	case "program_schedule":
		var slot scheduleSlot
		if err := json.Unmarshal([]byte(payload), &slot); err != nil {
			return fmt.Errorf("invalid schedule payload '%s': %w", payload, err)
		}
		return c.client.SetProgramTime(deviceId, slot.Program, slot.Day, slot.Period, slot.Time, slot.Temperature)
	}
	return fmt.Errorf("unknown command '%s'", command)
}

// Activating the boost preset switches the thermostat to Boost;
// clearing it falls back to the mode the device last reported.
func (c *ThermostatsModule) onPresetCommand(deviceId string, payload string) error {
	switch strings.ToLower(strings.TrimSpace(payload)) {
	case "boost":
		return c.client.SetFunction(deviceId, inspire.FunctionBoost)
	case "none", "":
		previous := inspire.FunctionProgram1
		if record, ok := c.deviceState(deviceId); ok {
			if function, err := parseFunction(record["Current_Function"]); err == nil && function != inspire.FunctionBoost {
				previous = function
			}
		}
		return c.client.SetFunction(deviceId, previous)
	}
	return fmt.Errorf("unknown preset '%s'", payload)
}

// parseFunction accepts the numeric wire value, the function name and
// the Home Assistant climate modes.
func parseFunction(value string) (inspire.Function, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if number, err := strconv.Atoi(normalized); err == nil {
		function := inspire.Function(number)
		if !function.Valid() {
			return 0, fmt.Errorf("function out of range: %d", number)
		}
		return function, nil
	}
	switch normalized {
	case "off":
		return inspire.FunctionOff, nil
	case "program_1", "program1", "auto":
		return inspire.FunctionProgram1, nil
	case "program_2", "program2":
		return inspire.FunctionProgram2, nil
	case "both_programs", "both":
		return inspire.FunctionBothPrograms, nil
	case "on", "heat":
		return inspire.FunctionOn, nil
	case "boost":
		return inspire.FunctionBoost, nil
	}
	return 0, fmt.Errorf("unknown function '%s'", value)
}

// haMode maps the reported function to the Home Assistant climate
// mode. Boost keeps the heat mode, the preset topic carries it.
func haMode(value string) string {
	function, err := parseFunction(value)
	if err != nil {
		return ""
	}
	switch function {
	case inspire.FunctionOff:
		return "off"
	case inspire.FunctionOn, inspire.FunctionBoost:
		return "heat"
	default:
		return "auto"
	}
}

func haPreset(value string) string {
	function, err := parseFunction(value)
	if err != nil {
		return ""
	}
	if function == inspire.FunctionBoost {
		return "boost"
	}
	return "none"
}
