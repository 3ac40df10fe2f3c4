package modules

import (
	"encoding/json"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/Smart-Home-Shop/ha-inspire-integration/pkg/config"
	"github.com/Smart-Home-Shop/ha-inspire-integration/pkg/homeassistant"
	"github.com/Smart-Home-Shop/ha-inspire-integration/pkg/inspire"
	"github.com/Smart-Home-Shop/ha-inspire-integration/pkg/mqtt"
	"github.com/rs/zerolog/log"
)

const thermostats string = "thermostats"

// Thermostats Module encapsulates the poll cycle against the Inspire
// API and the MQTT command surface. Every refresh interval the cached
// device list is walked: detail records are fetched and merged over
// the listing record, liveness is checked, and the result is pushed to
// the corresponding topics in the MQTT broker. Commands received over
// MQTT are translated to API calls and trigger an immediate refresh.
type ThermostatsModule struct {
	mqttClient mqtt.Client
	client     inspire.Client

	refreshInterval time.Duration

	// Device listing is fetched once and reused for every cycle, the
	// account's device set does not change at runtime.
	devices []inspire.Record

	// statesMu guards states: the refresh goroutine writes it while
	// paho handler goroutines read it for command handling.
	statesMu sync.Mutex
	states   map[string]inspire.Record

	ticker     *time.Ticker
	tickerDone chan struct{}
	refresh    chan struct{}
}

func (c *ThermostatsModule) Start() error {
	// First cycle runs synchronously so the device set is known before
	// commands are subscribed and discovery configs are collected.
	if err := c.fetchDevices(); err != nil {
		return err
	}
	c.refreshCycle()

	if err := c.subscribeCommands(); err != nil {
		return err
	}

	c.ticker = time.NewTicker(c.refreshInterval)
	c.tickerDone = make(chan struct{})
	go func() {
		for {
			select {
			case <-c.tickerDone:
				return
			case <-c.ticker.C:
				c.refreshCycle()
			case <-c.refresh:
				c.refreshCycle()
			}
		}
	}()
	return nil
}

func (c *ThermostatsModule) Stop() error {
	c.ticker.Stop()
	c.tickerDone <- struct{}{}
	c.ticker = nil
	return nil
}

// RequestRefresh schedules an immediate poll cycle. Used after control
// commands so the published state catches up without waiting for the
// next tick.
func (c *ThermostatsModule) RequestRefresh() {
	select {
	case c.refresh <- struct{}{}:
	default:
		// A refresh is already pending.
	}
}

func (c *ThermostatsModule) fetchDevices() error {
	devices, err := c.client.GetDevices()
	if err != nil {
		return err
	}
	log.Info().Int("count", len(devices)).Msg("Fetched device list.")
	c.devices = devices
	return nil
}

// refreshCycle fetches detail for every known device, merges it over
// the listing record and publishes the result. Per-device failures are
// logged and the cycle continues; an authentication failure aborts the
// cycle since every remaining call would fail the same way (the client
// already dropped the session, the next cycle re-authenticates).
func (c *ThermostatsModule) refreshCycle() {
	log.Debug().Msg("Refreshing thermostats.")

	for _, device := range c.devices {
		deviceId := device.DeviceId()
		if deviceId == "" {
			continue
		}

		merged := device
		info, err := c.client.GetDeviceInformation(deviceId)
		if err != nil {
			if inspire.IsKind(err, inspire.KindAuth) {
				log.Error().Err(err).Msg("Authentication failed during refresh, aborting cycle.")
				return
			}
			log.Warn().Err(err).Str("deviceId", deviceId).Msg("Error fetching device information.")
		} else {
			merged = device.Merge(info)
		}
		merged["device_id"] = deviceId

		connected, err := c.client.CheckConnection(deviceId)
		if err != nil {
			log.Warn().Err(err).Str("deviceId", deviceId).Msg("Error checking device connection.")
		}

		c.setDeviceState(deviceId, merged)
		if err := c.publishDevice(deviceId, merged, connected); err != nil {
			log.Error().Err(err).Str("deviceId", deviceId).Msg("Error publishing device state.")
		}
	}
	log.Debug().Int("count", len(c.devices)).Msg("Thermostat refresh complete.")
}

func (c *ThermostatsModule) publishDevice(deviceId string, record inspire.Record, connected bool) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := c.mqttClient.Publish(deviceTopic(deviceId, mqtt.State), payload); err != nil {
		return err
	}

	availability := mqtt.Offline
	if connected {
		availability = mqtt.Online
	}
	if err := c.mqttClient.PublishAndRetain(deviceTopic(deviceId, mqtt.Availability), availability); err != nil {
		return err
	}

	state, err := inspire.DecodeRecord[inspire.DeviceState](record)
	if err != nil {
		return err
	}
	values := map[string]string{
		"current_temperature": formatFloat(state.CurrentTemperature),
		"target_temperature":  formatFloat(targetTemperature(state)),
		"mode":                haMode(state.CurrentFunction),
		"preset":              haPreset(state.CurrentFunction),
	}
	if state.BatteryVoltage > 0 {
		values["battery"] = formatFloat(state.BatteryVoltage)
	} else if state.Battery != "" {
		values["battery"] = state.Battery
	}
	for name, value := range values {
		if value == "" {
			continue
		}
		if err := c.mqttClient.Publish(path.Join(thermostats, deviceId, name, mqtt.State), value); err != nil {
			return err
		}
	}
	return nil
}

// targetTemperature mirrors the vendor semantics: in On mode the set
// point is On_Temperature, in program modes it is the profile value.
func targetTemperature(state *inspire.DeviceState) float64 {
	function, _ := parseFunction(state.CurrentFunction)
	switch function {
	case inspire.FunctionOn, inspire.FunctionBoost:
		if state.OnTemperature > 0 {
			return state.OnTemperature
		}
		return state.ProfileTemperature
	default:
		if state.ProfileTemperature > 0 {
			return state.ProfileTemperature
		}
		return state.OnTemperature
	}
}

func formatFloat(value float64) string {
	if value == 0 {
		return ""
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func deviceTopic(deviceId string, leaf string) string {
	return path.Join(thermostats, deviceId, leaf)
}

func (c *ThermostatsModule) setDeviceState(deviceId string, record inspire.Record) {
	c.statesMu.Lock()
	defer c.statesMu.Unlock()
	c.states[deviceId] = record
}

func (c *ThermostatsModule) deviceState(deviceId string) (inspire.Record, bool) {
	c.statesMu.Lock()
	defer c.statesMu.Unlock()
	record, ok := c.states[deviceId]
	return record, ok
}

func (c *ThermostatsModule) GetHomeAssistantEntities() ([]homeassistant.DiscoveryConfig, error) {
	configs := []homeassistant.DiscoveryConfig{}

	for _, device := range c.devices {
		deviceId := device.DeviceId()
		if deviceId == "" {
			continue
		}
		record, _ := c.deviceState(deviceId)
		state, err := inspire.DecodeRecord[inspire.DeviceState](record)
		if err != nil {
			return nil, err
		}

		haDevice := homeassistant.Device{
			Identifiers: []string{deviceId},
			Model:       state.UnitModel,
			Name:        record.Name(),
		}

		climateConfig := homeassistant.DiscoveryConfig{
			Domain:   homeassistant.Climate,
			DeviceId: deviceId,
			ObjectId: "thermostat",
			Config: &homeassistant.ClimateConfig{
				BaseConfig: homeassistant.BaseConfig{
					Device:   haDevice,
					Name:     record.Name(),
					UniqueId: deviceId + "_thermostat",
				},
				CurrentTemperatureTopic: c.mqttClient.GetFullTopic(path.Join(thermostats, deviceId, "current_temperature", mqtt.State)),
				TemperatureStateTopic:   c.mqttClient.GetFullTopic(path.Join(thermostats, deviceId, "target_temperature", mqtt.State)),
				TemperatureCommandTopic: c.mqttClient.GetFullTopic(path.Join(thermostats, deviceId, "target_temperature", mqtt.Command)),
				ModeStateTopic:          c.mqttClient.GetFullTopic(path.Join(thermostats, deviceId, "mode", mqtt.State)),
				ModeCommandTopic:        c.mqttClient.GetFullTopic(path.Join(thermostats, deviceId, "mode", mqtt.Command)),
				Modes:                   []string{"off", "heat", "auto"},
				PresetModeStateTopic:    c.mqttClient.GetFullTopic(path.Join(thermostats, deviceId, "preset", mqtt.State)),
				PresetModeCommandTopic:  c.mqttClient.GetFullTopic(path.Join(thermostats, deviceId, "preset", mqtt.Command)),
				PresetModes:             []string{"none", "boost"},
				MinTemp:                 inspire.MinTemperature,
				MaxTemp:                 inspire.MaxTemperature,
				TempStep:                inspire.TemperatureStep,
				TemperatureUnit:         "C",
			},
		}
		configs = append(configs, climateConfig)

		temperatureConfig := homeassistant.DiscoveryConfig{
			Domain:   homeassistant.Sensor,
			DeviceId: deviceId,
			ObjectId: "temperature",
			Config: &homeassistant.SensorConfig{
				BaseConfig: homeassistant.BaseConfig{
					Device:   haDevice,
					Name:     "Temperature " + record.Name(),
					UniqueId: deviceId + "_temperature",
				},
				StateTopic:        c.mqttClient.GetFullTopic(path.Join(thermostats, deviceId, "current_temperature", mqtt.State)),
				UnitOfMeasurement: "°C",
				DeviceClass:       "temperature",
				StateClass:        "measurement",
			},
		}
		configs = append(configs, temperatureConfig)

		if state.Battery != "" || state.BatteryVoltage > 0 {
			batteryConfig := homeassistant.DiscoveryConfig{
				Domain:   homeassistant.Sensor,
				DeviceId: deviceId,
				ObjectId: "battery",
				Config: &homeassistant.SensorConfig{
					BaseConfig: homeassistant.BaseConfig{
						Device:   haDevice,
						Name:     "Battery " + record.Name(),
						UniqueId: deviceId + "_battery",
					},
					StateTopic: c.mqttClient.GetFullTopic(path.Join(thermostats, deviceId, "battery", mqtt.State)),
					Icon:       "mdi:battery",
				},
			}
			configs = append(configs, batteryConfig)
		}
	}
	return configs, nil
}

func NewThermostatsModule(mqttClient mqtt.Client, client inspire.Client, config *config.Config) Module {
	return &ThermostatsModule{
		mqttClient:      mqttClient,
		client:          client,
		refreshInterval: config.Inspire.RefreshInterval,
		states:          map[string]inspire.Record{},
		refresh:         make(chan struct{}, 1),
	}
}

func init() {
	Register(thermostats, NewThermostatsModule)
}
