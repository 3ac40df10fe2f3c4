package homeassistant

import (
	"encoding/json"
	"fmt"
	"path"

	"github.com/Smart-Home-Shop/ha-inspire-integration/pkg/config"
	"github.com/Smart-Home-Shop/ha-inspire-integration/pkg/mqtt"
)

type Domain string

const (
	Sensor  Domain = "sensor"
	Climate Domain = "climate"
)

type DiscoveryConfig struct {
	Domain   Domain
	DeviceId string
	ObjectId string
	Config   MqttConfig
}

type HomeAssistantDiscoveryInterface interface {
	// Returns the list of Home Assistant MQTT entities that each
	// module would be exporting for discovery.
	// This will be run after the method Start is called and therefore
	// it can assume that the logic there will be run.
	GetHomeAssistantEntities() ([]DiscoveryConfig, error)
}

type HomeAssistantDiscovery struct {
	mqttClient mqtt.Client
	config     *config.ConfigHomeAssistant

	discoveryConfigs []DiscoveryConfig
}

func NewHomeAssistantDiscovery(mqttClient mqtt.Client, config *config.ConfigHomeAssistant) *HomeAssistantDiscovery {
	return &HomeAssistantDiscovery{
		mqttClient:       mqttClient,
		config:           config,
		discoveryConfigs: []DiscoveryConfig{},
	}
}

func (hass *HomeAssistantDiscovery) AddConfigs(configs []DiscoveryConfig) {
	bridgeAvailability := Availability{
		Topic:               hass.mqttClient.ServerStatusTopic(),
		PayloadAvailable:    mqtt.Online,
		PayloadNotAvailable: mqtt.Offline,
	}
	for _, config := range configs {
		config.Config.
			SetRetain(hass.config.Retain).
			AddAvailability(bridgeAvailability).
			SetAvailabilityMode("all")
		// Update the config with some generic attributes for all
		// configurations.
		device := config.Config.GetDevice()
		device.Manufacturer = "Inspire Home Automation"
		device.ConfigurationUrl = "https://www.inspirehomeautomation.co.uk"

		hass.discoveryConfigs = append(hass.discoveryConfigs, config)
	}
}

func (hass *HomeAssistantDiscovery) PublishDiscoveryMessages() error {
	if !hass.config.DiscoveryEnabled {
		return nil
	}

	for _, config := range hass.discoveryConfigs {
		topic := path.Join(
			hass.config.DiscoveryTopicPrefix,
			string(config.Domain),
			config.DeviceId,
			config.ObjectId,
			"config")
		payload, err := json.Marshal(config.Config)
		if err != nil {
			return fmt.Errorf("error serializing discovery config to JSON: %w", err)
		}
		t := hass.mqttClient.RawClient().Publish(topic, 0, true, payload)
		<-t.Done()
		if t.Error() != nil {
			return fmt.Errorf("error publishing discovery message to MQTT: %w", t.Error())
		}
	}
	return nil
}
