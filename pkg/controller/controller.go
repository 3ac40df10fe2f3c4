package controller

import (
	"fmt"

	"github.com/Smart-Home-Shop/ha-inspire-integration/pkg/config"
	"github.com/Smart-Home-Shop/ha-inspire-integration/pkg/controller/modules"
	"github.com/Smart-Home-Shop/ha-inspire-integration/pkg/homeassistant"
	"github.com/Smart-Home-Shop/ha-inspire-integration/pkg/inspire"
	"github.com/Smart-Home-Shop/ha-inspire-integration/pkg/mqtt"
	"github.com/rs/zerolog/log"
)

type Controller struct {
	inspireClient inspire.Client
	mqttClient    mqtt.Client
	hass          *homeassistant.HomeAssistantDiscovery

	modules map[string]modules.Module
}

func NewController(config *config.Config) *Controller {
	inspireOptions := inspire.NewClientOptions().
		SetApiKey(config.Inspire.ApiKey).
		SetUsername(config.Inspire.Username).
		SetPassword(config.Inspire.Password)
	if config.Inspire.BaseUrl != "" {
		inspireOptions.SetBaseUrl(config.Inspire.BaseUrl)
	}
	inspireClient := inspire.NewClient(inspireOptions)

	mqttOptions := mqtt.NewClientOptions().
		SetMqttUrl(config.Mqtt.MqttUrl).
		SetUsername(config.Mqtt.Username).
		SetPassword(config.Mqtt.Password).
		SetTopicPrefix(config.Mqtt.TopicPrefix).
		SetRetain(config.Mqtt.Retain)
	mqttClient := mqtt.NewClient(mqttOptions)

	controller := Controller{
		inspireClient: inspireClient,
		mqttClient:    mqttClient,
		hass:          homeassistant.NewHomeAssistantDiscovery(mqttClient, &config.HomeAssistant),
		modules:       map[string]modules.Module{},
	}

	for name, builder := range modules.Modules {
		module := builder(mqttClient, inspireClient, config)
		controller.modules[name] = module
	}

	return &controller
}

func (c *Controller) Start() error {
	log.Info().Msg("Starting controller.")
	if err := c.mqttClient.Connect(); err != nil {
		return fmt.Errorf("error connecting to MQTT broker: %w", err)
	}
	if err := c.inspireClient.Connect(); err != nil {
		return fmt.Errorf("error connecting to Inspire API: %w", err)
	}

	for name, module := range c.modules {
		log.Info().Str("module", name).Msg("Starting module.")
		if err := module.Start(); err != nil {
			return fmt.Errorf("error starting module '%s': %w", name, err)
		}
	}

	return c.publishDiscoveryMessages()
}

// Collect from each of the modules the discovery configs and publish
// them to the Home Assistant MQTT discovery prefix.
func (c *Controller) publishDiscoveryMessages() error {
	for name, module := range c.modules {
		exporter, ok := module.(homeassistant.HomeAssistantDiscoveryInterface)
		if !ok {
			continue
		}
		configs, err := exporter.GetHomeAssistantEntities()
		if err != nil {
			return fmt.Errorf("error retrieving discovery configs from module '%s': %w", name, err)
		}
		c.hass.AddConfigs(configs)
	}
	return c.hass.PublishDiscoveryMessages()
}

func (c *Controller) Stop() error {
	log.Info().Msg("Stopping controller.")

	for name, module := range c.modules {
		log.Info().Str("module", name).Msg("Stopping module.")
		if err := module.Stop(); err != nil {
			return fmt.Errorf("error stopping module '%s': %w", name, err)
		}
	}

	if err := c.mqttClient.Disconnect(); err != nil {
		return fmt.Errorf("error disconnecting from MQTT broker: %w", err)
	}
	if err := c.inspireClient.Close(); err != nil {
		return fmt.Errorf("error closing Inspire client: %w", err)
	}

	return nil
}

// InspireClient exposes the API client for health checking.
func (c *Controller) InspireClient() inspire.Client {
	return c.inspireClient
}

// MqttClient exposes the MQTT client for health checking.
func (c *Controller) MqttClient() mqtt.Client {
	return c.mqttClient
}
