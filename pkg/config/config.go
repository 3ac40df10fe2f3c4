package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type ConfigInspire struct {
	ApiKey   string
	Username string
	Password string
	// BaseUrl is empty for production, set only to point the client at
	// a different endpoint.
	BaseUrl         string
	RefreshInterval time.Duration
}
type ConfigMqtt struct {
	MqttUrl     string
	Username    string
	Password    string
	TopicPrefix string
	Retain      bool
}
type ConfigHomeAssistant struct {
	DiscoveryEnabled     bool
	DiscoveryTopicPrefix string
	Retain               bool
}
type HealthCheckConfig struct {
	Enabled bool
	Port    int
}
type Config struct {
	Inspire       ConfigInspire
	Mqtt          ConfigMqtt
	HomeAssistant ConfigHomeAssistant
	HealthCheck   HealthCheckConfig
	LogLevel      string
}

const (
	undefined                           string = "__undefined__"
	envKeyInspireApiKey                 string = "inspire_api_key"
	envKeyInspireUsername               string = "inspire_username"
	envKeyInspirePassword               string = "inspire_password"
	envKeyInspireBaseUrl                string = "inspire_base_url"
	envKeyInspireRefreshInterval        string = "inspire_refresh_interval_seconds"
	envKeyMqttUrl                       string = "mqtt_url"
	envKeyMqttUsername                  string = "mqtt_username"
	envKeyMqttPassword                  string = "mqtt_password"
	envKeyMqttTopicPrefix               string = "mqtt_topic_prefix"
	envKeyMqttRetain                    string = "mqtt_retain"
	envKeyLogLevel                      string = "log_level"
	envKeyHomeAssistantDiscoveryEnabled string = "home_assistant_discovery_enabled"
	envKeyHomeAssistantDiscoveryPrefix  string = "home_assistant_discovery_prefix"
	envKeyHealthCheckEnabled            string = "health_check_enabled"
	envKeyHealthCheckPort               string = "health_check_port"
)

var defaultConfig = map[string]interface{}{
	envKeyInspireApiKey:                 undefined,
	envKeyInspireUsername:               undefined,
	envKeyInspirePassword:               undefined,
	envKeyInspireBaseUrl:                "",
	envKeyInspireRefreshInterval:        60,
	envKeyMqttUrl:                       undefined,
	envKeyMqttUsername:                  "",
	envKeyMqttPassword:                  "",
	envKeyMqttTopicPrefix:               "inspire",
	envKeyMqttRetain:                    false,
	envKeyLogLevel:                      "INFO",
	envKeyHomeAssistantDiscoveryEnabled: true,
	envKeyHomeAssistantDiscoveryPrefix:  "homeassistant",
	envKeyHealthCheckEnabled:            false,
	envKeyHealthCheckPort:               8080,
}

// ReadConfig returns a Config from config.yaml and env variables.
func ReadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	// Set the current directory where the binary is being run.
	viper.AddConfigPath(".")
	viper.AutomaticEnv()
	for key, value := range defaultConfig {
		if value != undefined {
			viper.SetDefault(key, value)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// The config file is optional as long as the required fields
		// come from the environment.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("ReadInConfig error: %w", err)
		}
	}

	// Check for undefined fields.
	for fieldName, defaultValue := range defaultConfig {
		if defaultValue == undefined && !viper.IsSet(fieldName) {
			return nil, fmt.Errorf("required field not found in config: %s", fieldName)
		}
	}

	config := &Config{
		Inspire: ConfigInspire{
			ApiKey:          viper.GetString(envKeyInspireApiKey),
			Username:        viper.GetString(envKeyInspireUsername),
			Password:        viper.GetString(envKeyInspirePassword),
			BaseUrl:         viper.GetString(envKeyInspireBaseUrl),
			RefreshInterval: time.Duration(viper.GetInt(envKeyInspireRefreshInterval)) * time.Second,
		},
		Mqtt: ConfigMqtt{
			MqttUrl:     viper.GetString(envKeyMqttUrl),
			Username:    viper.GetString(envKeyMqttUsername),
			Password:    viper.GetString(envKeyMqttPassword),
			TopicPrefix: viper.GetString(envKeyMqttTopicPrefix),
			Retain:      viper.GetBool(envKeyMqttRetain),
		},
		HomeAssistant: ConfigHomeAssistant{
			DiscoveryEnabled:     viper.GetBool(envKeyHomeAssistantDiscoveryEnabled),
			DiscoveryTopicPrefix: viper.GetString(envKeyHomeAssistantDiscoveryPrefix),
			Retain:               viper.GetBool(envKeyMqttRetain),
		},
		HealthCheck: HealthCheckConfig{
			Enabled: viper.GetBool(envKeyHealthCheckEnabled),
			Port:    viper.GetInt(envKeyHealthCheckPort),
		},
		LogLevel: viper.GetString(envKeyLogLevel),
	}

	return config, nil
}
