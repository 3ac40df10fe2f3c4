package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadConfig(t *testing.T) {
	os.Clearenv()
	os.Setenv("INSPIRE_API_KEY", "test_key")
	os.Setenv("INSPIRE_USERNAME", "user@example.com")
	os.Setenv("INSPIRE_PASSWORD", "secret")
	os.Setenv("MQTT_URL", "tcp://localhost:1883")

	c, err := ReadConfig()
	if err != nil {
		t.Fail()
		t.Logf("Error found: %s", err.Error())
	}

	assert.Equal(t, "test_key", c.Inspire.ApiKey, "Inspire api key is wrong.")
	assert.Equal(t, "user@example.com", c.Inspire.Username, "Inspire username is wrong.")
	assert.Equal(t, int64(60), int64(c.Inspire.RefreshInterval.Seconds()), "Default refresh interval is wrong.")
	assert.Equal(t, "tcp://localhost:1883", c.Mqtt.MqttUrl, "MQTT url is wrong.")
	assert.Equal(t, "inspire", c.Mqtt.TopicPrefix, "MQTT prefix is wrong.")
	assert.True(t, c.HomeAssistant.DiscoveryEnabled, "Discovery should default to enabled.")
}

func TestReadConfigMissingRequiredField(t *testing.T) {
	os.Clearenv()
	os.Setenv("INSPIRE_API_KEY", "test_key")
	os.Setenv("INSPIRE_USERNAME", "user@example.com")
	os.Setenv("INSPIRE_PASSWORD", "secret")

	_, err := ReadConfig()
	assert.EqualError(t, err, "required field not found in config: mqtt_url")
	os.Clearenv()
}
