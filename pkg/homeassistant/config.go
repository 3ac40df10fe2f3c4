package homeassistant

// Interface to expose the endpoints to update any MQTT config needed
// by the Home Assistant discovery package.
type MqttConfig interface {
	// Returns a pointer to the device object for any modification
	// required.
	GetDevice() *Device
	// Adds a new entry on the list of Availability topics.
	AddAvailability(Availability) MqttConfig
	// Get name of the entity.
	GetName() string
	// Set name for the entity.
	SetName(string) MqttConfig
	// Set retain value.
	SetRetain(bool) MqttConfig
	// Set availability mode.
	SetAvailabilityMode(string) MqttConfig
}

// Structure that encapsulates the information for the device exposed
// in Home Assistant.
type Device struct {
	ConfigurationUrl string   `json:"configuration_url,omitempty"`
	Identifiers      []string `json:"identifiers"`
	Manufacturer     string   `json:"manufacturer"`
	Model            string   `json:"model,omitempty"`
	Name             string   `json:"name"`
}

// Structure that encapsulates the information to retrieve availability
// of devices and entities.
type Availability struct {
	Topic               string `json:"topic"`
	PayloadAvailable    string `json:"payload_available,omitempty"`
	PayloadNotAvailable string `json:"payload_not_available,omitempty"`
}

// Base config for all MQTT discovery configs.
type BaseConfig struct {
	Device           Device         `json:"device"`
	Name             string         `json:"name,omitempty"`
	UniqueId         string         `json:"unique_id,omitempty"`
	Retain           bool           `json:"retain"`
	Availability     []Availability `json:"availability,omitempty"`
	AvailabilityMode string         `json:"availability_mode,omitempty"`
	QoS              int            `json:"qos"`
}

// Returns a pointer to the device object.
func (c *BaseConfig) GetDevice() *Device {
	return &c.Device
}

// Adds a new entry on the list of Availability topics.
func (c *BaseConfig) AddAvailability(availability Availability) MqttConfig {
	c.Availability = append(c.Availability, availability)
	return c
}

// Get the name of the entity in the configuration.
func (c *BaseConfig) GetName() string {
	return c.Name
}

// Set the name for the entity in the configuration.
func (c *BaseConfig) SetName(name string) MqttConfig {
	c.Name = name
	return c
}

// Set retain value.
func (c *BaseConfig) SetRetain(retain bool) MqttConfig {
	c.Retain = retain
	return c
}

// Set availability mode.
func (c *BaseConfig) SetAvailabilityMode(mode string) MqttConfig {
	c.AvailabilityMode = mode
	return c
}

// Climate configuration:
// https://www.home-assistant.io/integrations/climate.mqtt/
type ClimateConfig struct {
	BaseConfig
	CurrentTemperatureTopic string   `json:"current_temperature_topic,omitempty"`
	TemperatureCommandTopic string   `json:"temperature_command_topic,omitempty"`
	TemperatureStateTopic   string   `json:"temperature_state_topic,omitempty"`
	ModeCommandTopic        string   `json:"mode_command_topic,omitempty"`
	ModeStateTopic          string   `json:"mode_state_topic,omitempty"`
	Modes                   []string `json:"modes,omitempty"`
	PresetModeCommandTopic  string   `json:"preset_mode_command_topic,omitempty"`
	PresetModeStateTopic    string   `json:"preset_mode_state_topic,omitempty"`
	PresetModes             []string `json:"preset_modes,omitempty"`
	MinTemp                 float64  `json:"min_temp,omitempty"`
	MaxTemp                 float64  `json:"max_temp,omitempty"`
	TempStep                float64  `json:"temp_step,omitempty"`
	TemperatureUnit         string   `json:"temperature_unit,omitempty"`
}

// Sensor configuration:
// https://www.home-assistant.io/integrations/sensor.mqtt/
type SensorConfig struct {
	BaseConfig
	StateTopic        string `json:"state_topic,omitempty"`
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
	DeviceClass       string `json:"device_class,omitempty"`
	StateClass        string `json:"state_class,omitempty"`
	Icon              string `json:"icon,omitempty"`
	ValueTemplate     string `json:"value_template,omitempty"`
}
