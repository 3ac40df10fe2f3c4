package mqtt

import (
	"fmt"
	"path"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	Online  string = "online"
	Offline string = "offline"
)

// Topics.
const (
	State        string = "state"
	Command      string = "command"
	Availability string = "availability"
	serverStatus string = "server/state"
)

type SubscriptionHandler struct {
	Topic          string
	MessageHandler mqtt.MessageHandler
}

type Client interface {
	// Connect to the MQTT broker and publish the online status.
	Connect() error
	// Disconnect from the MQTT broker after publishing the offline
	// status.
	Disconnect() error

	// Publish a message under the Inspire prefix topic.
	Publish(topic string, message interface{}) error
	// Same as Publish but force the retain flag regardless of what is
	// in the config.
	PublishAndRetain(topic string, message interface{}) error
	// Subscribe to a topic under the prefix and call the given handler
	// when a message is received. Subscriptions survive broker
	// reconnects.
	Subscribe(topic string, messageHandler mqtt.MessageHandler) error

	// Return the full topic for a given subpath.
	GetFullTopic(topic string) string
	// Returns the topic used to publish the bridge status.
	ServerStatusTopic() string

	RawClient() mqtt.Client
}

type client struct {
	mqttClient    mqtt.Client
	options       ClientOptions
	subscriptions *subscriptions
}

type subscriptions struct {
	shouldResubscribe bool
	list              []SubscriptionHandler
}

func NewClient(options *ClientOptions) Client {
	subs := &subscriptions{}
	mqttOptions := mqtt.NewClientOptions().
		AddBroker(options.MqttUrl).
		SetClientID("inspire-mqtt-" + uuid.New().String()).
		SetOrderMatters(false).
		SetUsername(options.Username).
		SetPassword(options.Password).
		SetAutoReconnect(true).
		SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
			log.Info().Str("url", options.MqttUrl).Msg("Reconnecting to MQTT broker.")
			subs.shouldResubscribe = true
		}).
		SetOnConnectHandler(func(client mqtt.Client) {
			log.Info().Str("url", options.MqttUrl).Msg("Connected to MQTT broker.")
			if !subs.shouldResubscribe {
				return
			}
			subs.shouldResubscribe = false
			log.Info().Int("count", len(subs.list)).Msg("Re-subscribing to topics")
			for _, sub := range subs.list {
				t := client.Subscribe(sub.Topic, options.QoS, sub.MessageHandler)
				<-t.Done()
				if t.Error() != nil {
					log.Error().Err(t.Error()).Str("topic", sub.Topic).Msg("Error re-subscribing to topic")
				}
			}
		})

	return &client{
		mqttClient:    mqtt.NewClient(mqttOptions),
		options:       *options,
		subscriptions: subs,
	}
}

func (c *client) Connect() error {
	t := c.mqttClient.Connect()
	<-t.Done()
	if t.Error() != nil {
		return fmt.Errorf("error connecting to MQTT broker: %w", t.Error())
	}
	return c.publishServerStatus(Online)
}

func (c *client) Disconnect() error {
	if err := c.publishServerStatus(Offline); err != nil {
		return err
	}
	c.mqttClient.Disconnect(uint(c.options.DisconnectTimeout.Milliseconds()))
	log.Info().Msg("Disconnected from MQTT broker.")
	return nil
}

func (c *client) publish(topic string, message interface{}, forceRetain bool) error {
	t := c.mqttClient.Publish(
		path.Join(c.options.TopicPrefix, topic),
		c.options.QoS,
		c.options.Retain || forceRetain,
		message)
	<-t.Done()
	return t.Error()
}

func (c *client) Publish(topic string, message interface{}) error {
	return c.publish(topic, message, false)
}

func (c *client) PublishAndRetain(topic string, message interface{}) error {
	return c.publish(topic, message, true)
}

func (c *client) Subscribe(topic string, messageHandler mqtt.MessageHandler) error {
	topic = path.Join(c.options.TopicPrefix, topic)
	c.subscriptions.list = append(c.subscriptions.list, SubscriptionHandler{
		Topic:          topic,
		MessageHandler: messageHandler,
	})
	log.Debug().Str("topic", topic).Msg("Subscribing to topic")
	t := c.mqttClient.Subscribe(topic, c.options.QoS, messageHandler)
	<-t.Done()
	return t.Error()
}

// Publish the current bridge status into the MQTT topic. Retained so
// Home Assistant availability survives broker restarts.
func (c *client) publishServerStatus(message string) error {
	log.Info().Str("status", message).Str("topic", serverStatus).Msg("Updating server status topic")
	return c.PublishAndRetain(serverStatus, message)
}

func (c *client) ServerStatusTopic() string {
	return path.Join(c.options.TopicPrefix, serverStatus)
}

func (c *client) GetFullTopic(topic string) string {
	return path.Join(c.options.TopicPrefix, topic)
}

func (c *client) RawClient() mqtt.Client {
	return c.mqttClient
}
