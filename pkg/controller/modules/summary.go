package modules

import (
	"encoding/json"
	"path"
	"strings"
	"time"

	"github.com/Smart-Home-Shop/ha-inspire-integration/pkg/config"
	"github.com/Smart-Home-Shop/ha-inspire-integration/pkg/inspire"
	"github.com/Smart-Home-Shop/ha-inspire-integration/pkg/mqtt"
	"github.com/rs/zerolog/log"
)

const summary string = "summary"

// Summary Module publishes the account summary. Scalar fields go out
// as individual topics, repeated groups as JSON arrays.
type SummaryModule struct {
	mqttClient mqtt.Client
	client     inspire.Client

	refreshInterval time.Duration

	ticker     *time.Ticker
	tickerDone chan struct{}
}

func (c *SummaryModule) Start() error {
	c.ticker = time.NewTicker(c.refreshInterval)
	c.tickerDone = make(chan struct{})
	go func() {
		c.updateSummary()
		for {
			select {
			case <-c.tickerDone:
				return
			case <-c.ticker.C:
				c.updateSummary()
			}
		}
	}()
	return nil
}

func (c *SummaryModule) Stop() error {
	c.ticker.Stop()
	c.tickerDone <- struct{}{}
	c.ticker = nil
	return nil
}

func (c *SummaryModule) updateSummary() {
	log.Debug().Msg("Refreshing account summary.")
	response, err := c.client.GetSummary()
	if err != nil {
		log.Error().Err(err).Msg("Error fetching account summary.")
		return
	}
	if response.Empty() {
		log.Debug().Msg("Account summary is empty, nothing to publish.")
		return
	}

	for key, value := range response.Fields {
		topic := path.Join(summary, summaryTopicKey(key), mqtt.State)
		if err := c.mqttClient.Publish(topic, value); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("Error publishing summary field.")
		}
	}
	for name, records := range response.Groups {
		payload, err := json.Marshal(records)
		if err != nil {
			log.Error().Err(err).Str("group", name).Msg("Error serializing summary group.")
			continue
		}
		topic := path.Join(summary, summaryTopicKey(name), mqtt.State)
		if err := c.mqttClient.Publish(topic, payload); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("Error publishing summary group.")
		}
	}
}

// summaryTopicKey normalizes a vendor field name into a topic segment.
func summaryTopicKey(key string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(key), " ", "_"))
}

func NewSummaryModule(mqttClient mqtt.Client, client inspire.Client, config *config.Config) Module {
	return &SummaryModule{
		mqttClient:      mqttClient,
		client:          client,
		refreshInterval: config.Inspire.RefreshInterval,
	}
}

func init() {
	Register(summary, NewSummaryModule)
}
