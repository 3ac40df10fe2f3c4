package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Smart-Home-Shop/ha-inspire-integration/pkg/config"
	"github.com/Smart-Home-Shop/ha-inspire-integration/pkg/inspire"
	"github.com/Smart-Home-Shop/ha-inspire-integration/pkg/mqtt"
	"github.com/rs/zerolog/log"

	"github.com/go-chi/chi/v5"
	healthgo "github.com/hellofresh/health-go/v5"
)

type Health interface {
	Start() error
	Stop() error
}

type health struct {
	config        config.HealthCheckConfig
	mqttClient    mqtt.Client
	inspireClient inspire.Client
	health        *healthgo.Health

	server        *http.Server
	serverCtx     context.Context
	serverStopCtx context.CancelFunc
}

func NewHealth(config config.HealthCheckConfig, mqttClient mqtt.Client, inspireClient inspire.Client) Health {
	h, _ := healthgo.New(healthgo.WithComponent(healthgo.Component{
		Name:    "inspire-mqtt",
		Version: "v1.0",
	}),
	)

	err := h.Register(healthgo.Config{
		Name:      "mqtt",
		Timeout:   time.Second * 2,
		SkipOnErr: false,
		Check: func(ctx context.Context) error {
			if mqttClient.RawClient().IsConnectionOpen() {
				return nil
			}
			return errors.New("MQTT client is not connected")
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("Unable to register MQTT healthcheck")
		return nil
	}

	// The Inspire check only inspects the session state, probing the
	// vendor API on every health request would burn the rate budget.
	err = h.Register(healthgo.Config{
		Name:      "inspire",
		Timeout:   time.Second * 2,
		SkipOnErr: false,
		Check: func(ctx context.Context) error {
			if inspireClient.Connected() {
				return nil
			}
			return errors.New("no active Inspire API session")
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("Unable to register Inspire healthcheck")
		return nil
	}

	return &health{
		config:        config,
		mqttClient:    mqttClient,
		inspireClient: inspireClient,
		health:        h,
	}
}

func (h *health) Start() error {
	listenAddr := fmt.Sprintf("0.0.0.0:%d", h.config.Port)
	h.server = &http.Server{Addr: listenAddr, Handler: h.service()}
	h.serverCtx, h.serverStopCtx = context.WithCancel(context.Background())
	go func() {
		log.Info().Msgf("Starting health check server on %s", listenAddr)
		err := h.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Unable to start health check server")
		}
	}()
	return nil
}

func (h *health) Stop() error {
	// The shutdown deadline starts counting here, not at Start.
	shutdownCtx, cancel := context.WithTimeout(h.serverCtx, 30*time.Second)
	defer cancel()
	err := h.server.Shutdown(shutdownCtx)
	if err != nil {
		return err
	}
	h.serverStopCtx()
	log.Info().Msg("Health check server stopped")
	return nil
}

func (h *health) service() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", h.health.HandlerFunc)
	r.Get("/health/ready", h.health.HandlerFunc)
	r.Get("/health/live", h.health.HandlerFunc)
	return r
}
