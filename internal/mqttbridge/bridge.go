package mqttbridge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/deckd/internal/config"
	"github.com/dokzlo13/deckd/internal/eventbus"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 1000 // milliseconds
	keepAlive         = 60 * time.Second
)

// ErrConnectionFailed is returned when the broker cannot be reached at startup
var ErrConnectionFailed = errors.New("mqtt connection failed")

// Bridge forwards bus events to MQTT and MQTT commands to the bus.
type Bridge struct {
	cfg      config.MQTTConfig
	topics   Topics
	bus      *eventbus.Bus
	client   pahomqtt.Client
	pageFn   func() string
	lastPage atomic.Value // string
}

// New creates a bridge. pageFn reports the current page for button payloads.
func New(cfg config.MQTTConfig, bus *eventbus.Bus, pageFn func() string) *Bridge {
	b := &Bridge{
		cfg:    cfg,
		topics: Topics{Prefix: cfg.TopicPrefix},
		bus:    bus,
		pageFn: pageFn,
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)
	opts.SetWill(b.topics.Status(), StatusOffline, b.qos(), true)
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		b.onConnect(c)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	b.client = pahomqtt.NewClient(opts)
	return b
}

func (b *Bridge) qos() byte {
	if b.cfg.QoS < 0 || b.cfg.QoS > 2 {
		return 0
	}
	return byte(b.cfg.QoS)
}

// Connect performs the initial broker connection.
func (b *Bridge) Connect() error {
	token := b.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	log.Info().Str("broker", b.cfg.Broker).Str("prefix", b.cfg.TopicPrefix).Msg("MQTT bridge connected")
	return nil
}

// onConnect runs on every (re)connect: announce and resubscribe.
func (b *Bridge) onConnect(c pahomqtt.Client) {
	c.Publish(b.topics.Status(), b.qos(), true, StatusOnline)
	c.Subscribe(b.topics.Commands(), b.qos(), func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleCommand(msg.Topic(), msg.Payload())
	})
}

func (b *Bridge) handleCommand(topic string, payload []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("topic", topic).Msg("MQTT command handler panicked")
		}
	}()

	event, err := b.topics.Inbound(topic, payload)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Ignoring MQTT command")
		return
	}
	log.Info().Str("topic", topic).Str("event", string(event.Type())).Msg("MQTT command received")
	b.bus.Publish(event)
}

// Run mirrors bus events until ctx is cancelled, then publishes offline
// status and disconnects.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.bus.Subscribe()
	defer sub.Close()
	defer b.close()

	for {
		event, err := sub.Recv(ctx)
		if err != nil {
			var lag *eventbus.LaggedError
			if errors.As(err, &lag) {
				log.Warn().Uint64("missed", lag.Missed).Msg("MQTT bridge lagged behind event bus")
				continue
			}
			if ctx.Err() != nil || errors.Is(err, eventbus.ErrClosed) {
				return nil
			}
			return err
		}

		b.publishPageChange()

		topic, payload, retained, ok := b.topics.Outbound(event, b.currentPage())
		if !ok {
			continue
		}
		b.client.Publish(topic, b.qos(), retained, payload)
	}
}

// publishPageChange publishes the current page when it differs from the last one sent.
func (b *Bridge) publishPageChange() {
	page := b.currentPage()
	if page == "" {
		return
	}
	if last, _ := b.lastPage.Load().(string); last == page {
		return
	}
	b.lastPage.Store(page)
	b.client.Publish(b.topics.Page(), b.qos(), true, page)
}

func (b *Bridge) currentPage() string {
	if b.pageFn == nil {
		return ""
	}
	return b.pageFn()
}

// IsConnected reports the broker connection state
func (b *Bridge) IsConnected() bool {
	return b.client.IsConnected()
}

func (b *Bridge) close() {
	if b.client.IsConnected() {
		token := b.client.Publish(b.topics.Status(), b.qos(), true, StatusOffline)
		token.WaitTimeout(publishTimeout)
	}
	b.client.Disconnect(disconnectQuiesce)
	log.Info().Msg("MQTT bridge disconnected")
}
