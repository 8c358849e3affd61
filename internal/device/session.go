package device

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/deckd/internal/config"
	"github.com/dokzlo13/deckd/internal/eventbus"
)

// DefaultPollRate is the hardware input sampling rate
const DefaultPollRate = 60

// SessionState is the connection state machine position
type SessionState string

const (
	StateDiscovering SessionState = "discovering"
	StateConnected   SessionState = "connected"
	StateStopped     SessionState = "stopped"
)

// Session runs discover -> connect -> read -> disconnect -> backoff until cancelled.
// It is the only writer of its Handle.
type Session struct {
	transport    Transport
	bus          *eventbus.Bus
	handle       *Handle
	store        *config.Store
	pollInterval time.Duration
}

// NewSession creates a device session. Reconnect interval and brightness are
// read from the store on every cycle so reloads apply without restart.
func NewSession(transport Transport, bus *eventbus.Bus, handle *Handle, store *config.Store) *Session {
	return &Session{
		transport:    transport,
		bus:          bus,
		handle:       handle,
		store:        store,
		pollInterval: time.Second / DefaultPollRate,
	}
}

// Handle returns the shared device cell
func (s *Session) Handle() *Handle {
	return s.handle
}

// Run drives the state machine. It returns nil when ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	defer s.handle.Set(nil)

	for {
		if ctx.Err() != nil {
			return nil
		}

		deck, info, err := s.discoverAndConnect()
		if err != nil {
			log.Debug().Err(err).Msg("No device available")
		} else {
			s.connected(deck, info)

			err := s.readLoop(ctx, deck)

			s.handle.Set(nil)
			deck.Close()

			if ctx.Err() != nil {
				log.Info().Str("state", string(StateStopped)).Msg("Device session stopped")
				return nil
			}

			log.Warn().Err(err).Str("serial", info.Serial).Msg("Device disconnected")
			s.bus.Publish(eventbus.DeviceDisconnected{})
		}

		interval := s.store.Load().Deckd.ReconnectInterval.Duration()
		log.Debug().
			Str("state", string(StateDiscovering)).
			Dur("backoff", interval).
			Msg("Waiting before device discovery")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func (s *Session) discoverAndConnect() (Deck, Info, error) {
	devices, err := s.transport.Discover()
	if err != nil {
		return nil, Info{}, fmt.Errorf("device discovery failed: %w", err)
	}
	if len(devices) == 0 {
		return nil, Info{}, ErrNoDevice
	}

	info := devices[0]
	log.Info().Str("kind", info.Kind).Str("serial", info.Serial).Msg("Found Stream Deck")

	deck, err := s.transport.Connect(info)
	if err != nil {
		return nil, Info{}, fmt.Errorf("failed to open %s (serial %s): %w", info.Kind, info.Serial, err)
	}
	return deck, info, nil
}

func (s *Session) connected(deck Deck, info Info) {
	brightness := s.store.Load().Deckd.GetBrightness()
	if err := deck.SetBrightness(brightness); err != nil {
		log.Warn().Err(err).Int("brightness", brightness).Msg("Failed to set brightness")
	}

	s.handle.Set(deck)
	log.Info().
		Str("state", string(StateConnected)).
		Str("kind", info.Kind).
		Str("serial", info.Serial).
		Int("keys", deck.Keys()).
		Msg("Stream Deck connected")
	s.bus.Publish(eventbus.DeviceConnected{})
}

// readLoop samples key state and publishes a down/up event for every key that changed.
// Cancellation closes the device so a blocked read returns promptly.
func (s *Session) readLoop(ctx context.Context, deck Deck) error {
	stop := context.AfterFunc(ctx, func() { deck.Close() })
	defer stop()

	pressed := make([]bool, deck.Keys())
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		state, err := deck.ReadButtons(s.pollInterval)
		if err != nil {
			return err
		}
		if state == nil {
			continue
		}

		for key, down := range state {
			if key >= len(pressed) || pressed[key] == down {
				continue
			}
			pressed[key] = down
			if down {
				log.Debug().Int("key", key).Msg("Button down")
				s.bus.Publish(eventbus.ButtonDown{Key: key})
			} else {
				log.Debug().Int("key", key).Msg("Button up")
				s.bus.Publish(eventbus.ButtonUp{Key: key})
			}
		}
	}
}
