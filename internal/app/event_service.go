package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/deckd/internal/actions"
	"github.com/dokzlo13/deckd/internal/config"
	"github.com/dokzlo13/deckd/internal/device"
	"github.com/dokzlo13/deckd/internal/eventbus"
	"github.com/dokzlo13/deckd/internal/page"
	"github.com/dokzlo13/deckd/internal/state"
	"github.com/dokzlo13/deckd/internal/tasks"
)

const defaultRefreshInterval = 5 * time.Second

// PageRenderer draws pages onto the device
type PageRenderer interface {
	RenderPage(ctx context.Context, pageID string) error
	RenderKey(ctx context.Context, pageID string, key int) error
}

// EventService is the single authoritative event loop. It alone mutates the
// navigator and swaps configuration; slow work is handed to the task group.
type EventService struct {
	store      *config.Store
	bus        *eventbus.Bus
	sub        *eventbus.Subscription
	nav        *page.Navigator
	cache      *state.Cache
	handle     *device.Handle
	renderer   PageRenderer
	dispatcher *actions.Dispatcher
	tasks      *tasks.Group

	refresh *time.Ticker
}

// NewEventService creates the loop and subscribes it immediately, so events
// published before Run are not lost.
func NewEventService(
	store *config.Store,
	bus *eventbus.Bus,
	nav *page.Navigator,
	cache *state.Cache,
	handle *device.Handle,
	renderer PageRenderer,
	dispatcher *actions.Dispatcher,
	group *tasks.Group,
) *EventService {
	return &EventService{
		store:      store,
		bus:        bus,
		sub:        bus.Subscribe(),
		nav:        nav,
		cache:      cache,
		handle:     handle,
		renderer:   renderer,
		dispatcher: dispatcher,
		tasks:      group,
	}
}

// Run processes events until ctx is cancelled or a Shutdown event arrives.
func (s *EventService) Run(ctx context.Context) error {
	defer s.sub.Close()

	s.refresh = time.NewTicker(refreshInterval(s.store.Load()))
	defer s.refresh.Stop()

	log.Info().Str("page", s.nav.Current()).Msg("Event loop started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Event loop stopped")
			return nil

		case <-s.refresh.C:
			s.refreshStatefulPage()

		case <-s.sub.Ready():
			for {
				event, ok, err := s.sub.TryRecv()
				if err != nil {
					var lag *eventbus.LaggedError
					if errors.As(err, &lag) {
						log.Warn().Uint64("missed", lag.Missed).Msg("Event loop lagged, events dropped")
						continue
					}
					log.Info().Err(err).Msg("Event bus closed, stopping event loop")
					return nil
				}
				if !ok {
					break
				}
				if s.handleEvent(ctx, event) {
					log.Info().Msg("Shutdown event received")
					return nil
				}
			}
		}
	}
}

// handleEvent applies one event. Returns true when the loop should exit.
func (s *EventService) handleEvent(ctx context.Context, event eventbus.Event) bool {
	switch e := event.(type) {
	case eventbus.ButtonDown:
		s.onButtonDown(ctx, e.Key)

	case eventbus.ButtonUp:

	case eventbus.DeviceConnected:
		log.Info().Str("page", s.nav.Current()).Msg("Device connected, rendering all buttons")
		s.bus.Publish(eventbus.RenderAll{})

	case eventbus.DeviceDisconnected:
		log.Info().Msg("Device disconnected, waiting for reconnect")

	case eventbus.ConfigReloaded:
		s.onConfigReloaded(ctx, e.Config)

	case eventbus.NavigateTo:
		if _, ok := s.store.Load().Pages[e.Page]; !ok {
			log.Warn().Str("page", e.Page).Msg("Page not found")
			return false
		}
		s.nav.NavigateTo(e.Page)
		s.bus.Publish(eventbus.RenderAll{})

	case eventbus.NavigateBack:
		if s.nav.GoBack() {
			s.bus.Publish(eventbus.RenderAll{})
		}

	case eventbus.NavigateHome:
		s.nav.GoHome()
		s.bus.Publish(eventbus.RenderAll{})

	case eventbus.RenderAll:
		pageID := s.nav.Current()
		s.tasks.Go(ctx, "render page "+pageID, func(ctx context.Context) error {
			return s.renderer.RenderPage(ctx, pageID)
		})

	case eventbus.RenderButton:
		pageID, key := s.nav.Current(), e.Key
		s.tasks.Go(ctx, "render key", func(ctx context.Context) error {
			return s.renderer.RenderKey(ctx, pageID, key)
		})

	case eventbus.Shutdown:
		return true

	default:
		log.Warn().Str("type", string(event.Type())).Msg("Unhandled event")
	}

	return false
}

// onButtonDown predicts the bound entity's new state, redraws the key and
// starts the action.
func (s *EventService) onButtonDown(ctx context.Context, key int) {
	cfg := s.store.Load()
	button, ok := s.nav.ButtonForKey(cfg, key)
	if !ok {
		log.Debug().Int("key", key).Str("page", s.nav.Current()).Msg("No button bound to key")
		return
	}

	if button.StateEntity != "" {
		predicted := s.cache.Toggle(button.StateEntity)
		log.Debug().
			Int("key", key).
			Str("entity", button.StateEntity).
			Str("predicted", predicted).
			Msg("Optimistic state")
		s.bus.Publish(eventbus.RenderButton{Key: key})
	}

	s.dispatcher.Dispatch(ctx, s.nav.Current(), button, cfg.Deckd.SettleDelay.Duration())
}

func (s *EventService) onConfigReloaded(ctx context.Context, cfg *config.Config) {
	if cfg == nil {
		return
	}
	prev := s.store.Swap(cfg)

	s.nav.SetHome(cfg.Deckd.HomePage)
	if _, ok := cfg.Pages[s.nav.Current()]; !ok {
		log.Info().Str("page", s.nav.Current()).Str("home", cfg.Deckd.HomePage).Msg("Current page removed, going home")
		s.nav.GoHome()
	}

	if s.refresh != nil && prev.Deckd.StateRefreshInterval != cfg.Deckd.StateRefreshInterval {
		s.refresh.Reset(refreshInterval(cfg))
	}

	if prev.Deckd.GetBrightness() != cfg.Deckd.GetBrightness() {
		brightness := cfg.Deckd.GetBrightness()
		s.tasks.Go(ctx, "set brightness", func(context.Context) error {
			deck := s.handle.Load()
			if deck == nil {
				return nil
			}
			return deck.SetBrightness(brightness)
		})
	}

	log.Info().
		Int("pages", len(cfg.Pages)).
		Int("buttons", cfg.ButtonCount()).
		Str("page", s.nav.Current()).
		Msg("Configuration applied")
	s.bus.Publish(eventbus.RenderAll{})
}

func refreshInterval(cfg *config.Config) time.Duration {
	if d := cfg.Deckd.StateRefreshInterval.Duration(); d > 0 {
		return d
	}
	return defaultRefreshInterval
}

// refreshStatefulPage re-renders the current page if any button shows entity state.
func (s *EventService) refreshStatefulPage() {
	p, ok := s.store.Load().Pages[s.nav.Current()]
	if !ok || !p.IsStateful() {
		return
	}
	s.bus.Publish(eventbus.RenderAll{})
}
