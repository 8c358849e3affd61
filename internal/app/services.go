package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/deckd/internal/actions"
	"github.com/dokzlo13/deckd/internal/config"
	"github.com/dokzlo13/deckd/internal/db"
	"github.com/dokzlo13/deckd/internal/device"
	"github.com/dokzlo13/deckd/internal/display"
	"github.com/dokzlo13/deckd/internal/eventbus"
	"github.com/dokzlo13/deckd/internal/hass"
	"github.com/dokzlo13/deckd/internal/ledger"
	"github.com/dokzlo13/deckd/internal/mqttbridge"
	"github.com/dokzlo13/deckd/internal/page"
	"github.com/dokzlo13/deckd/internal/state"
	"github.com/dokzlo13/deckd/internal/tasks"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg        *config.Config
	configPath string

	// Core infrastructure
	Store *config.Store
	Bus   *eventbus.Bus
	Tasks *tasks.Group

	// Action ledger, nil when database.path is empty
	DB     *db.DB
	Ledger *ledger.Ledger

	// Device
	Handle  *device.Handle
	Session *device.Session

	// Pages, state and rendering
	Navigator    *page.Navigator
	Cache        *state.Cache
	HASS         *hass.Client
	Orchestrator *display.Orchestrator

	// Action system
	Executor   *actions.Executor
	Invoker    *actions.Invoker
	Dispatcher *actions.Dispatcher

	// High-level services
	Events        *EventService
	Reload        *ReloadService // nil without a config path
	LedgerCleanup *LedgerService
	MQTT          *mqttbridge.Bridge
	Health        *HealthService

	background sync.WaitGroup
}

// NewServices creates all services with proper dependency injection.
// configPath may be empty, which disables hot reload.
func NewServices(cfg *config.Config, configPath string, transport device.Transport) (*Services, error) {
	s := &Services{cfg: cfg, configPath: configPath}

	s.Store = config.NewStore(cfg)
	s.Bus = eventbus.New()
	s.Tasks = tasks.NewGroup()

	// Initialize database and ledger
	if cfg.Database.IsEnabled() {
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		s.DB = database
		s.Ledger = ledger.New(database.DB)
		s.LedgerCleanup = NewLedgerService(cfg.Database, s.Ledger)
	}

	// Device session owns the handle; everyone else only loads it
	s.Handle = device.NewHandle()
	s.Session = device.NewSession(transport, s.Bus, s.Handle, s.Store)

	s.Navigator = page.NewNavigator(cfg.Deckd.HomePage)
	s.Cache = state.NewCache()

	s.HASS = hass.NewClient(
		cfg.HomeAssistant.URL,
		cfg.HomeAssistant.Token,
		cfg.HomeAssistant.Timeout.Duration(),
		cfg.HomeAssistant.RateLimitRPS,
	)
	if !s.HASS.HasToken() {
		log.Warn().Msg("No Home Assistant token configured, entity state display disabled")
	}
	s.Orchestrator = display.NewOrchestrator(s.Store, s.Handle, s.Cache, s.HASS)

	// Action system
	s.Executor = actions.NewExecutor(s.Bus)
	s.Invoker = actions.NewInvoker(s.Executor, s.Ledger)
	s.Dispatcher = actions.NewDispatcher(s.Invoker, s.Tasks, s.Bus)

	s.Events = NewEventService(s.Store, s.Bus, s.Navigator, s.Cache, s.Handle, s.Orchestrator, s.Dispatcher, s.Tasks)

	if configPath != "" {
		s.Reload = NewReloadService(configPath, s.Bus)
	}

	if cfg.MQTT.Enabled {
		s.MQTT = mqttbridge.New(cfg.MQTT, s.Bus, s.Navigator.Current)
	}

	s.Health = NewHealthService(cfg, s.Status, s.Ledger)

	return s, nil
}

// Start starts all services in the correct order.
// onStop is called once the event loop exits on its own, e.g. after a Shutdown event.
func (s *Services) Start(ctx context.Context, onStop func()) error {
	s.goBackground(func() {
		if err := s.Events.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Event loop failed")
		}
		if ctx.Err() == nil && onStop != nil {
			onStop()
		}
	})

	s.goBackground(func() {
		if err := s.Session.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Device session failed")
		}
	})

	if s.Reload != nil {
		s.goBackground(func() { s.Reload.Run(ctx) })
	}

	if s.LedgerCleanup != nil {
		s.goBackground(func() { s.LedgerCleanup.Run(ctx) })
	}

	if s.MQTT != nil {
		s.goBackground(func() {
			// The client keeps retrying in the background when the first attempt fails
			if err := s.MQTT.Connect(); err != nil {
				log.Warn().Err(err).Str("broker", s.cfg.MQTT.Broker).Msg("MQTT broker unavailable, retrying in background")
			}
			if err := s.MQTT.Run(ctx); err != nil {
				log.Error().Err(err).Msg("MQTT bridge failed")
			}
		})
	}

	s.Health.Start(ctx)

	return nil
}

func (s *Services) goBackground(fn func()) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		fn()
	}()
}

// Status reports the current daemon state
func (s *Services) Status() Status {
	cfg := s.Store.Load()
	st := Status{
		Page:            s.Navigator.Current(),
		StackDepth:      s.Navigator.Depth(),
		DeviceConnected: s.Handle.Connected(),
		Pages:           len(cfg.Pages),
		Buttons:         cfg.ButtonCount(),
		CachedEntities:  s.Cache.Len(),
		RunningTasks:    s.Tasks.Running(),
	}
	if s.MQTT != nil {
		connected := s.MQTT.IsConnected()
		st.MQTTConnected = &connected
	}
	return st
}

// Stop waits for the background services and in-flight tasks, bounded by the
// shutdown timeout, then releases resources. The context passed to Start must
// already be cancelled.
func (s *Services) Stop() error {
	timeout := s.Store.Load().GetShutdownTimeout()
	deadline := time.Now().Add(timeout)

	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Warn().Dur("timeout", timeout).Msg("Services did not stop in time")
	}

	s.Tasks.Wait(time.Until(deadline))

	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Bus != nil {
		s.Bus.Close()
	}
	if s.HASS != nil {
		s.HASS.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
