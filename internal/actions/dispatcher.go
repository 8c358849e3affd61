package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/deckd/internal/config"
	"github.com/dokzlo13/deckd/internal/eventbus"
	"github.com/dokzlo13/deckd/internal/tasks"
)

// Dispatcher runs button actions in the background so the event loop never
// waits on them.
type Dispatcher struct {
	invoker *Invoker
	tasks   *tasks.Group
	bus     *eventbus.Bus
}

// NewDispatcher creates a dispatcher spawning work on group
func NewDispatcher(invoker *Invoker, group *tasks.Group, bus *eventbus.Bus) *Dispatcher {
	return &Dispatcher{
		invoker: invoker,
		tasks:   group,
		bus:     bus,
	}
}

// Dispatch starts the button's action. For entity-bound buttons a full
// re-render follows after settle, whether or not the action succeeded, so an
// optimistic guess is always corrected.
func (d *Dispatcher) Dispatch(ctx context.Context, page string, b *config.Button, settle time.Duration) {
	if b.OnPress == nil && b.StateEntity == "" {
		return
	}

	key := b.Key
	action := b.OnPress
	entity := b.StateEntity

	name := fmt.Sprintf("button %d", key)
	d.tasks.Go(ctx, name, func(ctx context.Context) error {
		var err error
		if action != nil {
			err = d.invoker.Invoke(ctx, page, key, action)
			if err != nil {
				log.Error().Err(err).Int("key", key).Str("action", string(action.Kind())).Msg("Action failed")
			}
		}

		if entity == "" {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(settle):
		}
		log.Debug().Str("entity", entity).Dur("settle", settle).Msg("Re-rendering after action")
		d.bus.Publish(eventbus.RenderAll{})
		return nil
	})
}
