// Package display turns the current page into key images on the device.
package display

import (
	"context"
	"fmt"
	"image"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/deckd/internal/config"
	"github.com/dokzlo13/deckd/internal/device"
	"github.com/dokzlo13/deckd/internal/render"
	"github.com/dokzlo13/deckd/internal/state"
)

// StateSource resolves entity states. Failed lookups are omitted from the result.
type StateSource interface {
	FetchStates(ctx context.Context, ids []string) map[string]string
}

// Orchestrator renders pages and pushes them to whatever device is connected.
type Orchestrator struct {
	store  *config.Store
	handle *device.Handle
	cache  *state.Cache
	source StateSource
}

// NewOrchestrator creates a render orchestrator
func NewOrchestrator(store *config.Store, handle *device.Handle, cache *state.Cache, source StateSource) *Orchestrator {
	return &Orchestrator{
		store:  store,
		handle: handle,
		cache:  cache,
		source: source,
	}
}

// RenderPage polls fresh state for every entity on the page, renders all keys
// and writes them with one flush. Without a device this is a no-op.
func (o *Orchestrator) RenderPage(ctx context.Context, pageID string) error {
	cfg := o.store.Load()
	p, ok := cfg.Pages[pageID]
	if !ok {
		return fmt.Errorf("page %q not found", pageID)
	}

	if ids := p.EntityIDs(); len(ids) > 0 {
		o.cache.Merge(o.source.FetchStates(ctx, ids))
	}
	states := o.cache.Snapshot(p.EntityIDs())

	images := make([]image.Image, config.KeyCount)
	for key := range images {
		images[key] = renderKey(cfg, &p, key, states)
	}

	deck := o.handle.Load()
	if deck == nil {
		log.Debug().Str("page", pageID).Msg("No device connected, skipping push")
		return nil
	}

	for key, img := range images {
		if err := deck.SetButtonImage(key, img); err != nil {
			return fmt.Errorf("set image for key %d: %w", key, err)
		}
	}
	if err := deck.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	log.Debug().Str("page", pageID).Int("entities", len(states)).Msg("Page rendered")
	return nil
}

// RenderKey redraws one key from cached state only.
func (o *Orchestrator) RenderKey(ctx context.Context, pageID string, key int) error {
	cfg := o.store.Load()
	p, ok := cfg.Pages[pageID]
	if !ok {
		return fmt.Errorf("page %q not found", pageID)
	}
	if key < 0 || key >= config.KeyCount {
		return fmt.Errorf("key %d out of range", key)
	}

	img := renderKey(cfg, &p, key, o.cache.Snapshot(p.EntityIDs()))

	deck := o.handle.Load()
	if deck == nil {
		return nil
	}
	if err := deck.SetButtonImage(key, img); err != nil {
		return fmt.Errorf("set image for key %d: %w", key, err)
	}
	if err := deck.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// renderKey draws the button bound to key, or a blank tile. A render error
// is confined to its key.
func renderKey(cfg *config.Config, p *config.Page, key int, states map[string]string) image.Image {
	b, ok := p.Button(key)
	if !ok {
		return render.RenderBlank()
	}

	img, err := render.RenderButton(b, cfg.Deckd.Defaults, cfg.BaseDir, states)
	if err != nil {
		log.Error().Err(err).Int("key", key).Str("label", b.Label).Msg("Failed to render button")
		return render.RenderBlank()
	}
	return img
}
