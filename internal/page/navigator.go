// Package page tracks which page of buttons is on the deck.
package page

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/deckd/internal/config"
)

// Navigator is a page history stack. The bottom entry is always the home page
// and is never popped.
//
// Only the event loop mutates the navigator; the lock lets status readers
// observe the current page from other goroutines.
type Navigator struct {
	mu    sync.RWMutex
	stack []string
	home  string
}

// NewNavigator creates a navigator positioned on home.
func NewNavigator(home string) *Navigator {
	return &Navigator{
		stack: []string{home},
		home:  home,
	}
}

// NavigateTo pushes id. Repeated navigation to the same page grows the stack.
func (n *Navigator) NavigateTo(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stack = append(n.stack, id)
	log.Debug().Str("page", id).Int("depth", len(n.stack)).Msg("Navigated to page")
}

// GoBack pops the top page. Returns false if only one page remains.
func (n *Navigator) GoBack() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.stack) <= 1 {
		return false
	}
	n.stack = n.stack[:len(n.stack)-1]
	log.Debug().Str("page", n.stack[len(n.stack)-1]).Int("depth", len(n.stack)).Msg("Navigated back")
	return true
}

// GoHome resets the stack to the home page.
func (n *Navigator) GoHome() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stack = []string{n.home}
	log.Debug().Str("page", n.home).Msg("Navigated home")
}

// SetHome changes the home page id. The stack is left as is.
func (n *Navigator) SetHome(home string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.home = home
}

// Home returns the home page id
func (n *Navigator) Home() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.home
}

// Current returns the page on top of the stack
func (n *Navigator) Current() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stack[len(n.stack)-1]
}

// Depth returns the stack height
func (n *Navigator) Depth() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.stack)
}

// ButtonForKey returns the first button on the current page bound to key.
func (n *Navigator) ButtonForKey(cfg *config.Config, key int) (*config.Button, bool) {
	p, ok := cfg.Pages[n.Current()]
	if !ok {
		return nil, false
	}
	return p.Button(key)
}
