package eventbus

import "github.com/dokzlo13/deckd/internal/config"

// EventType represents the type of event
type EventType string

const (
	EventTypeButtonDown         EventType = "button_down"
	EventTypeButtonUp           EventType = "button_up"
	EventTypeDeviceConnected    EventType = "device_connected"
	EventTypeDeviceDisconnected EventType = "device_disconnected"
	EventTypeConfigReloaded     EventType = "config_reloaded"
	EventTypeNavigateTo         EventType = "navigate_to"
	EventTypeNavigateBack       EventType = "navigate_back"
	EventTypeNavigateHome       EventType = "navigate_home"
	EventTypeRenderAll          EventType = "render_all"
	EventTypeRenderButton       EventType = "render_button"
	EventTypeShutdown           EventType = "shutdown"
)

// Event is the closed set of messages carried by the bus.
type Event interface {
	Type() EventType
	isEvent()
}

// ButtonDown is published when a key goes from released to pressed
type ButtonDown struct{ Key int }

// ButtonUp is published when a key goes from pressed to released
type ButtonUp struct{ Key int }

// DeviceConnected is published after a device handle is stored
type DeviceConnected struct{}

// DeviceDisconnected is published after the handle is cleared
type DeviceDisconnected struct{}

// ConfigReloaded carries a freshly loaded and validated snapshot
type ConfigReloaded struct{ Config *config.Config }

// NavigateTo requests a page push
type NavigateTo struct{ Page string }

// NavigateBack requests a page pop
type NavigateBack struct{}

// NavigateHome requests a reset to the home page
type NavigateHome struct{}

// RenderAll requests a full render of the current page
type RenderAll struct{}

// RenderButton requests a render of a single key from cached state
type RenderButton struct{ Key int }

// Shutdown asks the event loop to exit
type Shutdown struct{}

func (ButtonDown) Type() EventType         { return EventTypeButtonDown }
func (ButtonUp) Type() EventType           { return EventTypeButtonUp }
func (DeviceConnected) Type() EventType    { return EventTypeDeviceConnected }
func (DeviceDisconnected) Type() EventType { return EventTypeDeviceDisconnected }
func (ConfigReloaded) Type() EventType     { return EventTypeConfigReloaded }
func (NavigateTo) Type() EventType         { return EventTypeNavigateTo }
func (NavigateBack) Type() EventType       { return EventTypeNavigateBack }
func (NavigateHome) Type() EventType       { return EventTypeNavigateHome }
func (RenderAll) Type() EventType          { return EventTypeRenderAll }
func (RenderButton) Type() EventType       { return EventTypeRenderButton }
func (Shutdown) Type() EventType           { return EventTypeShutdown }

func (ButtonDown) isEvent()         {}
func (ButtonUp) isEvent()           {}
func (DeviceConnected) isEvent()    {}
func (DeviceDisconnected) isEvent() {}
func (ConfigReloaded) isEvent()     {}
func (NavigateTo) isEvent()         {}
func (NavigateBack) isEvent()       {}
func (NavigateHome) isEvent()       {}
func (RenderAll) isEvent()          {}
func (RenderButton) isEvent()       {}
func (Shutdown) isEvent()           {}
