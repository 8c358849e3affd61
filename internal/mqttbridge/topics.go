// Package mqttbridge mirrors deck activity to an MQTT broker and accepts
// navigation commands from it.
package mqttbridge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dokzlo13/deckd/internal/eventbus"
)

// Status payloads, published retained
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Topics builds topic names under a common prefix.
type Topics struct {
	Prefix string
}

// Button is where press and release of one key are published
func (t Topics) Button(key int) string {
	return fmt.Sprintf("%s/button/%d", t.Prefix, key)
}

// Status carries the daemon's online/offline state and the LWT
func (t Topics) Status() string {
	return t.Prefix + "/status"
}

// Device carries connected/disconnected
func (t Topics) Device() string {
	return t.Prefix + "/device"
}

// Page carries the page shown after every navigation
func (t Topics) Page() string {
	return t.Prefix + "/page"
}

// Commands is the wildcard subscription for inbound commands
func (t Topics) Commands() string {
	return t.Prefix + "/command/+"
}

// ButtonMessage is the JSON payload of a button topic
type ButtonMessage struct {
	Key   int    `json:"key"`
	State string `json:"state"` // down or up
	Page  string `json:"page,omitempty"`
}

// Outbound maps a bus event to the topic and payload it is mirrored to.
// ok is false for events that are not published.
func (t Topics) Outbound(e eventbus.Event, page string) (topic string, payload []byte, retained bool, ok bool) {
	switch ev := e.(type) {
	case eventbus.ButtonDown:
		return t.buttonMessage(ev.Key, "down", page)
	case eventbus.ButtonUp:
		return t.buttonMessage(ev.Key, "up", page)
	case eventbus.DeviceConnected:
		return t.Device(), []byte("connected"), true, true
	case eventbus.DeviceDisconnected:
		return t.Device(), []byte("disconnected"), true, true
	default:
		return "", nil, false, false
	}
}

func (t Topics) buttonMessage(key int, state, page string) (string, []byte, bool, bool) {
	payload, err := json.Marshal(ButtonMessage{Key: key, State: state, Page: page})
	if err != nil {
		return "", nil, false, false
	}
	return t.Button(key), payload, false, true
}

// Inbound maps a command message to the bus event it requests.
//
//	{prefix}/command/navigate  payload: page id
//	{prefix}/command/back
//	{prefix}/command/home
//	{prefix}/command/render
func (t Topics) Inbound(topic string, payload []byte) (eventbus.Event, error) {
	cmd, found := strings.CutPrefix(topic, t.Prefix+"/command/")
	if !found {
		return nil, fmt.Errorf("not a command topic: %s", topic)
	}

	switch cmd {
	case "navigate":
		page := strings.TrimSpace(string(payload))
		if page == "" {
			return nil, fmt.Errorf("navigate command requires a page id")
		}
		return eventbus.NavigateTo{Page: page}, nil
	case "back":
		return eventbus.NavigateBack{}, nil
	case "home":
		return eventbus.NavigateHome{}, nil
	case "render":
		return eventbus.RenderAll{}, nil
	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}
