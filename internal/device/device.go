// Package device manages the exclusive connection to a button-grid device.
package device

import (
	"errors"
	"image"
	"time"
)

// ErrNoDevice is returned by discovery when nothing supported is attached.
var ErrNoDevice = errors.New("no Stream Deck found")

// Info identifies an attached device found by discovery
type Info struct {
	Kind   string // Human readable model name
	Serial string
	Path   string // Transport-specific open path
}

// Transport enumerates and opens devices of the supported product family.
type Transport interface {
	Discover() ([]Info, error)
	Connect(info Info) (Deck, error)
}

// Deck is an open device handle.
// Operations on a handle whose device went away return an error; they never panic.
type Deck interface {
	// Keys returns the number of keys on the device
	Keys() int

	// ReadButtons waits up to timeout for an input report.
	// It returns the pressed state of every key, or nil if no report arrived.
	ReadButtons(timeout time.Duration) ([]bool, error)

	// SetButtonImage queues an image for key; it is shown after Flush.
	SetButtonImage(key int, img image.Image) error

	// Flush writes all queued images to the device
	Flush() error

	// SetBrightness sets backlight brightness in percent (0-100)
	SetBrightness(percent int) error

	// Close releases the handle. Safe to call more than once and concurrently with a read.
	Close() error
}
