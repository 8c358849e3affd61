package streamdeck

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sstallion/go-hid"

	"github.com/dokzlo13/deckd/internal/device"
)

var errClosed = errors.New("stream deck closed")

// hidDevice is the subset of *hid.Device the deck needs
type hidDevice interface {
	ReadWithTimeout(p []byte, timeout time.Duration) (int, error)
	Write(p []byte) (int, error)
	SendFeatureReport(p []byte) (int, error)
	Close() error
}

// Deck is an open 15-key Stream Deck.
// Images are queued by SetButtonImage and written out by Flush.
type Deck struct {
	dev  hidDevice
	info device.Info
	keys int
	size int

	writeMu sync.Mutex
	pending map[int][]byte

	readMu  sync.Mutex
	readBuf []byte

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

func newDeck(dev hidDevice, info device.Info) *Deck {
	return &Deck{
		dev:     dev,
		info:    info,
		keys:    15,
		size:    72,
		pending: make(map[int][]byte),
		readBuf: make([]byte, inputReportSize),
		closed:  make(chan struct{}),
	}
}

// Keys returns the number of keys
func (d *Deck) Keys() int {
	return d.keys
}

// ReadButtons waits up to timeout for an input report.
// Returns nil states when nothing arrived.
func (d *Deck) ReadButtons(timeout time.Duration) ([]bool, error) {
	d.readMu.Lock()
	defer d.readMu.Unlock()

	if d.isClosed() {
		return nil, errClosed
	}

	n, err := d.dev.ReadWithTimeout(d.readBuf, timeout)
	if errors.Is(err, hid.ErrTimeout) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read input report: %w", err)
	}
	return parseKeyStates(d.readBuf[:n], d.keys), nil
}

// SetButtonImage encodes img and queues it for the next Flush.
func (d *Deck) SetButtonImage(key int, img image.Image) error {
	if key < 0 || key >= d.keys {
		return fmt.Errorf("key %d out of range", key)
	}
	data, err := encodeKeyImage(img, d.size)
	if err != nil {
		return fmt.Errorf("encode key %d: %w", key, err)
	}

	d.writeMu.Lock()
	d.pending[key] = data
	d.writeMu.Unlock()
	return nil
}

// Flush writes every queued image to the device.
func (d *Deck) Flush() error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if d.isClosed() {
		return errClosed
	}

	for key, data := range d.pending {
		for _, packet := range imagePackets(key, data) {
			if _, err := d.dev.Write(packet); err != nil {
				return fmt.Errorf("write key %d: %w", key, err)
			}
		}
		delete(d.pending, key)
	}
	return nil
}

// SetBrightness sets backlight brightness, clamped to 0..100.
func (d *Deck) SetBrightness(percent int) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if d.isClosed() {
		return errClosed
	}
	if _, err := d.dev.SendFeatureReport(brightnessReport(percent)); err != nil {
		return fmt.Errorf("set brightness: %w", err)
	}
	return nil
}

// Close releases the HID handle. Safe to call more than once.
// An in-flight read is allowed to time out before the handle is released.
func (d *Deck) Close() error {
	d.closeOnce.Do(func() {
		close(d.closed)

		d.readMu.Lock()
		d.writeMu.Lock()
		d.closeErr = d.dev.Close()
		d.writeMu.Unlock()
		d.readMu.Unlock()
		log.Debug().Str("serial", d.info.Serial).Msg("Stream Deck handle closed")
	})
	return d.closeErr
}

func (d *Deck) isClosed() bool {
	select {
	case <-d.closed:
		return true
	default:
		return false
	}
}
