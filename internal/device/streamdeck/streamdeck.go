// Package streamdeck drives 15-key Elgato Stream Deck hardware over USB HID.
package streamdeck

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sstallion/go-hid"

	"github.com/dokzlo13/deckd/internal/device"
)

// VendorID is Elgato's USB vendor id
const VendorID uint16 = 0x0fd9

// Model describes a supported Stream Deck variant.
type Model struct {
	Name      string
	ProductID uint16
	Keys      int
	KeySize   int
}

// Supported 15-key models sharing the v2 protocol
var Models = []Model{
	{Name: "Stream Deck Original V2", ProductID: 0x006d, Keys: 15, KeySize: 72},
	{Name: "Stream Deck MK.2", ProductID: 0x0080, Keys: 15, KeySize: 72},
	{Name: "Stream Deck MK.2 (2021)", ProductID: 0x00a5, Keys: 15, KeySize: 72},
}

// ModelByProductID returns the model with the given USB product id.
func ModelByProductID(pid uint16) (Model, bool) {
	for _, m := range Models {
		if m.ProductID == pid {
			return m, true
		}
	}
	return Model{}, false
}

var (
	initOnce sync.Once
	initErr  error
)

// Transport enumerates and opens Stream Decks through hidapi.
type Transport struct{}

// NewTransport initializes the HID library once per process.
func NewTransport() (*Transport, error) {
	initOnce.Do(func() {
		initErr = hid.Init()
	})
	if initErr != nil {
		return nil, fmt.Errorf("failed to initialize hidapi: %w", initErr)
	}
	return &Transport{}, nil
}

// Discover lists attached supported devices.
func (t *Transport) Discover() ([]device.Info, error) {
	var found []device.Info
	err := hid.Enumerate(VendorID, hid.ProductIDAny, func(info *hid.DeviceInfo) error {
		model, ok := ModelByProductID(info.ProductID)
		if !ok {
			log.Debug().
				Str("product_id", fmt.Sprintf("0x%04x", info.ProductID)).
				Msg("Skipping unsupported Elgato device")
			return nil
		}
		found = append(found, device.Info{
			Kind:   model.Name,
			Serial: info.SerialNbr,
			Path:   info.Path,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hid enumerate: %w", err)
	}
	return found, nil
}

// Connect opens the device at info.Path.
func (t *Transport) Connect(info device.Info) (device.Deck, error) {
	dev, err := hid.OpenPath(info.Path)
	if err != nil {
		return nil, err
	}
	return newDeck(dev, info), nil
}
