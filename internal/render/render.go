// Package render draws key images for the deck.
//
// Output is a pure function of the button, style defaults, icon files and
// entity states, so identical inputs give byte-identical images.
package render

import (
	"image"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/deckd/internal/config"
)

// Style is the resolved look of one button
type Style struct {
	Background string
	TextColor  string
	FontSize   float64
	Font       string
}

// ResolveStyle applies the three-level fallback: the "on" override while the
// bound entity is on, then the button's own value, then the defaults.
// Background and text color fall back independently.
func ResolveStyle(b *config.Button, defaults config.ButtonDefaults, states map[string]string) Style {
	on := b.StateEntity != "" && states[b.StateEntity] == "on"

	s := Style{
		Background: firstNonEmpty(b.Background, defaults.Background),
		TextColor:  firstNonEmpty(b.TextColor, defaults.TextColor),
		FontSize:   b.FontSize,
		Font:       firstNonEmpty(b.Font, defaults.Font),
	}
	if on {
		s.Background = firstNonEmpty(b.OnBackground, s.Background)
		s.TextColor = firstNonEmpty(b.OnTextColor, s.TextColor)
	}
	if s.FontSize <= 0 {
		s.FontSize = defaults.FontSize
	}
	s.FontSize = min(s.FontSize, config.MaxFontSize)
	return s
}

// RenderButton draws one button. Icon failures are logged and the button is
// drawn without it; color and font errors fail the whole key.
func RenderButton(b *config.Button, defaults config.ButtonDefaults, baseDir string, states map[string]string) (*image.RGBA, error) {
	style := ResolveStyle(b, defaults, states)

	img, err := NewCanvas(style.Background)
	if err != nil {
		return nil, err
	}

	iconDrawn := false
	if b.Icon != "" {
		path := resolveIconPath(b.Icon, baseDir)
		icon, err := loadIcon(path)
		if err != nil {
			log.Warn().Err(err).Int("key", b.Key).Str("icon", path).Msg("Failed to load icon")
		} else {
			composite(img, icon, iconX(icon.Bounds().Dx()), iconY(b.HasLabel()))
			iconDrawn = true
		}
	}

	if b.Label == "" {
		return img, nil
	}

	textColor, err := ParseHexColor(style.TextColor)
	if err != nil {
		return nil, err
	}

	size := style.FontSize
	if iconDrawn {
		size = min(size, iconLabelMaxSize)
	}
	face, err := newFace(style.Font, size)
	if err != nil {
		return nil, err
	}
	defer face.Close()

	if iconDrawn {
		drawBottom(img, face, b.Label, textColor)
	} else {
		drawCentered(img, face, b.Label, textColor)
	}
	return img, nil
}

// RenderBlank draws a key with no assigned button.
func RenderBlank() *image.RGBA {
	img, _ := NewCanvas(BlankColor)
	return img
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
