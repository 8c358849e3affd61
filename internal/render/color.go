package render

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// ColorError is returned for a string that is not #rgb or #rrggbb.
type ColorError struct {
	Value string
}

func (e *ColorError) Error() string {
	return fmt.Sprintf("invalid hex color: %q", e.Value)
}

// ParseHexColor parses "#rgb" or "#rrggbb" into an opaque color.
// The leading '#' is optional.
func ParseHexColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(s, "#")

	switch len(hex) {
	case 3:
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	case 6:
	default:
		return color.RGBA{}, &ColorError{Value: s}
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, &ColorError{Value: s}
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
