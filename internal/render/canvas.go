package render

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// ButtonSize is the edge length of a key image in pixels
const ButtonSize = 72

// BlankColor fills keys with no assigned button
const BlankColor = "#000000"

// NewCanvas creates a key-sized image filled with the background color.
func NewCanvas(bg string) (*image.RGBA, error) {
	c, err := ParseHexColor(bg)
	if err != nil {
		return nil, err
	}
	return solid(c), nil
}

func solid(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, ButtonSize, ButtonSize))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

// composite draws src over dst with its top-left corner at (x, y).
func composite(dst *image.RGBA, src image.Image, x, y int) {
	b := src.Bounds()
	r := image.Rect(x, y, x+b.Dx(), y+b.Dy())
	draw.Draw(dst, r, src, b.Min, draw.Over)
}
