package render

import (
	"image"
	"image/color"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	// Labels under an icon are capped at this size
	iconLabelMaxSize = 12
	bottomPad        = 4
	minTopOffset     = 2
	minLeftOffset    = 1
	baselineFactor   = 0.8
)

func newFace(name string, size float64) (font.Face, error) {
	f, err := loadFont(name)
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, &FontError{Name: name, Err: err}
	}
	return face, nil
}

// measureLine returns the kerned advance width of s in pixels.
func measureLine(face font.Face, s string) float64 {
	var width fixed.Int26_6
	prev := rune(-1)
	for _, r := range s {
		if prev >= 0 {
			width += face.Kern(prev, r)
		}
		adv, _ := face.GlyphAdvance(r)
		width += adv
		prev = r
	}
	return fixedToFloat(width)
}

// lineHeight is the distance from the highest ascender to the lowest descender.
func lineHeight(face font.Face) float64 {
	m := face.Metrics()
	return fixedToFloat(m.Ascent + m.Descent)
}

// drawLine rasterizes s with its baseline at (x, baseline), blending glyph
// coverage into the opaque canvas.
func drawLine(dst *image.RGBA, face font.Face, s string, x, baseline float64, c color.RGBA) {
	dot := fixed.Point26_6{X: floatToFixed(x), Y: floatToFixed(baseline)}
	prev := rune(-1)
	for _, r := range s {
		if prev >= 0 {
			dot.X += face.Kern(prev, r)
		}
		dr, mask, maskp, adv, ok := face.Glyph(dot, r)
		if ok {
			blendMask(dst, dr, mask, maskp, c)
		}
		dot.X += adv
		prev = r
	}
}

// blendMask applies out = (fg*a + bg*(255-a)) / 255 per channel, alpha forced opaque.
func blendMask(dst *image.RGBA, dr image.Rectangle, mask image.Image, maskp image.Point, c color.RGBA) {
	clip := dr.Intersect(dst.Bounds())
	for y := clip.Min.Y; y < clip.Max.Y; y++ {
		for x := clip.Min.X; x < clip.Max.X; x++ {
			_, _, _, a32 := mask.At(maskp.X+x-dr.Min.X, maskp.Y+y-dr.Min.Y).RGBA()
			a := uint16(a32 >> 8)
			if a == 0 {
				continue
			}
			inv := 255 - a
			i := dst.PixOffset(x, y)
			p := dst.Pix[i : i+4 : i+4]
			p[0] = uint8((uint16(c.R)*a + uint16(p[0])*inv) / 255)
			p[1] = uint8((uint16(c.G)*a + uint16(p[1])*inv) / 255)
			p[2] = uint8((uint16(c.B)*a + uint16(p[2])*inv) / 255)
			p[3] = 0xff
		}
	}
}

// drawCentered lays out newline-separated lines as a block centered in the
// key. Each line is centered by its own width.
func drawCentered(dst *image.RGBA, face font.Face, text string, c color.RGBA) {
	lines := strings.Split(text, "\n")
	h := lineHeight(face)
	start := max((ButtonSize-h*float64(len(lines)))/2, minTopOffset)

	for i, line := range lines {
		x := max((ButtonSize-measureLine(face, line))/2, minLeftOffset)
		baseline := start + h*(float64(i)+baselineFactor)
		drawLine(dst, face, line, x, baseline, c)
	}
}

// drawBottom places a single centered line just above the bottom edge.
// Newlines are flattened since there is no room to stack lines under an icon.
func drawBottom(dst *image.RGBA, face font.Face, text string, c color.RGBA) {
	line := strings.ReplaceAll(text, "\n", " ")
	x := max((ButtonSize-measureLine(face, line))/2, minLeftOffset)
	drawLine(dst, face, line, x, ButtonSize-bottomPad, c)
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

func floatToFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(v * 64)
}
