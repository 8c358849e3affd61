package render

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

const (
	// IconMax is the largest icon edge; the rest of the key is left for a label
	IconMax    = 48
	iconTopPad = 4
)

// IconError wraps an icon that could not be opened or decoded.
type IconError struct {
	Path string
	Err  error
}

func (e *IconError) Error() string {
	return fmt.Sprintf("icon %s: %v", e.Path, e.Err)
}

func (e *IconError) Unwrap() error {
	return e.Err
}

// resolveIconPath joins relative paths to the config directory.
func resolveIconPath(path, baseDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// loadIcon decodes a PNG or JPEG and scales it to fit IconMax, keeping aspect
// ratio. Smaller images are not enlarged.
func loadIcon(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IconError{Path: path, Err: err}
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, &IconError{Path: path, Err: err}
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, &IconError{Path: path, Err: fmt.Errorf("empty image")}
	}

	scale := float64(IconMax) / float64(max(w, h))
	if scale > 1 {
		scale = 1
	}
	nw, nh := max(int(float64(w)*scale), 1), max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst, nil
}

func iconX(width int) int {
	return (ButtonSize - width) / 2
}

func iconY(hasLabel bool) int {
	if hasLabel {
		return iconTopPad
	}
	return (ButtonSize - IconMax) / 2
}
