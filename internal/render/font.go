package render

import (
	"fmt"
	"sync"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// DefaultFont is used when a button names no font or an unknown one
const DefaultFont = "default"

var fontData = map[string][]byte{
	DefaultFont: goregular.TTF,
	"regular":   goregular.TTF,
	"bold":      gobold.TTF,
	"mono":      gomono.TTF,
	"medium":    gomedium.TTF,
}

// FontError is returned when an embedded font cannot be parsed.
type FontError struct {
	Name string
	Err  error
}

func (e *FontError) Error() string {
	return fmt.Sprintf("font %s: %v", e.Name, e.Err)
}

func (e *FontError) Unwrap() error {
	return e.Err
}

var (
	fontsMu sync.Mutex
	fonts   = make(map[string]*opentype.Font)
)

// FontNames lists the embedded font names
func FontNames() []string {
	return []string{DefaultFont, "regular", "bold", "mono", "medium"}
}

// loadFont returns the parsed font for name, falling back to the default.
// Parsed fonts are shared; faces are not, since they are not goroutine-safe.
func loadFont(name string) (*opentype.Font, error) {
	if _, ok := fontData[name]; !ok {
		name = DefaultFont
	}

	fontsMu.Lock()
	defer fontsMu.Unlock()

	if f, ok := fonts[name]; ok {
		return f, nil
	}
	f, err := opentype.Parse(fontData[name])
	if err != nil {
		return nil, &FontError{Name: name, Err: err}
	}
	fonts[name] = f
	return f, nil
}
