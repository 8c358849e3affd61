package streamdeck

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/sstallion/go-hid"

	"github.com/dokzlo13/deckd/internal/device"
)

type fakeHID struct {
	mu       sync.Mutex
	reports  [][]byte
	writes   [][]byte
	features [][]byte
	closed   int
}

func (f *fakeHID) ReadWithTimeout(p []byte, timeout time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reports) == 0 {
		return 0, hid.ErrTimeout
	}
	n := copy(p, f.reports[0])
	f.reports = f.reports[1:]
	return n, nil
}

func (f *fakeHID) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeHID) SendFeatureReport(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.features = append(f.features, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeHID) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func TestParseKeyStates(t *testing.T) {
	report := make([]byte, inputReportSize)
	report[0] = inputReportID
	report[keyStateOffset+0] = 1
	report[keyStateOffset+14] = 1

	states := parseKeyStates(report, 15)
	if len(states) != 15 {
		t.Fatalf("len = %d, want 15", len(states))
	}
	for i, down := range states {
		want := i == 0 || i == 14
		if down != want {
			t.Errorf("key %d = %v, want %v", i, down, want)
		}
	}

	report[0] = 0x02
	if got := parseKeyStates(report, 15); got != nil {
		t.Errorf("non-input report parsed as %v", got)
	}
	if got := parseKeyStates([]byte{inputReportID}, 15); got != nil {
		t.Errorf("short report parsed as %v", got)
	}
}

func TestImagePackets(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		packets int
	}{
		{"single packet", 100, 1},
		{"exact fit", imagePayloadSize, 1},
		{"one byte over", imagePayloadSize + 1, 2},
		{"three packets", imagePayloadSize*2 + 10, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := bytes.Repeat([]byte{0xab}, tt.size)
			packets := imagePackets(7, data)
			if len(packets) != tt.packets {
				t.Fatalf("packets = %d, want %d", len(packets), tt.packets)
			}

			var payload []byte
			for i, p := range packets {
				if len(p) != imagePacketSize {
					t.Errorf("packet %d size = %d", i, len(p))
				}
				if p[0] != imageReportID || p[1] != imageCommand || p[2] != 7 {
					t.Errorf("packet %d header = % x", i, p[:3])
				}
				last := i == len(packets)-1
				if (p[3] == 1) != last {
					t.Errorf("packet %d last flag = %d", i, p[3])
				}
				n := int(p[4]) | int(p[5])<<8
				page := int(p[6]) | int(p[7])<<8
				if page != i {
					t.Errorf("packet %d page = %d", i, page)
				}
				payload = append(payload, p[imageHeaderSize:imageHeaderSize+n]...)
			}
			if !bytes.Equal(payload, data) {
				t.Error("reassembled payload differs")
			}
		})
	}
}

func TestBrightnessReport(t *testing.T) {
	tests := []struct {
		in   int
		want byte
	}{
		{0, 0},
		{80, 80},
		{100, 100},
		{150, 100},
		{-5, 0},
	}
	for _, tt := range tests {
		r := brightnessReport(tt.in)
		if len(r) != featureReportSize || r[0] != featureReportID || r[1] != brightnessCommand || r[2] != tt.want {
			t.Errorf("brightnessReport(%d) = % x", tt.in, r[:3])
		}
	}
}

func TestRotate180(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	red := color.RGBA{255, 0, 0, 255}
	img.Set(0, 0, red)

	out := rotate180(img)
	if out.RGBAAt(1, 1) != red {
		t.Errorf("pixel (1,1) = %v, want red", out.RGBAAt(1, 1))
	}
	if out.RGBAAt(0, 0) == red {
		t.Error("pixel (0,0) still red")
	}
}

func TestEncodeKeyImageScales(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 144, 144))
	data, err := encodeKeyImage(img, 72)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 72 || b.Dy() != 72 {
		t.Errorf("bounds = %v, want 72x72", b)
	}
}

func TestDeckReadAndFlush(t *testing.T) {
	report := make([]byte, inputReportSize)
	report[0] = inputReportID
	report[keyStateOffset+3] = 1
	dev := &fakeHID{reports: [][]byte{report}}
	deck := newDeck(dev, device.Info{Serial: "TEST"})

	states, err := deck.ReadButtons(time.Millisecond)
	if err != nil || len(states) != 15 || !states[3] {
		t.Fatalf("ReadButtons() = %v, %v", states, err)
	}
	states, err = deck.ReadButtons(time.Millisecond)
	if err != nil || states != nil {
		t.Fatalf("ReadButtons() on timeout = %v, %v; want nil, nil", states, err)
	}

	if err := deck.SetButtonImage(0, image.NewRGBA(image.Rect(0, 0, 72, 72))); err != nil {
		t.Fatal(err)
	}
	if err := deck.SetButtonImage(15, image.NewRGBA(image.Rect(0, 0, 72, 72))); err == nil {
		t.Error("SetButtonImage(15) succeeded")
	}
	if len(dev.writes) != 0 {
		t.Fatal("image written before Flush")
	}
	if err := deck.Flush(); err != nil {
		t.Fatal(err)
	}
	if len(dev.writes) == 0 {
		t.Fatal("Flush wrote nothing")
	}
	if err := deck.SetBrightness(55); err != nil || dev.features[0][2] != 55 {
		t.Fatalf("SetBrightness() = %v", err)
	}

	deck.Close()
	deck.Close()
	if dev.closed != 1 {
		t.Errorf("device closed %d times", dev.closed)
	}
	if _, err := deck.ReadButtons(time.Millisecond); !errors.Is(err, errClosed) {
		t.Errorf("ReadButtons() after close = %v", err)
	}
}

func TestModelByProductID(t *testing.T) {
	if m, ok := ModelByProductID(0x0080); !ok || m.Keys != 15 {
		t.Errorf("MK.2 lookup = %+v, %v", m, ok)
	}
	if _, ok := ModelByProductID(0x0060); ok {
		t.Error("original v1 should be unsupported")
	}
}
