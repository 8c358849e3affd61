package streamdeck

import (
	"bytes"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

const (
	inputReportID   = 0x01
	inputReportSize = 512
	keyStateOffset  = 4

	imageReportID     = 0x02
	imageCommand      = 0x07
	imagePacketSize   = 1024
	imageHeaderSize   = 8
	imagePayloadSize  = imagePacketSize - imageHeaderSize
	jpegQuality       = 95
	featureReportID   = 0x03
	brightnessCommand = 0x08
	featureReportSize = 32
)

// parseKeyStates extracts per-key pressed flags from an input report.
// Returns nil if the report is not a key report.
func parseKeyStates(report []byte, keys int) []bool {
	if len(report) < keyStateOffset+keys || report[0] != inputReportID {
		return nil
	}
	states := make([]bool, keys)
	for i := 0; i < keys; i++ {
		states[i] = report[keyStateOffset+i] != 0
	}
	return states
}

// brightnessReport builds the feature report setting backlight percent.
func brightnessReport(percent int) []byte {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	report := make([]byte, featureReportSize)
	report[0] = featureReportID
	report[1] = brightnessCommand
	report[2] = byte(percent)
	return report
}

// imagePackets splits a JPEG payload into output reports for one key.
// Each packet is padded to the full report size.
func imagePackets(key int, data []byte) [][]byte {
	var packets [][]byte
	for page := 0; ; page++ {
		start := page * imagePayloadSize
		end := start + imagePayloadSize
		last := end >= len(data)
		if last {
			end = len(data)
		}
		chunk := data[start:end]

		packet := make([]byte, imagePacketSize)
		packet[0] = imageReportID
		packet[1] = imageCommand
		packet[2] = byte(key)
		if last {
			packet[3] = 1
		}
		packet[4] = byte(len(chunk))
		packet[5] = byte(len(chunk) >> 8)
		packet[6] = byte(page)
		packet[7] = byte(page >> 8)
		copy(packet[imageHeaderSize:], chunk)
		packets = append(packets, packet)

		if last {
			return packets
		}
	}
}

// encodeKeyImage scales img to the key size, rotates it 180 degrees to match
// the panel orientation, and encodes it as JPEG.
func encodeKeyImage(img image.Image, size int) ([]byte, error) {
	src := img
	if b := img.Bounds(); b.Dx() != size || b.Dy() != size {
		scaled := image.NewRGBA(image.Rect(0, 0, size, size))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, b, draw.Src, nil)
		src = scaled
	}

	flipped := rotate180(src)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flipped, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func rotate180(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(b.Max.X-1-x, b.Max.Y-1-y, img.At(x, y))
		}
	}
	return out
}
