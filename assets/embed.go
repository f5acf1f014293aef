package assets

import (
	"bytes"
	_ "embed"
	"fmt"
	"image"
	"image/png"
)

// NoSignalPNG is shown in the viewer while no robot frame is available.
//
//go:embed no_signal.png
var NoSignalPNG []byte

// NoSignalImage decodes the embedded placeholder.
func NoSignalImage() (image.Image, error) {
	if len(NoSignalPNG) == 0 {
		return nil, fmt.Errorf("embedded no_signal.png is empty")
	}
	return png.Decode(bytes.NewReader(NoSignalPNG))
}
