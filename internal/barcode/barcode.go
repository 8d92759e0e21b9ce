// Package barcode decodes product barcodes from package photos.
package barcode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
)

// ErrNotFound is returned when the image contains no readable barcode
var ErrNotFound = errors.New("barcode not found")

// Decoder reads EAN/UPC and Code 128 barcodes
type Decoder struct {
	readers []gozxing.Reader
	hints   map[gozxing.DecodeHintType]interface{}
}

// NewDecoder creates a decoder for the barcode formats printed on medicine packages
func NewDecoder() *Decoder {
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	return &Decoder{
		readers: []gozxing.Reader{
			oned.NewMultiFormatUPCEANReader(hints),
			oned.NewCode128Reader(),
		},
		hints: hints,
	}
}

// Decode returns the text of the first barcode found in the image
func (d *Decoder) Decode(img []byte) (string, error) {
	src, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(src)
	if err != nil {
		return "", fmt.Errorf("failed to binarize image: %w", err)
	}

	for _, reader := range d.readers {
		result, err := reader.Decode(bmp, d.hints)
		if err != nil {
			continue
		}
		if text := result.GetText(); text != "" {
			return text, nil
		}
	}
	return "", ErrNotFound
}
