package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
)

var ErrNoFrame = errors.New("no frame image")

const DefaultJPEGQuality = 90

type JPEGEncoder struct {
	Quality int
}

func (e JPEGEncoder) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, ErrNoFrame
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty bounds %v", ErrNoFrame, bounds)
	}

	quality := e.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
