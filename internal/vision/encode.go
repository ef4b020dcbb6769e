package vision

import (
	"bytes"
	"image"
	"image/jpeg"
)

// EncodeJPEG encodes img at the given quality (1-100, defaulting to 75).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = 75
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
