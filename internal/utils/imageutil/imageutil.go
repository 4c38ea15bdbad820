package imageutil

import (
	"bytes"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/anthonynsimon/bild/transform"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Decode parses image bytes in any registered format (jpeg, png, gif, bmp,
// webp) and reports the detected format name.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	return img, format, nil
}

// Resize scales img to width x height with linear sampling.
func Resize(img image.Image, width, height int) image.Image {
	return transform.Resize(img, width, height, transform.Linear)
}
