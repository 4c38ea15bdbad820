package inference

import (
	"fmt"

	"github.com/smartscale/scale-server/internal/utils/imageutil"
)

// Channel means the classifier was trained with, in BGR order.
var bgrMeans = [3]float32{103.939, 116.779, 123.68}

// Preprocess turns raw image bytes into the flat float32 tensor the
// classifier expects: resized to size x size with linear interpolation,
// channels reordered to BGR, and the training means subtracted. The
// tensor layout is HWC.
func Preprocess(data []byte, size int) ([]float32, error) {
	img, _, err := imageutil.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	resized := imageutil.Resize(img, size, size)
	bounds := resized.Bounds()

	tensor := make([]float32, size*size*3)
	i := 0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			tensor[i] = float32(b>>8) - bgrMeans[0]
			tensor[i+1] = float32(g>>8) - bgrMeans[1]
			tensor[i+2] = float32(r>>8) - bgrMeans[2]
			i += 3
		}
	}

	return tensor, nil
}
