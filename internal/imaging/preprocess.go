package imaging

import (
	"bytes"
	"fmt"
	stdimage "image"
	"image/color"

	"github.com/disintegration/imaging"
)

const threshold = 128

// Preprocess produces the local fallback for the aligner's
// "preprocessed" output when the aligner service is unavailable:
// grayscale, contrast-normalize, threshold at 128, re-encode as JPEG.
func Preprocess(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imaging - Preprocess - imaging.Decode: %w", err)
	}

	gray := imaging.Grayscale(img)
	normalized := imaging.AdjustContrast(gray, 20)
	binarized := thresholdImage(normalized, threshold)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, binarized, imaging.JPEG); err != nil {
		return nil, fmt.Errorf("imaging - Preprocess - imaging.Encode: %w", err)
	}

	return buf.Bytes(), nil
}

func thresholdImage(img stdimage.Image, cutoff uint8) stdimage.Image {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		v := uint8(0)
		if c.R >= cutoff {
			v = 255
		}
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})
}
