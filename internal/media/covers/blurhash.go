package covers

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder

	"github.com/bbrks/go-blurhash"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// thumbnailSize bounds the image fed to blurhash encoding. The hash
// is a low-resolution placeholder, so a small thumbnail produces the
// same result orders of magnitude faster than the full image.
const thumbnailSize = 64

// BlurHash computes the blurhash placeholder string for cover data.
// 4x3 components keep the hash short while preserving enough detail
// for book covers.
func BlurHash(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode cover: %w", err)
	}

	hash, err := blurhash.Encode(4, 3, thumbnail(img))
	if err != nil {
		return "", fmt.Errorf("encode blurhash: %w", err)
	}
	return hash, nil
}

// Dimensions returns the pixel size of cover data without a full
// decode.
func Dimensions(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("decode cover config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// thumbnail downscales img so its longer edge is at most
// thumbnailSize, using nearest-neighbor sampling. Small inputs pass
// through unchanged.
func thumbnail(img image.Image) image.Image {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	if srcW <= thumbnailSize && srcH <= thumbnailSize {
		return img
	}

	var dstW, dstH int
	if srcW > srcH {
		dstW = thumbnailSize
		dstH = max(1, (srcH*thumbnailSize)/srcW)
	} else {
		dstH = thumbnailSize
		dstW = max(1, (srcW*thumbnailSize)/srcH)
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	xRatio := float64(srcW) / float64(dstW)
	yRatio := float64(srcH) / float64(dstH)

	for y := 0; y < dstH; y++ {
		for x := 0; x < dstW; x++ {
			srcX := int(float64(x) * xRatio)
			srcY := int(float64(y) * yRatio)
			dst.Set(x, y, img.At(bounds.Min.X+srcX, bounds.Min.Y+srcY))
		}
	}
	return dst
}
