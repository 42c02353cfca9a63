package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

// DefaultThumbnailMaxDimension is the longest edge of preview thumbnails.
const DefaultThumbnailMaxDimension = 512

// ThumbnailSize returns the size that fits w×h inside maxDim on the longest
// edge, preserving aspect ratio. Images already small enough keep their size.
func ThumbnailSize(w, h, maxDim int) (int, int) {
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	if w >= h {
		nh := h * maxDim / w
		if nh < 1 {
			nh = 1
		}
		return maxDim, nh
	}
	nw := w * maxDim / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxDim
}

// Thumbnail downsizes img with Catmull-Rom resampling and encodes the
// preview as JPEG.
func Thumbnail(img *Image, maxDim int) ([]byte, string, error) {
	src, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}

	bounds := src.Bounds()
	w, h := ThumbnailSize(bounds.Dx(), bounds.Dy(), maxDim)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85}); err != nil {
		return nil, "", fmt.Errorf("encode thumbnail: %w", err)
	}

	log.Debug().
		Str("file", img.Filename).
		Int("width", w).
		Int("height", h).
		Int("bytes", buf.Len()).
		Msg("Thumbnail generated")

	return buf.Bytes(), "image/jpeg", nil
}
