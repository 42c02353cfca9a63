// Package imaging admits uploaded images into the editor: it validates type
// and size, decodes natural dimensions, reads EXIF metadata and hands out
// releasable display handles.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoder for image.DecodeConfig
	_ "image/png"  // register PNG decoder for image.DecodeConfig
	"net/http"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp" // register WebP decoder for image.DecodeConfig
)

// MaxUploadSize is the largest accepted upload (10 MiB).
const MaxUploadSize int64 = 10 * 1024 * 1024

// Intake errors. Messages are user-facing.
var (
	ErrUnsupportedFormat = errors.New("Unsupported file format. Please use JPG, PNG, or WebP.")
	ErrFileTooLarge      = errors.New("File too large. Maximum size is 10MB.")
	ErrDecode            = errors.New("Failed to load image.")
)

// allowedTypes is the MIME allowlist for uploads.
var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// extensionTypes maps accepted file extensions to MIME types.
var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// Image is an admitted upload. The bytes are owned by the Image; callers
// must not modify Data after intake.
type Image struct {
	// Handle is the unique id of the display handle; empty for images that
	// were decoded but never registered (e.g. generated results).
	Handle string
	// URL is the display URL ("blob:<handle>") while the handle is live.
	URL      string
	Filename string
	MIMEType string
	Data     []byte
	Width    int
	Height   int
	Size     int64
	Metadata *Metadata
}

// Dimensions formats the natural size as "WxH".
func (img *Image) Dimensions() string {
	return fmt.Sprintf("%dx%d", img.Width, img.Height)
}

// Validate checks the MIME type and byte size of a prospective upload.
// Unknown types are rejected before size so a large GIF reports the format.
func Validate(mimeType string, size int64) error {
	if !allowedTypes[mimeType] {
		return fmt.Errorf("%w (got %q)", ErrUnsupportedFormat, mimeType)
	}
	if size > MaxUploadSize {
		return fmt.Errorf("%w (got %d bytes)", ErrFileTooLarge, size)
	}
	return nil
}

// DetectMIMEType resolves the MIME type of an upload. A declared type wins;
// otherwise the content is sniffed and finally the extension is consulted.
func DetectMIMEType(filename, declared string, data []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		if mt, _, ok := strings.Cut(declared, ";"); ok {
			return strings.TrimSpace(mt)
		}
		return declared
	}
	if sniffed := http.DetectContentType(data); sniffed != "application/octet-stream" {
		return sniffed
	}
	if mt, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return mt
	}
	return "application/octet-stream"
}

// Decode reads the natural dimensions and EXIF metadata of an image without
// validating upload limits and without registering a display handle.
func Decode(filename, mimeType string, data []byte) (*Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}

	img := &Image{
		Filename: filename,
		MIMEType: mimeType,
		Data:     data,
		Width:    cfg.Width,
		Height:   cfg.Height,
		Size:     int64(len(data)),
	}

	meta, err := ExtractMetadata(bytes.NewReader(data))
	if err != nil {
		log.Debug().Err(err).Str("file", filename).Msg("No EXIF metadata available")
	} else {
		img.Metadata = meta
	}

	log.Debug().
		Str("file", filename).
		Str("format", format).
		Int("width", cfg.Width).
		Int("height", cfg.Height).
		Int("bytes", len(data)).
		Msg("Image decoded")

	return img, nil
}
