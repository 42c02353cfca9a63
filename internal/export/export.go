// Package export turns an edit result (a data URL) into a file on disk, an S3
// object or a ZIP bundle of the whole edit history.
package export

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/ai-image-editor/internal/dataurl"
)

// DefaultFilename is the name every downloaded result is saved under.
const DefaultFilename = "edited-image.png"

// Result is a decoded edit result.
type Result struct {
	MIMEType string
	Data     []byte
}

// Ext returns the file extension for the result's MIME type, defaulting to
// ".png".
func (r Result) Ext() string {
	switch r.MIMEType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	if exts, err := mime.ExtensionsByType(r.MIMEType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".png"
}

// DecodeDataURL turns a data:image/...;base64 result back into bytes.
func DecodeDataURL(url string) (Result, error) {
	mimeType, data, err := dataurl.Decode(url)
	if err != nil {
		return Result{}, err
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return Result{}, fmt.Errorf("%w: not an image (%s)", dataurl.ErrInvalid, mimeType)
	}
	return Result{MIMEType: mimeType, Data: data}, nil
}

// Download writes the result to dir/edited-image.png and returns the path.
// An existing file of the same name is replaced.
func Download(result, dir string) (string, error) {
	r, err := DecodeDataURL(result)
	if err != nil {
		return "", fmt.Errorf("failed to decode result: %w", err)
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, DefaultFilename)
	if err := os.WriteFile(path, r.Data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	log.Info().Str("path", path).Int("bytes", len(r.Data)).Str("mime", r.MIMEType).Msg("Edited image saved")
	return path, nil
}
